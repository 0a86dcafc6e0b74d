package handlers

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
)

func (h *EscrowHandler) GetBalance(c *fiber.Ctx) error {
	asset, holder := c.Params("asset"), c.Params("holder")
	if !common.IsHexAddress(asset) || !common.IsHexAddress(holder) {
		return badRequest(c, "Invalid asset or holder address")
	}

	bal, err := h.Custody.BalanceOf(c.UserContext(), common.HexToAddress(asset), common.HexToAddress(holder))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(fiber.Map{
		"asset":   common.HexToAddress(asset).Hex(),
		"holder":  common.HexToAddress(holder).Hex(),
		"balance": bal,
	})
}
