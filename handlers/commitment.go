package handlers

import (
	"prize-escrow/merkle"
	"prize-escrow/middleware"
	"prize-escrow/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
)

// BuildCommitment builds and publishes the winners tree for an open event.
// Operators only.
func (h *EscrowHandler) BuildCommitment(c *fiber.Ctx) error {
	caller, err := middleware.CallerFrom(c)
	if err != nil || h.Auth == nil || !h.Auth.IsPrivileged(c.UserContext(), caller) {
		return respondError(c, h.Logger, services.ErrUnauthorized)
	}

	var req struct {
		Winners []merkle.Winner `json:"winners"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	artifact, doc, err := h.Commitments.Build(c.UserContext(), c.Params("id"), req.Winners)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"artifact": artifact,
		"document": doc,
	})
}

func (h *EscrowHandler) GetCommitment(c *fiber.Ctx) error {
	artifact, err := h.Commitments.GetArtifact(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(artifact)
}

// GetProof returns what a winner needs to call claim.
func (h *EscrowHandler) GetProof(c *fiber.Ctx) error {
	raw := c.Params("account")
	if !common.IsHexAddress(raw) {
		return badRequest(c, "Invalid account address")
	}
	leaf, root, err := h.Commitments.GetProof(c.UserContext(), c.Params("id"), common.HexToAddress(raw))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(fiber.Map{
		"event_id": c.Params("id"),
		"root":     root,
		"account":  leaf.Account,
		"rank":     leaf.Rank,
		"leaf":     leaf.Leaf,
		"proof":    leaf.Proof,
	})
}
