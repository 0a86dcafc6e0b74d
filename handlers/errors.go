package handlers

import (
	"errors"

	"prize-escrow/merkle"
	"prize-escrow/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorTable = []errorMapping{
	{services.ErrNotFound, fiber.StatusNotFound, "not_found"},
	{services.ErrAlreadyExists, fiber.StatusConflict, "already_exists"},
	{services.ErrInvalidEventID, fiber.StatusBadRequest, "invalid_event_id"},
	{services.ErrInvalidAsset, fiber.StatusBadRequest, "invalid_asset"},
	{services.ErrZeroAmount, fiber.StatusBadRequest, "zero_amount"},
	{services.ErrAlreadyFinalized, fiber.StatusConflict, "already_finalized"},
	{services.ErrRegistrationClosed, fiber.StatusConflict, "registration_closed"},
	{services.ErrAlreadyRegistered, fiber.StatusConflict, "already_registered"},
	{services.ErrZeroFee, fiber.StatusUnprocessableEntity, "zero_fee"},
	{services.ErrNotFinalized, fiber.StatusConflict, "not_finalized"},
	{services.ErrNotRegistered, fiber.StatusForbidden, "not_registered"},
	{services.ErrAlreadyClaimed, fiber.StatusConflict, "already_claimed"},
	{services.ErrBadProof, fiber.StatusUnprocessableEntity, "bad_proof"},
	{services.ErrInvalidRank, fiber.StatusUnprocessableEntity, "invalid_rank"},
	{services.ErrZeroPayout, fiber.StatusUnprocessableEntity, "zero_payout"},
	{services.ErrPoolShortage, fiber.StatusConflict, "pool_shortage"},
	{services.ErrBadShares, fiber.StatusBadRequest, "bad_shares"},
	{services.ErrZeroShare, fiber.StatusBadRequest, "zero_share"},
	{services.ErrZeroRoot, fiber.StatusBadRequest, "zero_root"},
	{services.ErrPoolExceeded, fiber.StatusUnprocessableEntity, "pool_exceeded"},
	{services.ErrInsufficientBalance, fiber.StatusConflict, "insufficient_balance"},
	{services.ErrInvalidRecipient, fiber.StatusBadRequest, "invalid_recipient"},
	{services.ErrUnauthorized, fiber.StatusForbidden, "unauthorized"},
	{services.ErrArithmeticOverflow, fiber.StatusUnprocessableEntity, "arithmetic_overflow"},
	{services.ErrTransfer, fiber.StatusPaymentRequired, "transfer_failed"},
	{services.ErrDuplicateWinner, fiber.StatusBadRequest, "duplicate_winner"},
	{services.ErrNotWinner, fiber.StatusNotFound, "not_winner"},
	{merkle.ErrNoWinners, fiber.StatusBadRequest, "no_winners"},
	{merkle.ErrZeroRank, fiber.StatusBadRequest, "zero_rank"},
	{merkle.ErrDuplicateLeaf, fiber.StatusBadRequest, "duplicate_leaf"},
}

// respondError writes the status and code for a known error kind. Anything
// else is logged and reported as a bare 500.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return c.Status(m.status).JSON(fiber.Map{"error": m.err.Error(), "code": m.code})
		}
	}
	logger.Error("request failed", zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error", "code": "internal"})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg, "code": "bad_request"})
}
