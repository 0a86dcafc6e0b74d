package handlers

import (
	"strconv"
	"time"

	"prize-escrow/middleware"
	"prize-escrow/models"
	"prize-escrow/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// EscrowHandler exposes the ledger, commitment builder and custody balances
// over HTTP.
type EscrowHandler struct {
	Escrow      *services.EscrowService
	Commitments *services.CommitmentService
	Custody     *services.CustodyService
	Auth        services.Authorizer
	Logger      *zap.Logger

	StreamInterval time.Duration
}

func SetupEscrowRoutes(app *fiber.App, h *EscrowHandler, callerSecret []byte) {
	// 🔓 Read-only routes, gateway auth only
	app.Get("/events/:id", h.GetEvent)
	app.Get("/events/:id/quote/:rank", h.QuotePayout)
	app.Get("/events/:id/status/:participant", h.GetStatus)
	app.Get("/events/:id/shares", h.ListShares)
	app.Get("/events/:id/audit", h.Audit)
	app.Get("/events/:id/notifications", h.ListNotifications)
	app.Get("/events/:id/notifications/stream", h.StreamNotifications)
	app.Get("/events/:id/commitment", h.GetCommitment)
	app.Get("/events/:id/commitment/proofs/:account", h.GetProof)
	app.Get("/custody/:asset/:holder", h.GetBalance)

	// 🔐 Caller-scoped routes
	secured := app.Group("/", middleware.CallerContextMiddleware(callerSecret, h.Logger))
	secured.Post("/events", h.CreateEvent)
	secured.Post("/events/:id/sponsor", h.Sponsor)
	secured.Post("/events/:id/register", h.Register)
	secured.Post("/events/:id/finalize", h.Finalize)
	secured.Post("/events/:id/claim", h.Claim)
	secured.Post("/events/:id/skim", h.Skim)
	secured.Post("/events/:id/commitment", h.BuildCommitment)
}

func (h *EscrowHandler) CreateEvent(c *fiber.Ctx) error {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		return respondError(c, h.Logger, services.ErrUnauthorized)
	}

	var req struct {
		EventID              string         `json:"event_id"`
		Name                 string         `json:"name"`
		AssetID              common.Address `json:"asset_id"`
		EntryFee             models.Amount  `json:"entry_fee"`
		RegistrationDeadline int64          `json:"registration_deadline"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.RegistrationDeadline < 0 {
		return badRequest(c, "registration_deadline must be a unix timestamp or 0")
	}

	ev, err := h.Escrow.CreateEvent(c.UserContext(), caller, services.CreateEventParams{
		EventID:              req.EventID,
		Name:                 req.Name,
		AssetID:              req.AssetID,
		EntryFee:             req.EntryFee,
		RegistrationDeadline: req.RegistrationDeadline,
	})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ev)
}

func (h *EscrowHandler) GetEvent(c *fiber.Ctx) error {
	ev, err := h.Escrow.GetEventInfo(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(ev)
}

func (h *EscrowHandler) Sponsor(c *fiber.Ctx) error {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		return respondError(c, h.Logger, services.ErrUnauthorized)
	}
	var req struct {
		Amount models.Amount `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	eventID := c.Params("id")
	if err := h.Escrow.Sponsor(c.UserContext(), caller, eventID, req.Amount); err != nil {
		return respondError(c, h.Logger, err)
	}
	return h.GetEvent(c)
}

func (h *EscrowHandler) Register(c *fiber.Ctx) error {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		return respondError(c, h.Logger, services.ErrUnauthorized)
	}
	eventID := c.Params("id")
	if err := h.Escrow.Register(c.UserContext(), caller, eventID); err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":     "Registered",
		"event_id":    eventID,
		"participant": caller.Hex(),
	})
}

func (h *EscrowHandler) Finalize(c *fiber.Ctx) error {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		return respondError(c, h.Logger, services.ErrUnauthorized)
	}
	var req struct {
		Shares         []uint64      `json:"shares"`
		ShareUnitTotal uint64        `json:"share_unit_total"`
		CommitmentRoot common.Hash   `json:"commitment_root"`
		FixedPool      models.Amount `json:"fixed_pool"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	ev, err := h.Escrow.Finalize(c.UserContext(), caller, c.Params("id"), services.FinalizeParams{
		Shares:         req.Shares,
		ShareUnitTotal: req.ShareUnitTotal,
		CommitmentRoot: req.CommitmentRoot,
		FixedPool:      req.FixedPool,
	})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(ev)
}

func (h *EscrowHandler) Claim(c *fiber.Ctx) error {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		return respondError(c, h.Logger, services.ErrUnauthorized)
	}
	var req struct {
		Rank  uint64        `json:"rank"`
		Proof []common.Hash `json:"proof"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	eventID := c.Params("id")
	amount, err := h.Escrow.Claim(c.UserContext(), caller, eventID, req.Rank, req.Proof)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(fiber.Map{
		"message":     "Prize claimed",
		"event_id":    eventID,
		"participant": caller.Hex(),
		"rank":        req.Rank,
		"amount":      amount,
	})
}

func (h *EscrowHandler) Skim(c *fiber.Ctx) error {
	caller, err := middleware.CallerFrom(c)
	if err != nil {
		return respondError(c, h.Logger, services.ErrUnauthorized)
	}
	var req struct {
		To     common.Address `json:"to"`
		Amount models.Amount  `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.Escrow.Skim(c.UserContext(), caller, c.Params("id"), req.To, req.Amount); err != nil {
		return respondError(c, h.Logger, err)
	}
	return h.GetEvent(c)
}

func (h *EscrowHandler) QuotePayout(c *fiber.Ctx) error {
	rank, err := strconv.ParseUint(c.Params("rank"), 10, 64)
	if err != nil {
		return badRequest(c, "Invalid rank")
	}
	share, amount, err := h.Escrow.QuotePayout(c.UserContext(), c.Params("id"), rank)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(fiber.Map{"rank": rank, "share": share, "amount": amount})
}

func (h *EscrowHandler) GetStatus(c *fiber.Ctx) error {
	raw := c.Params("participant")
	if !common.IsHexAddress(raw) {
		return badRequest(c, "Invalid participant address")
	}
	participant := common.HexToAddress(raw)
	registered, claimed, err := h.Escrow.GetStatus(c.UserContext(), c.Params("id"), participant)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(fiber.Map{
		"participant": participant.Hex(),
		"registered":  registered,
		"claimed":     claimed,
	})
}

func (h *EscrowHandler) ListShares(c *fiber.Ctx) error {
	shares, err := h.Escrow.ListRankShares(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(shares)
}

func (h *EscrowHandler) Audit(c *fiber.Ctx) error {
	report, err := h.Escrow.Audit(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(report)
}

func (h *EscrowHandler) ListNotifications(c *fiber.Ctx) error {
	after, err := strconv.ParseUint(c.Query("after", "0"), 10, 64)
	if err != nil {
		return badRequest(c, "Invalid after parameter")
	}
	limit := c.QueryInt("limit", 100)
	if limit <= 0 {
		return badRequest(c, "Invalid limit parameter")
	}

	notes, err := h.Escrow.ListNotifications(c.UserContext(), c.Params("id"), after, limit)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(notes)
}
