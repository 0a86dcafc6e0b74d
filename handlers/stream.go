package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"prize-escrow/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// StreamNotifications streams an event's ledger notifications as SSE.
// Clients resume with Last-Event-ID or ?after=<seq>.
func (h *EscrowHandler) StreamNotifications(c *fiber.Ctx) error {
	eventID := c.Params("id")
	if _, err := h.Escrow.GetEventInfo(c.UserContext(), eventID); err != nil {
		return respondError(c, h.Logger, err)
	}

	cursorRaw := c.Get("Last-Event-ID", c.Query("after", "0"))
	cursor, err := strconv.ParseUint(cursorRaw, 10, 64)
	if err != nil {
		return badRequest(c, "Invalid cursor")
	}

	interval := h.StreamInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	done := c.Context().Done()
	logger := h.Logger.With(zap.String("event_id", eventID))

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case <-ticker.C:
				notes, err := h.Escrow.ListNotifications(context.Background(), eventID, cursor, 100)
				if err != nil {
					logger.Warn("notification stream query failed", zap.Error(err))
					continue
				}
				if len(notes) == 0 {
					w.WriteString(":\n\n")
				} else {
					cursor, err = writeNotificationFrames(w, notes)
					if err != nil {
						logger.Warn("notification stream encode failed", zap.Error(err))
						return
					}
				}
				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-done:
				return
			}
		}
	})

	return nil
}

// writeNotificationFrames writes one SSE frame per notification and returns
// the last sequence written.
func writeNotificationFrames(w *bufio.Writer, notes []models.LedgerNotification) (uint64, error) {
	var last uint64
	for _, n := range notes {
		payload, err := json.Marshal(n)
		if err != nil {
			return last, err
		}
		fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", n.Seq, n.Kind, payload)
		last = n.Seq
	}
	return last, nil
}
