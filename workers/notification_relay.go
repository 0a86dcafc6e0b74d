package workers

import (
	"context"
	"fmt"
	"time"

	"prize-escrow/models"
	"prize-escrow/utils"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotificationRelay copies committed outbox rows to a redis stream and stamps
// them published. A row is only stamped after its XAdd succeeds, so a crash
// between the two can publish it twice but never drops it.
//
// Rows of one event reach the stream in seq order: every write to an event
// holds its row lock, so a later seq for the same event cannot commit first.
// Across events, postgres hands out seq before commit, so a lower seq from
// another event may commit (and be relayed) after a higher one.
type NotificationRelay struct {
	DB        *gorm.DB
	Streams   *utils.StreamClient
	Stream    string
	BatchSize int
	Logger    *zap.Logger

	sched gocron.Scheduler
}

func NewNotificationRelay(db *gorm.DB, streams *utils.StreamClient, stream string, batchSize int, logger *zap.Logger) *NotificationRelay {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &NotificationRelay{
		DB:        db,
		Streams:   streams,
		Stream:    stream,
		BatchSize: batchSize,
		Logger:    logger.Named("relay"),
	}
}

// Start schedules RelayOnce every interval. Runs never overlap.
func (r *NotificationRelay) Start(ctx context.Context, interval time.Duration) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			n, err := r.RelayOnce(ctx)
			if err != nil {
				r.Logger.Warn("relay pass failed", zap.Int("published", n), zap.Error(err))
				return
			}
			if n > 0 {
				r.Logger.Info("relayed notifications", zap.Int("published", n))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule relay: %w", err)
	}

	r.sched = sched
	sched.Start()
	r.Logger.Info("notification relay started",
		zap.String("stream", r.Stream),
		zap.Duration("interval", interval),
		zap.Int("batch", r.BatchSize))
	return nil
}

func (r *NotificationRelay) Stop() {
	if r.sched == nil {
		return
	}
	if err := r.sched.Shutdown(); err != nil {
		r.Logger.Warn("relay scheduler shutdown", zap.Error(err))
	}
}

// RelayOnce publishes one batch of unpublished rows, lowest seq first, and
// returns how many made it. It stops at the first failure so a row is never
// published ahead of an earlier row of its event.
func (r *NotificationRelay) RelayOnce(ctx context.Context) (int, error) {
	var pending []models.LedgerNotification
	if err := r.DB.WithContext(ctx).
		Where("published_at IS NULL").
		Order("seq ASC").
		Limit(r.BatchSize).
		Find(&pending).Error; err != nil {
		return 0, fmt.Errorf("load pending notifications: %w", err)
	}

	published := 0
	for _, n := range pending {
		if _, err := r.Streams.XAdd(ctx, r.Stream, streamValues(n)); err != nil {
			return published, err
		}
		now := time.Now().UTC()
		if err := r.DB.WithContext(ctx).
			Model(&models.LedgerNotification{}).
			Where("seq = ?", n.Seq).
			Update("published_at", now).Error; err != nil {
			return published, fmt.Errorf("mark notification %d published: %w", n.Seq, err)
		}
		published++
	}
	return published, nil
}

func streamValues(n models.LedgerNotification) map[string]interface{} {
	values := map[string]interface{}{
		"seq":        n.Seq,
		"id":         n.ID,
		"event_id":   n.EventID,
		"kind":       string(n.Kind),
		"actor":      n.Actor,
		"amount":     n.Amount.String(),
		"created_at": n.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if n.Counterparty != "" {
		values["counterparty"] = n.Counterparty
	}
	if n.Rank != 0 {
		values["rank"] = n.Rank
	}
	if n.Detail != "" {
		values["detail"] = n.Detail
	}
	return values
}
