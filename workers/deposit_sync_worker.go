package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"prize-escrow/models"
	"prize-escrow/services"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DepositSyncClient pulls confirmed deposits from the wallet sync service.
type DepositSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewDepositSyncClient(baseURL, token string) *DepositSyncClient {
	return &DepositSyncClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RemoteDeposit is one confirmed deposit as reported by the sync service.
type RemoteDeposit struct {
	ID          string        `json:"id"`
	Asset       string        `json:"asset"`
	Holder      string        `json:"holder"`
	Amount      models.Amount `json:"amount"`
	ConfirmedAt time.Time     `json:"confirmed_at"`
}

func (c *DepositSyncClient) GetConfirmedDeposits(ctx context.Context, since time.Time) ([]RemoteDeposit, error) {
	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/deposits", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call sync service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Deposits []RemoteDeposit `json:"deposits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return response.Deposits, nil
}

// DepositSyncer credits custody balances from the sync service.
type DepositSyncer struct {
	Client  *DepositSyncClient
	Custody *services.CustodyService
	Logger  *zap.Logger

	since time.Time
}

func NewDepositSyncer(client *DepositSyncClient, custody *services.CustodyService, logger *zap.Logger) *DepositSyncer {
	return &DepositSyncer{
		Client:  client,
		Custody: custody,
		Logger:  logger.Named("deposit-sync"),
		since:   time.Now().UTC().Add(-24 * time.Hour),
	}
}

// SyncOnce fetches deposits since the last successful pass and credits each
// one. Replays of an already applied deposit id are skipped by custody. The
// window only advances when every deposit in it was handled.
func (s *DepositSyncer) SyncOnce(ctx context.Context) (applied int, err error) {
	started := time.Now().UTC()

	deposits, err := s.Client.GetConfirmedDeposits(ctx, s.since)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, d := range deposits {
		if d.ID == "" || !common.IsHexAddress(d.Asset) || !common.IsHexAddress(d.Holder) {
			s.Logger.Warn("skipping malformed deposit",
				zap.String("deposit_id", d.ID),
				zap.String("asset", d.Asset),
				zap.String("holder", d.Holder))
			continue
		}
		ok, err := s.Custody.CreditDeposit(ctx, models.CustodyDeposit{
			DepositID:   d.ID,
			Asset:       common.HexToAddress(d.Asset).Hex(),
			Holder:      common.HexToAddress(d.Holder).Hex(),
			Amount:      d.Amount,
			ConfirmedAt: d.ConfirmedAt,
		})
		if err != nil {
			if errors.Is(err, services.ErrZeroAmount) {
				s.Logger.Warn("skipping zero deposit", zap.String("deposit_id", d.ID))
				continue
			}
			failed++
			s.Logger.Error("failed to credit deposit", zap.String("deposit_id", d.ID), zap.Error(err))
			continue
		}
		if ok {
			applied++
		}
	}

	if failed > 0 {
		return applied, fmt.Errorf("%d of %d deposit(s) failed to apply", failed, len(deposits))
	}
	s.since = started
	return applied, nil
}

// Poll runs SyncOnce every interval until ctx is done.
func (s *DepositSyncer) Poll(ctx context.Context, interval time.Duration) {
	s.Logger.Info("Starting deposit polling", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("Deposit polling stopped")
			return
		case <-ticker.C:
			applied, err := s.SyncOnce(ctx)
			if err != nil {
				s.Logger.Warn("deposit sync pass failed", zap.Int("applied", applied), zap.Error(err))
				continue
			}
			if applied > 0 {
				s.Logger.Info("credited deposits", zap.Int("applied", applied))
			}
		}
	}
}
