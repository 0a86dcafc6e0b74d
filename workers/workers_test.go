package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"prize-escrow/models"
	"prize-escrow/services"
	"prize-escrow/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	asset   = common.HexToAddress("0x00000000000000000000000000000000000a55e7")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	custody = common.HexToAddress("0x0000000000000000000000000000000000c05701")
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func seedNotifications(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		require.NoError(t, db.Create(&models.LedgerNotification{
			ID:      fmt.Sprintf("note-%d", i),
			EventID: "cup",
			Kind:    models.NotificationRegistered,
			Actor:   alice.Hex(),
			Amount:  models.NewAmount(uint64(i)),
		}).Error)
	}
}

func newRelay(t *testing.T, db *gorm.DB, batch int) (*NotificationRelay, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	streams := utils.NewStreamClientFrom(rdb, 0, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = streams.Close() })
	return NewNotificationRelay(db, streams, "escrow:notifications", batch, zaptest.NewLogger(t)), mr
}

func TestRelayPublishesInSeqOrder(t *testing.T) {
	db := newTestDB(t)
	seedNotifications(t, db, 5)
	relay, mr := newRelay(t, db, 3)
	ctx := context.Background()

	n, err := relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	entries, err := mr.Stream("escrow:notifications")
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, e := range entries {
		fields := map[string]string{}
		for j := 0; j+1 < len(e.Values); j += 2 {
			fields[e.Values[j]] = e.Values[j+1]
		}
		assert.Equal(t, fmt.Sprint(i+1), fields["seq"])
		assert.Equal(t, fmt.Sprint(i+1), fields["amount"])
		assert.Equal(t, string(models.NotificationRegistered), fields["kind"])
		assert.Equal(t, "cup", fields["event_id"])
	}

	var unpublished int64
	require.NoError(t, db.Model(&models.LedgerNotification{}).Where("published_at IS NULL").Count(&unpublished).Error)
	assert.Zero(t, unpublished)
}

func TestRelayLeavesRowsPendingWhenRedisFails(t *testing.T) {
	db := newTestDB(t)
	seedNotifications(t, db, 2)
	relay, mr := newRelay(t, db, 10)

	mr.SetError("ERR injected failure")
	n, err := relay.RelayOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, n)

	var unpublished int64
	require.NoError(t, db.Model(&models.LedgerNotification{}).Where("published_at IS NULL").Count(&unpublished).Error)
	assert.Equal(t, int64(2), unpublished)

	mr.SetError("")
	n, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRelayStartStop(t *testing.T) {
	db := newTestDB(t)
	seedNotifications(t, db, 1)
	relay, _ := newRelay(t, db, 10)

	require.NoError(t, relay.Start(context.Background(), 20*time.Millisecond))
	defer relay.Stop()

	require.Eventually(t, func() bool {
		var unpublished int64
		if err := db.Model(&models.LedgerNotification{}).Where("published_at IS NULL").Count(&unpublished).Error; err != nil {
			return false
		}
		return unpublished == 0
	}, 2*time.Second, 20*time.Millisecond)
}

type depositServer struct {
	*httptest.Server
	status   atomic.Int32
	lastSync atomic.Value
}

func newDepositServer(t *testing.T, deposits []map[string]interface{}) *depositServer {
	t.Helper()
	s := &depositServer{}
	s.status.Store(http.StatusOK)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/public/deposits" || r.Header.Get("X-Service-Token") != "svc-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.lastSync.Store(r.URL.Query().Get("since"))
		if code := int(s.status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			_, _ = w.Write([]byte("unavailable"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"deposits": deposits})
	}))
	t.Cleanup(s.Close)
	return s
}

func TestDepositSyncCreditsOnce(t *testing.T) {
	db := newTestDB(t)
	log := zaptest.NewLogger(t)
	custodySvc := services.NewCustodyService(db, custody, log)

	srv := newDepositServer(t, []map[string]interface{}{
		{"id": "dep-1", "asset": asset.Hex(), "holder": alice.Hex(), "amount": "40", "confirmed_at": time.Now().UTC()},
		{"id": "dep-2", "asset": asset.Hex(), "holder": alice.Hex(), "amount": "2", "confirmed_at": time.Now().UTC()},
		{"id": "dep-3", "asset": "not-an-address", "holder": alice.Hex(), "amount": "9"},
		{"id": "dep-4", "asset": asset.Hex(), "holder": alice.Hex(), "amount": "0"},
	})
	syncer := NewDepositSyncer(NewDepositSyncClient(srv.URL+"/", "svc-token"), custodySvc, log)
	ctx := context.Background()

	applied, err := syncer.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.NotEmpty(t, srv.lastSync.Load())

	applied, err = syncer.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	bal, err := custodySvc.BalanceOf(ctx, asset, alice)
	require.NoError(t, err)
	assert.Equal(t, "42", bal.String())
}

func TestDepositSyncKeepsWindowOnFailure(t *testing.T) {
	db := newTestDB(t)
	log := zaptest.NewLogger(t)
	srv := newDepositServer(t, nil)
	srv.status.Store(http.StatusServiceUnavailable)

	syncer := NewDepositSyncer(NewDepositSyncClient(srv.URL, "svc-token"), services.NewCustodyService(db, custody, log), log)
	before := syncer.since

	_, err := syncer.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, before, syncer.since)

	srv.status.Store(http.StatusOK)
	_, err = syncer.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, syncer.since.After(before))
}

func TestDepositSyncRejectsBadToken(t *testing.T) {
	srv := newDepositServer(t, nil)
	client := NewDepositSyncClient(srv.URL, "wrong")
	_, err := client.GetConfirmedDeposits(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
