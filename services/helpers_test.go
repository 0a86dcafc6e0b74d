package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"prize-escrow/merkle"
	"prize-escrow/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	testAsset    = common.HexToAddress("0x00000000000000000000000000000000000a55e7")
	testOperator = common.HexToAddress("0x000000000000000000000000000000000000000f")
	testCustody  = common.HexToAddress("0x0000000000000000000000000000000000c05701")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob          = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol        = common.HexToAddress("0x00000000000000000000000000000000000ca401")
	oneEther     = models.MustParseAmount("1000000000000000000")
)

// newTestDB opens a private in-memory sqlite database. A single connection
// keeps the database alive for the whole test.
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

type harness struct {
	db      *gorm.DB
	clock   *clockwork.FakeClock
	custody *CustodyService
	escrow  *EscrowService
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	db := newTestDB(t)
	log := zaptest.NewLogger(t)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	custody := NewCustodyService(db, testCustody, log)
	return &harness{
		db:      db,
		clock:   clock,
		custody: custody,
		escrow:  NewEscrowService(db, custody, NewOperatorSet(testOperator), clock, policy, log),
	}
}

// fund credits holder with amount of the test asset.
func (h *harness) fund(t *testing.T, holder common.Address, amount models.Amount) {
	t.Helper()
	applied, err := h.custody.CreditDeposit(context.Background(), models.CustodyDeposit{
		DepositID:   uuid.NewString(),
		Asset:       testAsset.Hex(),
		Holder:      holder.Hex(),
		Amount:      amount,
		ConfirmedAt: h.clock.Now(),
	})
	require.NoError(t, err)
	require.True(t, applied)
}

func (h *harness) balance(t *testing.T, holder common.Address) models.Amount {
	t.Helper()
	bal, err := h.custody.BalanceOf(context.Background(), testAsset, holder)
	require.NoError(t, err)
	return bal
}

func (h *harness) createEvent(t *testing.T, id string, fee models.Amount) {
	t.Helper()
	_, err := h.escrow.CreateEvent(context.Background(), testOperator, CreateEventParams{
		EventID:  id,
		Name:     "Event " + id,
		AssetID:  testAsset,
		EntryFee: fee,
	})
	require.NoError(t, err)
}

func (h *harness) pool(t *testing.T, id string) models.Amount {
	t.Helper()
	ev, err := h.escrow.GetEventInfo(context.Background(), id)
	require.NoError(t, err)
	return ev.PoolBalance
}

// commit builds a winners tree and returns it with each winner's proof.
func commit(t *testing.T, winners ...merkle.Winner) (*merkle.Tree, map[common.Address][]common.Hash) {
	t.Helper()
	tree, err := merkle.Build(winners)
	require.NoError(t, err)
	proofs := make(map[common.Address][]common.Hash, len(winners))
	for _, w := range winners {
		p, err := tree.ProofFor(w)
		require.NoError(t, err)
		proofs[w.Account] = p
	}
	return tree, proofs
}

func participant(i int) common.Address {
	return common.HexToAddress(fmt.Sprintf("0x%040x", 0x1000+i))
}

// failingLedger rejects every transfer.
type failingLedger struct{}

var errLedgerDown = errors.New("ledger unavailable")

func (failingLedger) Pull(context.Context, common.Address, common.Address, models.Amount) error {
	return errLedgerDown
}

func (failingLedger) Push(context.Context, common.Address, common.Address, models.Amount) error {
	return errLedgerDown
}
