package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"prize-escrow/merkle"
	"prize-escrow/models"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrDuplicateWinner = errors.New("account appears more than once in winners")
	ErrNotWinner       = errors.New("account is not in the commitment")
)

// ArtifactStore publishes commitment documents and returns where they live.
type ArtifactStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// CommitmentService builds the off-ledger winners tree for an event and keeps
// every winner's proof. The ledger never reads what it stores; operators copy
// the root into Finalize and winners fetch their proofs from here.
type CommitmentService struct {
	DB     *gorm.DB
	Store  ArtifactStore // nil keeps artifacts in the database only
	Pool   pond.Pool
	Logger *zap.Logger
}

func NewCommitmentService(db *gorm.DB, store ArtifactStore, workers int, logger *zap.Logger) *CommitmentService {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommitmentService{
		DB:     db,
		Store:  store,
		Pool:   pond.NewPool(workers),
		Logger: logger,
	}
}

// Close drains the verification pool.
func (s *CommitmentService) Close() {
	s.Pool.StopAndWait()
}

// Build commits to winners for an open event, checks every proof against the
// new root, publishes the document and records it. Building again before
// finalization replaces the previous artifact.
func (s *CommitmentService) Build(ctx context.Context, eventID string, winners []merkle.Winner) (*models.CommitmentArtifact, *models.CommitmentDocument, error) {
	var ev models.EscrowEvent
	err := s.DB.WithContext(ctx).Select("event_id", "finalized").First(&ev, "event_id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load event %s: %w", eventID, err)
	}
	if ev.Finalized {
		return nil, nil, ErrAlreadyFinalized
	}

	seen := make(map[common.Address]struct{}, len(winners))
	for _, w := range winners {
		if _, dup := seen[w.Account]; dup {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateWinner, w.Account.Hex())
		}
		seen[w.Account] = struct{}{}
	}

	tree, err := merkle.Build(winners)
	if err != nil {
		return nil, nil, err
	}
	root := tree.Root()

	sorted := append([]merkle.Winner(nil), winners...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	doc := &models.CommitmentDocument{
		EventID: eventID,
		Root:    root.Hex(),
		Leaves:  make([]models.CommitmentLeaf, len(sorted)),
	}
	proofs := make([][]common.Hash, len(sorted))
	for i, w := range sorted {
		proof, err := tree.ProofFor(w)
		if err != nil {
			return nil, nil, fmt.Errorf("proof for %s: %w", w.Account.Hex(), err)
		}
		proofs[i] = proof
		hexProof := make([]string, len(proof))
		for j, p := range proof {
			hexProof[j] = p.Hex()
		}
		doc.Leaves[i] = models.CommitmentLeaf{
			Account: w.Account.Hex(),
			Rank:    w.Rank,
			Leaf:    w.Leaf().Hex(),
			Proof:   hexProof,
		}
	}

	if err := s.verifyAll(ctx, root, sorted, proofs); err != nil {
		return nil, nil, err
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("encode commitment: %w", err)
	}

	artifact := &models.CommitmentArtifact{
		EventID:     eventID,
		ID:          uuid.NewString(),
		Root:        root.Hex(),
		WinnerCount: len(sorted),
		Payload:     string(payload),
	}
	if s.Store != nil {
		key := fmt.Sprintf("commitments/%s/%s.json", eventID, root.Hex())
		url, err := s.Store.Put(ctx, key, payload, "application/json")
		if err != nil {
			return nil, nil, fmt.Errorf("upload commitment: %w", err)
		}
		artifact.ObjectKey = key
		artifact.URL = url
	}

	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"id", "root", "winner_count", "object_key", "url", "payload", "updated_at"}),
	}).Create(artifact).Error; err != nil {
		return nil, nil, fmt.Errorf("save commitment: %w", err)
	}

	s.Logger.Info("commitment built",
		zap.String("event_id", eventID),
		zap.String("root", artifact.Root),
		zap.Int("winners", artifact.WinnerCount),
		zap.String("url", artifact.URL),
	)
	return artifact, doc, nil
}

// verifyAll re-checks every proof against root on the worker pool.
func (s *CommitmentService) verifyAll(ctx context.Context, root common.Hash, winners []merkle.Winner, proofs [][]common.Hash) error {
	group := s.Pool.NewGroupContext(ctx)
	for i := range winners {
		w, proof := winners[i], proofs[i]
		group.SubmitErr(func() error {
			if !merkle.Verify(proof, root, w.Leaf()) {
				return fmt.Errorf("proof for %s does not reach root %s", w.Account.Hex(), root.Hex())
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("verify commitment: %w", err)
	}
	return nil
}

// GetArtifact returns the stored commitment for an event.
func (s *CommitmentService) GetArtifact(ctx context.Context, eventID string) (*models.CommitmentArtifact, error) {
	var artifact models.CommitmentArtifact
	err := s.DB.WithContext(ctx).First(&artifact, "event_id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load commitment %s: %w", eventID, err)
	}
	return &artifact, nil
}

// GetProof returns account's rank and proof from the stored commitment.
func (s *CommitmentService) GetProof(ctx context.Context, eventID string, account common.Address) (*models.CommitmentLeaf, string, error) {
	artifact, err := s.GetArtifact(ctx, eventID)
	if err != nil {
		return nil, "", err
	}
	var doc models.CommitmentDocument
	if err := json.Unmarshal([]byte(artifact.Payload), &doc); err != nil {
		return nil, "", fmt.Errorf("decode commitment %s: %w", eventID, err)
	}
	for i := range doc.Leaves {
		if common.HexToAddress(doc.Leaves[i].Account) == account {
			return &doc.Leaves[i], doc.Root, nil
		}
	}
	return nil, "", ErrNotWinner
}
