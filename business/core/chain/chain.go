package chain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Storer is the set of behaviors the relational store must provide. The
// concrete implementation lives in business/core/chain/store/chaindb.
type Storer interface {
	LoadChain(ctx context.Context) ([]Block, error)
	Append(ctx context.Context, blk Block) (AppendResult, Block, error)
	ReplaceChain(ctx context.Context, candidate []Block) (ReplaceResult, error)
	PaginatedRead(ctx context.Context, q PageQuery) (Page, error)
	BlocksForCreator(ctx context.Context, creatorID string) ([]Envelope, error)
	Stats(ctx context.Context) (Stats, error)
	PendingForVerification(ctx context.Context, limit int, minAgeSeconds int) ([]Block, error)
	MarkVerified(ctx context.Context, blockID string, verified bool) error
	BlockByNumber(ctx context.Context, number int64) (Block, error)
}

// Store manages the in-memory cached tip on top of the durable log: warmed
// from the store at construction, refreshed only after a mutation succeeds.
type Store struct {
	log   *zap.SugaredLogger
	store Storer

	mu      sync.RWMutex
	tip     Block
	hasTip  bool
	length  int
}

// NewStore constructs a chain store and warms its in-memory tip from the
// database.
func NewStore(ctx context.Context, log *zap.SugaredLogger, storer Storer) (*Store, error) {
	s := &Store{
		log:   log,
		store: storer,
	}

	if err := s.reload(ctx); err != nil {
		return nil, fmt.Errorf("warming chain cache: %w", err)
	}

	return s, nil
}

// reload replaces the in-memory tip with the store's current view. Called
// at startup and whenever the cache is suspected to have diverged.
func (s *Store) reload(ctx context.Context) error {
	blocks, err := s.store.LoadChain(ctx)
	if err != nil {
		return fmt.Errorf("loading chain: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.length = len(blocks)
	if len(blocks) == 0 {
		s.hasTip = false
		s.tip = Block{}
		return nil
	}

	s.tip = blocks[len(blocks)-1]
	s.hasTip = true

	return nil
}

// LatestBlock returns the cached tip, and whether one exists yet.
func (s *Store) LatestBlock() (Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tip, s.hasTip
}

// Length returns the cached chain length.
func (s *Store) Length() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.length
}

// Append inserts a validated block, refreshing the in-memory tip only after
// a successful insert.
func (s *Store) Append(ctx context.Context, blk Block) (AppendResult, Block, error) {
	result, stored, err := s.store.Append(ctx, blk)
	if err != nil {
		return Rejected, Block{}, fmt.Errorf("appending block: %w", err)
	}

	if result == Inserted {
		s.mu.Lock()
		s.tip = stored
		s.hasTip = true
		s.length++
		s.mu.Unlock()
	}

	return result, stored, nil
}

// ReplaceChain performs a transactional wholesale swap of the chain,
// accepted only if the candidate is strictly longer than the current chain;
// an equal-length candidate loses the tie and the local chain is kept.
func (s *Store) ReplaceChain(ctx context.Context, candidate []Block) (ReplaceResult, error) {
	s.mu.RLock()
	currentLen := s.length
	s.mu.RUnlock()

	if len(candidate) <= currentLen {
		return RejectedReplace, nil
	}

	result, err := s.store.ReplaceChain(ctx, candidate)
	if err != nil {
		return RejectedReplace, fmt.Errorf("replacing chain: %w", err)
	}

	if result == Accepted {
		if err := s.reload(ctx); err != nil {
			return Accepted, fmt.Errorf("reloading after replace: %w", err)
		}
		s.log.Infow("chain replaced", "new_length", len(candidate))
	}

	return result, nil
}

// PaginatedRead serves GET /blocks.
func (s *Store) PaginatedRead(ctx context.Context, q PageQuery) (Page, error) {
	page, err := s.store.PaginatedRead(ctx, q)
	if err != nil {
		return Page{}, fmt.Errorf("paginated read: %w", err)
	}
	return page, nil
}

// BlocksForCreator serves GET /decrypt/blocks/{creator_id}.
func (s *Store) BlocksForCreator(ctx context.Context, creatorID string) ([]Envelope, error) {
	envs, err := s.store.BlocksForCreator(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("blocks for creator: %w", err)
	}
	return envs, nil
}

// Stats serves GET /blocks/stats/summary.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

// PendingForVerification returns up to limit unverified blocks, ascending
// by block_number, for the verifier's periodic tick.
func (s *Store) PendingForVerification(ctx context.Context, limit int, minAgeSeconds int) ([]Block, error) {
	blocks, err := s.store.PendingForVerification(ctx, limit, minAgeSeconds)
	if err != nil {
		return nil, fmt.Errorf("pending for verification: %w", err)
	}
	return blocks, nil
}

// MarkVerified records a verification outcome. This is the only mutation
// the store permits on an already appended block.
func (s *Store) MarkVerified(ctx context.Context, blockID string, verified bool) error {
	if err := s.store.MarkVerified(ctx, blockID, verified); err != nil {
		return fmt.Errorf("marking verified: %w", err)
	}
	return nil
}

// BlockByNumber fetches a single block for chain-link checks.
func (s *Store) BlockByNumber(ctx context.Context, number int64) (Block, error) {
	blk, err := s.store.BlockByNumber(ctx, number)
	if err != nil {
		return Block{}, fmt.Errorf("block by number %d: %w", number, err)
	}
	return blk, nil
}
