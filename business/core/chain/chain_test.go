package chain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ardanlabs/sealedger/business/core/chain"
	"go.uber.org/zap"
)

type memStore struct {
	blocks []chain.Block
}

func (m *memStore) LoadChain(ctx context.Context) ([]chain.Block, error) {
	out := make([]chain.Block, len(m.blocks))
	copy(out, m.blocks)
	return out, nil
}

func (m *memStore) Append(ctx context.Context, blk chain.Block) (chain.AppendResult, chain.Block, error) {
	for _, existing := range m.blocks {
		if existing.Hash == blk.Hash {
			return chain.Duplicate, existing, nil
		}
	}

	if len(m.blocks) == 0 {
		if blk.PreviousHash != "" {
			return chain.Rejected, chain.Block{}, nil
		}
		blk.Number = 1
	} else {
		blk.Number = m.blocks[len(m.blocks)-1].Number + 1
	}

	m.blocks = append(m.blocks, blk)
	return chain.Inserted, blk, nil
}

func (m *memStore) ReplaceChain(ctx context.Context, candidate []chain.Block) (chain.ReplaceResult, error) {
	if len(candidate) <= len(m.blocks) {
		return chain.RejectedReplace, nil
	}
	m.blocks = candidate
	return chain.Accepted, nil
}

func (m *memStore) PaginatedRead(ctx context.Context, q chain.PageQuery) (chain.Page, error) {
	return chain.Page{Blocks: m.blocks, Total: len(m.blocks), Page: q.Page, Limit: q.Limit}, nil
}

func (m *memStore) BlocksForCreator(ctx context.Context, creatorID string) ([]chain.Envelope, error) {
	var out []chain.Envelope
	for _, blk := range m.blocks {
		if blk.CreatorID == creatorID {
			out = append(out, chain.Envelope{BlockID: blk.ID, Number: blk.Number, Hash: blk.Hash})
		}
	}
	return out, nil
}

func (m *memStore) Stats(ctx context.Context) (chain.Stats, error) {
	return chain.Stats{TotalBlocks: len(m.blocks)}, nil
}

func (m *memStore) PendingForVerification(ctx context.Context, limit int, minAgeSeconds int) ([]chain.Block, error) {
	var out []chain.Block
	for _, blk := range m.blocks {
		if !blk.Verified {
			out = append(out, blk)
		}
	}
	return out, nil
}

func (m *memStore) MarkVerified(ctx context.Context, blockID string, verified bool) error {
	for i, blk := range m.blocks {
		if blk.ID == blockID {
			m.blocks[i].Verified = verified
		}
	}
	return nil
}

var errBlockNotFound = errors.New("block not found")

func (m *memStore) BlockByNumber(ctx context.Context, number int64) (chain.Block, error) {
	for _, blk := range m.blocks {
		if blk.Number == number {
			return blk, nil
		}
	}
	return chain.Block{}, errBlockNotFound
}

func newStore(t *testing.T) (*chain.Store, *memStore) {
	t.Helper()

	ms := &memStore{}
	s, err := chain.NewStore(context.Background(), zap.NewNop().Sugar(), ms)
	if err != nil {
		t.Fatalf("constructing store: %v", err)
	}
	return s, ms
}

func Test_AppendGenesis(t *testing.T) {
	s, _ := newStore(t)

	result, stored, err := s.Append(context.Background(), chain.Block{ID: "b1", Hash: "hash1"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if result != chain.Inserted {
		t.Fatalf("expected Inserted, got %v", result)
	}
	if stored.Number != 1 {
		t.Fatalf("expected genesis block_number 1, got %d", stored.Number)
	}

	tip, ok := s.LatestBlock()
	if !ok || tip.Hash != "hash1" {
		t.Fatal("expected cached tip to reflect the appended block")
	}
}

func Test_AppendDuplicateHash(t *testing.T) {
	s, _ := newStore(t)

	ctx := context.Background()
	if _, _, err := s.Append(ctx, chain.Block{ID: "b1", Hash: "hash1"}); err != nil {
		t.Fatalf("first append: %v", err)
	}

	result, _, err := s.Append(ctx, chain.Block{ID: "b2", Hash: "hash1"})
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if result != chain.Duplicate {
		t.Fatalf("expected Duplicate, got %v", result)
	}
	if s.Length() != 1 {
		t.Fatalf("expected chain length to stay 1, got %d", s.Length())
	}
}

func Test_ReplaceChain_RejectsShorter(t *testing.T) {
	s, _ := newStore(t)

	ctx := context.Background()
	s.Append(ctx, chain.Block{ID: "b1", Hash: "hash1"})
	s.Append(ctx, chain.Block{ID: "b2", Hash: "hash2", PreviousHash: "hash1"})

	candidate := []chain.Block{{ID: "c1", Hash: "chash1"}}
	result, err := s.ReplaceChain(ctx, candidate)
	if err != nil {
		t.Fatalf("replace chain: %v", err)
	}
	if result != chain.RejectedReplace {
		t.Fatalf("expected a shorter candidate to be rejected, got %v", result)
	}
	if s.Length() != 2 {
		t.Fatalf("expected local chain untouched, got length %d", s.Length())
	}
}

func Test_ReplaceChain_AcceptsStrictlyLonger(t *testing.T) {
	s, _ := newStore(t)

	ctx := context.Background()
	s.Append(ctx, chain.Block{ID: "b1", Hash: "hash1"})

	candidate := []chain.Block{
		{ID: "c1", Number: 1, Hash: "chash1"},
		{ID: "c2", Number: 2, Hash: "chash2", PreviousHash: "chash1"},
	}

	result, err := s.ReplaceChain(ctx, candidate)
	if err != nil {
		t.Fatalf("replace chain: %v", err)
	}
	if result != chain.Accepted {
		t.Fatalf("expected a longer candidate to be accepted, got %v", result)
	}
	if s.Length() != 2 {
		t.Fatalf("expected local chain replaced, got length %d", s.Length())
	}

	tip, ok := s.LatestBlock()
	if !ok || tip.Hash != "chash2" {
		t.Fatal("expected cached tip to reflect the candidate's tip")
	}
}

func Test_LatestBlock_EmptyChain(t *testing.T) {
	s, _ := newStore(t)

	if _, ok := s.LatestBlock(); ok {
		t.Fatal("expected no tip on an empty chain")
	}
}
