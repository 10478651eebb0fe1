// Package mining implements the two-phase mine-and-commit protocol:
// prepare_mining hands a client the material needed to search for a
// proof-of-work nonce, commit_block replays every check server-side before
// appending. The actual PoW search never runs here; it is delegated
// entirely to clients.
package mining

import (
	"context"
	"fmt"
	"time"

	"github.com/ardanlabs/sealedger/business/core/chain"
	"github.com/ardanlabs/sealedger/business/core/creator"
	"github.com/ardanlabs/sealedger/internal/cryptutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// dataSizeTolerance is the slack allowed between a payload's declared
// data_size and the measured sum of its ciphertext parts.
const dataSizeTolerance = 128

// Broadcaster is notified after a block is appended so it can be gossiped
// to peers (C4). Implemented by business/core/gossip.
type Broadcaster interface {
	Broadcast(ctx context.Context, blk chain.Block)
}

// Core manages the mine-and-commit workflow.
type Core struct {
	log        *zap.SugaredLogger
	chain      *chain.Store
	creators   *creator.Core
	broadcast  Broadcaster
	difficulty int
	maxDataSize int64
}

// Config bundles the collaborators and process-wide knobs Core needs.
type Config struct {
	Log         *zap.SugaredLogger
	Chain       *chain.Store
	Creators    *creator.Core
	Broadcast   Broadcaster
	Difficulty  int
	MaxDataSize int64
}

// NewCore constructs a mining core for use.
func NewCore(cfg Config) *Core {
	return &Core{
		log:         cfg.Log,
		chain:       cfg.Chain,
		creators:    cfg.Creators,
		broadcast:   cfg.Broadcast,
		difficulty:  cfg.Difficulty,
		maxDataSize: cfg.MaxDataSize,
	}
}

// PrepareMining resolves the creator and current tip a client needs to
// begin a proof-of-work search.
func (c *Core) PrepareMining(ctx context.Context, displayName string, dataTextLength int) (Preparation, error) {
	crt, err := c.creators.QueryByDisplayName(ctx, displayName)
	if err != nil {
		return Preparation{}, ErrCreatorMissing
	}

	if !crt.Active {
		return Preparation{}, ErrCreatorMissing
	}

	if int64(dataTextLength) > c.maxDataSize {
		return Preparation{}, fmt.Errorf("%w: data_text_length %d exceeds MAX_DATA_SIZE %d", ErrShapeInvalid, dataTextLength, c.maxDataSize)
	}

	previousHash := cryptutil.GenesisSentinel
	if tip, ok := c.chain.LatestBlock(); ok {
		previousHash = tip.Hash
	}

	return Preparation{
		CreatorID:    crt.ID,
		PublicKeyPEM: crt.PublicKeyPEM,
		PreviousHash: previousHash,
		Difficulty:   c.difficulty,
	}, nil
}

// CommitBlock runs the full validation pipeline against a client-submitted
// candidate and, on success, appends it and notifies the gossip layer.
func (c *Core) CommitBlock(ctx context.Context, payload CommitPayload) (chain.Block, chain.AppendResult, error) {
	// 1. Creator existence.
	crt, err := c.creators.QueryByID(ctx, payload.CreatorID)
	if err != nil {
		return chain.Block{}, chain.Rejected, ErrCreatorMissing
	}
	if !crt.Active {
		return chain.Block{}, chain.Rejected, ErrCreatorMissing
	}

	// 2. Signature.
	if err := cryptutil.VerifyBlockHashSignature(crt.PublicKey, payload.BlockHash, payload.Signature); err != nil {
		return chain.Block{}, chain.Rejected, ErrSignatureInvalid
	}

	// 3. Proof-of-work.
	if !cryptutil.HasDifficultyPrefix(payload.BlockHash, payload.Difficulty) {
		return chain.Block{}, chain.Rejected, ErrPoWFailed
	}

	// 4. Hash recomputation.
	input := cryptutil.HashInput(cryptutil.HashInputFields{
		PreviousHash:     payload.PreviousHash,
		EncryptedData:    payload.EncryptedData,
		DataIV:           payload.DataIV,
		EncryptedDataKey: payload.EncryptedDataKey,
		Nonce:            payload.Nonce,
		CreatedAt:        payload.CreatedAt,
		CreatorID:        payload.CreatorID,
		Difficulty:       payload.Difficulty,
	})
	recomputed := cryptutil.BlockHash(input)
	if !cryptutil.ConstantTimeHashEqual(recomputed, payload.BlockHash) {
		return chain.Block{}, chain.Rejected, ErrHashMismatch
	}

	// 5. Shape checks.
	if err := c.checkShape(payload, crt); err != nil {
		return chain.Block{}, chain.Rejected, err
	}

	// 6. Previous hash / tip-moved. A candidate must reference the current
	// tip exactly; an empty chain accepts only the genesis sentinel.
	tip, hasTip := c.chain.LatestBlock()
	switch {
	case hasTip && payload.PreviousHash != tip.Hash:
		return chain.Block{}, chain.Rejected, ErrTipMoved
	case !hasTip && payload.PreviousHash != cryptutil.GenesisSentinel:
		return chain.Block{}, chain.Rejected, ErrTipMoved
	}

	createdAt, err := time.Parse(time.RFC3339, payload.CreatedAt)
	if err != nil {
		return chain.Block{}, chain.Rejected, fmt.Errorf("%w: created_at not ISO-8601", ErrShapeInvalid)
	}

	blk := chain.Block{
		ID:               uuid.NewString(),
		CreatorID:        payload.CreatorID,
		PreviousHash:     normalizePreviousHash(payload.PreviousHash),
		Hash:             payload.BlockHash,
		Nonce:            payload.Nonce,
		Difficulty:       payload.Difficulty,
		EncryptedData:    payload.EncryptedData,
		DataIV:           payload.DataIV,
		EncryptedDataKey: payload.EncryptedDataKey,
		DataSize:         payload.DataSize,
		Signature:        payload.Signature,
		CreatedAt:        createdAt,
		MiningDurationMs: payload.MiningDurationMs,
	}

	// 7. Append.
	result, stored, err := c.chain.Append(ctx, blk)
	if err != nil {
		return chain.Block{}, chain.Rejected, fmt.Errorf("appending: %w", err)
	}

	if result == chain.Inserted && c.broadcast != nil {
		c.broadcast.Broadcast(ctx, stored)
	}

	c.log.Infow("block committed", "result", result.String(), "block_number", stored.Number, "creator_id", stored.CreatorID)

	return stored, result, nil
}

// normalizePreviousHash stores an empty previous_hash for the genesis
// block rather than the sentinel string, matching the column's NULL shape.
func normalizePreviousHash(hash string) string {
	if hash == cryptutil.GenesisSentinel {
		return ""
	}
	return hash
}

func (c *Core) checkShape(payload CommitPayload, crt creator.Creator) error {
	if len(payload.DataIV) != cryptutil.GCMIVSize {
		return fmt.Errorf("%w: data_iv must be %d bytes", ErrShapeInvalid, cryptutil.GCMIVSize)
	}

	wantKeyLen := cryptutil.KeySizeBytes(crt.PublicKey)
	if len(payload.EncryptedDataKey) != wantKeyLen {
		return fmt.Errorf("%w: encrypted_data_key must be %d bytes for this creator's key", ErrShapeInvalid, wantKeyLen)
	}

	if len(payload.EncryptedData) < cryptutil.GCMTagSize {
		return fmt.Errorf("%w: encrypted_data must be at least %d bytes", ErrShapeInvalid, cryptutil.GCMTagSize)
	}

	measured := int64(len(payload.EncryptedData) + len(payload.DataIV) + len(payload.EncryptedDataKey))
	diff := payload.DataSize - measured
	if diff < -dataSizeTolerance || diff > dataSizeTolerance {
		return fmt.Errorf("%w: data_size %d outside tolerance of measured %d", ErrShapeInvalid, payload.DataSize, measured)
	}

	if payload.Difficulty < 1 || payload.Difficulty > 10 {
		return fmt.Errorf("%w: difficulty must be between 1 and 10", ErrShapeInvalid)
	}

	return nil
}
