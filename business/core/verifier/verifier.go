// Package verifier implements the periodic background task that
// re-validates appended blocks: hash recomputation, proof-of-work,
// chain-link, and signature checks, updating only (verified, verified_at).
// The ticker/shutdown-channel/WaitGroup shape drives its own background
// tick loop, with a force channel for out-of-band ticks.
package verifier

import (
	"context"
	"sync"
	"time"

	"github.com/ardanlabs/sealedger/business/core/audit"
	"github.com/ardanlabs/sealedger/business/core/chain"
	"github.com/ardanlabs/sealedger/business/core/creator"
	"github.com/ardanlabs/sealedger/internal/cryptutil"
	"go.uber.org/zap"
)

// Config bundles the collaborators and knobs needed to run the verifier.
type Config struct {
	Log          *zap.SugaredLogger
	Chain        *chain.Store
	Creators     *creator.Core
	Audit        *audit.Core
	Period       time.Duration
	BatchSize    int
	MinAgeSeconds int
}

// Verifier drives the periodic re-validation tick.
type Verifier struct {
	log           *zap.SugaredLogger
	chain         *chain.Store
	creators      *creator.Core
	audit         *audit.Core
	batchSize     int
	minAgeSeconds int

	ticker *time.Ticker
	wg     sync.WaitGroup
	shut   chan struct{}
	force  chan chan struct{}
}

// Run constructs a verifier and starts its background goroutine.
func Run(cfg Config) *Verifier {
	v := &Verifier{
		log:           cfg.Log,
		chain:         cfg.Chain,
		creators:      cfg.Creators,
		audit:         cfg.Audit,
		batchSize:     cfg.BatchSize,
		minAgeSeconds: cfg.MinAgeSeconds,
		ticker:        time.NewTicker(cfg.Period),
		shut:          make(chan struct{}),
		force:         make(chan chan struct{}),
	}

	v.wg.Add(1)
	started := make(chan struct{})
	go func() {
		defer v.wg.Done()
		close(started)
		v.loop()
	}()
	<-started

	return v
}

// Shutdown stops the ticker and waits for the in-flight tick, if any, to
// finish.
func (v *Verifier) Shutdown() {
	v.log.Infow("verifier: shutdown started")
	defer v.log.Infow("verifier: shutdown complete")

	v.ticker.Stop()
	close(v.shut)
	v.wg.Wait()
}

// ForceTick runs one verification tick out of band, used by the operator
// CLI's "chain verify-now" command, and blocks until it completes.
func (v *Verifier) ForceTick() {
	done := make(chan struct{})
	select {
	case v.force <- done:
		<-done
	case <-v.shut:
	}
}

func (v *Verifier) loop() {
	for {
		select {
		case <-v.ticker.C:
			v.tick()

		case done := <-v.force:
			v.tick()
			close(done)

		case <-v.shut:
			return
		}
	}
}

// tick performs one round of verification. Any per-block error marks that
// block unverified without aborting the round.
func (v *Verifier) tick() {
	ctx := context.Background()

	blocks, err := v.chain.PendingForVerification(ctx, v.batchSize, v.minAgeSeconds)
	if err != nil {
		v.log.Errorw("verifier: tick: reading pending blocks", "error", err)
		return
	}

	for _, blk := range blocks {
		ok, reason := v.check(ctx, blk)

		if err := v.chain.MarkVerified(ctx, blk.ID, ok); err != nil {
			v.log.Errorw("verifier: marking verified", "block_id", blk.ID, "error", err)
			continue
		}

		event := audit.EventBlockVerifiedOK
		if !ok {
			event = audit.EventBlockVerifiedFail
		}

		if err := v.audit.Record(ctx, audit.Event{
			Type:    event,
			Subject: blk.ID,
			Reason:  reason,
		}); err != nil {
			v.log.Errorw("verifier: recording audit event", "block_id", blk.ID, "error", err)
		}
	}
}

// check runs the hash, PoW, chain-link, signature, and shape checks for a
// single block, returning whether it passed and, if not, why.
func (v *Verifier) check(ctx context.Context, blk chain.Block) (bool, string) {
	input := cryptutil.HashInput(cryptutil.HashInputFields{
		PreviousHash:     blk.PreviousHash,
		EncryptedData:    blk.EncryptedData,
		DataIV:           blk.DataIV,
		EncryptedDataKey: blk.EncryptedDataKey,
		Nonce:            blk.Nonce,
		CreatedAt:        blk.CreatedAt.Format(time.RFC3339),
		CreatorID:        blk.CreatorID,
		Difficulty:       blk.Difficulty,
	})
	if !cryptutil.ConstantTimeHashEqual(cryptutil.BlockHash(input), blk.Hash) {
		return false, "hash-mismatch"
	}

	if !cryptutil.HasDifficultyPrefix(blk.Hash, blk.Difficulty) {
		return false, "pow-failed"
	}

	if ok, reason := v.checkChainLink(ctx, blk); !ok {
		return false, reason
	}

	crt, err := v.creators.QueryByID(ctx, blk.CreatorID)
	if err != nil {
		return false, "creator-missing"
	}
	if err := cryptutil.VerifyBlockHashSignature(crt.PublicKey, blk.Hash, blk.Signature); err != nil {
		return false, "signature-invalid"
	}

	if len(blk.DataIV) != cryptutil.GCMIVSize || len(blk.EncryptedData) < cryptutil.GCMTagSize {
		return false, "shape-invalid"
	}

	return true, ""
}

func (v *Verifier) checkChainLink(ctx context.Context, blk chain.Block) (bool, string) {
	if blk.Number == 1 {
		if blk.PreviousHash != "" && blk.PreviousHash != cryptutil.GenesisSentinel {
			return false, "genesis-violation"
		}
		return true, ""
	}

	prev, err := v.chain.BlockByNumber(ctx, blk.Number-1)
	if err != nil {
		return false, "chain-link-missing"
	}

	if prev.Hash != blk.PreviousHash {
		return false, "chain-link-broken"
	}

	return true, ""
}
