// Package blockgrp maintains the group of handlers for block access and
// the mine-and-commit workflow.
package blockgrp

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/sealedger/business/core/chain"
	"github.com/ardanlabs/sealedger/business/core/creator"
	"github.com/ardanlabs/sealedger/business/core/mining"
	v1 "github.com/ardanlabs/sealedger/business/web/v1"
	"github.com/ardanlabs/sealedger/foundation/web"
)

// Handlers manages the set of block endpoints.
type Handlers struct {
	chain  *chain.Store
	mining *mining.Core
}

// New constructs a blockgrp handlers value.
func New(chn *chain.Store, min *mining.Core) *Handlers {
	return &Handlers{
		chain:  chn,
		mining: min,
	}
}

type appBlock struct {
	BlockID          string  `json:"block_id"`
	BlockNumber      int64   `json:"block_number"`
	CreatorID        string  `json:"creator_id,omitempty"`
	PreviousHash     string  `json:"previous_hash,omitempty"`
	BlockHash        string  `json:"block_hash"`
	Nonce            uint64  `json:"nonce"`
	Difficulty       int     `json:"difficulty"`
	EncryptedData    string  `json:"encrypted_data"`
	DataIV           string  `json:"data_iv"`
	EncryptedDataKey string  `json:"encrypted_data_key"`
	DataSize         int64   `json:"data_size"`
	Signature        string  `json:"signature"`
	CreatedAt        string  `json:"created_at"`
	Verified         bool    `json:"verified"`
	VerifiedAt       *string `json:"verified_at,omitempty"`
	MiningDurationMs int64   `json:"mining_duration_ms"`
}

func toAppBlock(blk chain.Block) appBlock {
	ab := appBlock{
		BlockID:          blk.ID,
		BlockNumber:      blk.Number,
		CreatorID:        blk.CreatorID,
		PreviousHash:     blk.PreviousHash,
		BlockHash:        blk.Hash,
		Nonce:            blk.Nonce,
		Difficulty:       blk.Difficulty,
		EncryptedData:    hex.EncodeToString(blk.EncryptedData),
		DataIV:           hex.EncodeToString(blk.DataIV),
		EncryptedDataKey: hex.EncodeToString(blk.EncryptedDataKey),
		DataSize:         blk.DataSize,
		Signature:        hex.EncodeToString(blk.Signature),
		CreatedAt:        blk.CreatedAt.Format(time.RFC3339),
		Verified:         blk.Verified,
		MiningDurationMs: blk.MiningDurationMs,
	}
	if blk.VerifiedAt != nil {
		s := blk.VerifiedAt.Format(time.RFC3339)
		ab.VerifiedAt = &s
	}
	return ab
}

// List returns a paginated view of blocks (GET /blocks).
func (h *Handlers) List(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 25
	}

	verified := chain.FilterAll
	switch q.Get("verified") {
	case "true":
		verified = chain.FilterTrue
	case "false":
		verified = chain.FilterFalse
	}

	sortBy := chain.SortNewest
	switch q.Get("sortBy") {
	case "oldest":
		sortBy = chain.SortOldest
	case "block_number":
		sortBy = chain.SortBlockNumber
	}

	result, err := h.chain.PaginatedRead(ctx, chain.PageQuery{Page: page, Limit: limit, Verified: verified, Sort: sortBy})
	if err != nil {
		return v1.NewRequestError(err, v1.KindDatabase)
	}

	out := make([]appBlock, len(result.Blocks))
	for i, blk := range result.Blocks {
		out[i] = toAppBlock(blk)
	}

	return web.Respond(ctx, w, map[string]any{
		"blocks": out,
		"page":   result.Page,
		"limit":  result.Limit,
		"total":  result.Total,
	}, http.StatusOK)
}

type prepareMiningRequest struct {
	DisplayName string `json:"display_name"`
	DataText    string `json:"data_text"`
}

// PrepareMining resolves the material a client needs to start a
// proof-of-work search (POST /blocks/prepare-mining).
func (h *Handlers) PrepareMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req prepareMiningRequest
	if err := web.Decode(r, &req); err != nil {
		return v1.NewRequestError(err, v1.KindValidation)
	}

	prep, err := h.mining.PrepareMining(ctx, req.DisplayName, len(req.DataText))
	if err != nil {
		return mapMiningError(err)
	}

	return web.Respond(ctx, w, map[string]any{
		"creator_id":     prep.CreatorID,
		"public_key_pem": prep.PublicKeyPEM,
		"previous_hash":  prep.PreviousHash,
		"difficulty":     prep.Difficulty,
	}, http.StatusOK)
}

type commitBlockRequest struct {
	CreatorID        string `json:"creator_id"`
	PreviousHash     string `json:"previous_hash"`
	BlockHash        string `json:"block_hash"`
	Nonce            string `json:"nonce"`
	Difficulty       int    `json:"difficulty"`
	EncryptedData    string `json:"encrypted_data"`
	DataIV           string `json:"data_iv"`
	EncryptedDataKey string `json:"encrypted_data_key"`
	DataSize         int64  `json:"data_size"`
	Signature        string `json:"signature"`
	CreatedAt        string `json:"created_at"`
	MiningDurationMs int64  `json:"mining_duration_ms"`
}

// Commit validates and appends a mined block (POST /blocks/commit).
func (h *Handlers) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req commitBlockRequest
	if err := web.Decode(r, &req); err != nil {
		return v1.NewRequestError(err, v1.KindValidation)
	}

	nonce, err := strconv.ParseUint(req.Nonce, 10, 64)
	if err != nil {
		return v1.NewRequestError(errors.New("nonce must be a string-encoded integer"), v1.KindValidation)
	}

	encryptedData, err := hex.DecodeString(req.EncryptedData)
	if err != nil {
		return v1.NewRequestError(errors.New("encrypted_data must be lowercase hex"), v1.KindValidation)
	}
	dataIV, err := hex.DecodeString(req.DataIV)
	if err != nil {
		return v1.NewRequestError(errors.New("data_iv must be lowercase hex"), v1.KindValidation)
	}
	encryptedDataKey, err := hex.DecodeString(req.EncryptedDataKey)
	if err != nil {
		return v1.NewRequestError(errors.New("encrypted_data_key must be lowercase hex"), v1.KindValidation)
	}
	signature, err := hex.DecodeString(req.Signature)
	if err != nil {
		return v1.NewRequestError(errors.New("signature must be lowercase hex"), v1.KindValidation)
	}

	payload := mining.CommitPayload{
		CreatorID:        req.CreatorID,
		PreviousHash:     req.PreviousHash,
		BlockHash:        req.BlockHash,
		Nonce:            nonce,
		Difficulty:       req.Difficulty,
		EncryptedData:    encryptedData,
		DataIV:           dataIV,
		EncryptedDataKey: encryptedDataKey,
		DataSize:         req.DataSize,
		Signature:        signature,
		CreatedAt:        req.CreatedAt,
		MiningDurationMs: req.MiningDurationMs,
	}

	blk, result, err := h.mining.CommitBlock(ctx, payload)
	if err != nil {
		return mapMiningError(err)
	}

	status := http.StatusCreated
	if result == chain.Duplicate {
		status = http.StatusOK
	}

	return web.Respond(ctx, w, map[string]any{
		"block":  toAppBlock(blk),
		"result": result.String(),
	}, status)
}

// Stats returns aggregate chain figures (GET /blocks/stats/summary).
func (h *Handlers) Stats(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	stats, err := h.chain.Stats(ctx)
	if err != nil {
		return v1.NewRequestError(err, v1.KindDatabase)
	}

	return web.Respond(ctx, w, map[string]any{"stats": stats}, http.StatusOK)
}

// mapMiningError translates the sentinel errors the mining coordinator
// returns into the v1 request-error taxonomy.
func mapMiningError(err error) error {
	switch {
	case errors.Is(err, mining.ErrCreatorMissing), errors.Is(err, creator.ErrNotFound):
		return v1.NewRequestErrorWithCode(err, v1.KindNotFound, "creator-missing")
	case errors.Is(err, mining.ErrSignatureInvalid):
		return v1.NewRequestErrorWithCode(err, v1.KindCrypto, "signature-invalid")
	case errors.Is(err, mining.ErrHashMismatch):
		return v1.NewRequestErrorWithCode(err, v1.KindCrypto, "hash-mismatch")
	case errors.Is(err, mining.ErrPoWFailed):
		return v1.NewRequestErrorWithCode(err, v1.KindBlockchain, "pow-failed")
	case errors.Is(err, mining.ErrTipMoved):
		return v1.NewRequestErrorWithCode(err, v1.KindBlockchain, "tip-moved")
	case errors.Is(err, mining.ErrShapeInvalid):
		return v1.NewRequestErrorWithCode(err, v1.KindValidation, "shape-invalid")
	default:
		return v1.NewRequestError(err, v1.KindDatabase)
	}
}
