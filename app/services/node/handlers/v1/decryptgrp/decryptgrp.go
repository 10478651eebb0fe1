// Package decryptgrp maintains the handler that returns a creator's
// encrypted block envelopes for offline decryption.
package decryptgrp

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/ardanlabs/sealedger/business/core/chain"
	v1 "github.com/ardanlabs/sealedger/business/web/v1"
	"github.com/ardanlabs/sealedger/foundation/web"
)

// Handlers manages the set of decrypt endpoints.
type Handlers struct {
	chain *chain.Store
}

// New constructs a decryptgrp handlers value.
func New(chn *chain.Store) *Handlers {
	return &Handlers{chain: chn}
}

type envelope struct {
	BlockID          string `json:"block_id"`
	BlockNumber      int64  `json:"block_number"`
	BlockHash        string `json:"block_hash"`
	CreatedAt        string `json:"created_at"`
	EncryptedData    string `json:"encrypted_data"`
	DataIV           string `json:"data_iv"`
	EncryptedDataKey string `json:"encrypted_data_key"`
	DataSize         int64  `json:"data_size"`
	Verified         bool   `json:"verified"`
}

// ByCreator returns every encrypted envelope for a creator, with the
// binary fields base64 encoded for JSON transport
// (GET /decrypt/blocks/{creator_id}).
func (h *Handlers) ByCreator(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	creatorID := web.Param(r, "creator_id")

	envs, err := h.chain.BlocksForCreator(ctx, creatorID)
	if err != nil {
		return v1.NewRequestError(err, v1.KindDatabase)
	}

	out := make([]envelope, len(envs))
	for i, e := range envs {
		out[i] = envelope{
			BlockID:          e.BlockID,
			BlockNumber:      e.Number,
			BlockHash:        e.Hash,
			CreatedAt:        e.CreatedAt.Format(time.RFC3339),
			EncryptedData:    base64.StdEncoding.EncodeToString(e.EncryptedData),
			DataIV:           base64.StdEncoding.EncodeToString(e.DataIV),
			EncryptedDataKey: base64.StdEncoding.EncodeToString(e.EncryptedDataKey),
			DataSize:         e.DataSize,
			Verified:         e.Verified,
		}
	}

	return web.Respond(ctx, w, map[string]any{"blocks": out}, http.StatusOK)
}
