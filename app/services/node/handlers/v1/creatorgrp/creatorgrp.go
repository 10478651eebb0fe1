// Package creatorgrp maintains the group of handlers for creator access.
package creatorgrp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ardanlabs/sealedger/business/core/chain"
	"github.com/ardanlabs/sealedger/business/core/creator"
	v1 "github.com/ardanlabs/sealedger/business/web/v1"
	"github.com/ardanlabs/sealedger/foundation/web"
	"github.com/ardanlabs/sealedger/internal/cryptutil"
)

// Handlers manages the set of creator endpoints.
type Handlers struct {
	creators *creator.Core
	chain    *chain.Store
}

// New constructs a creatorgrp handlers value.
func New(creators *creator.Core, chn *chain.Store) *Handlers {
	return &Handlers{
		creators: creators,
		chain:    chn,
	}
}

type appCreator struct {
	CreatorID    string    `json:"creator_id"`
	DisplayName  string    `json:"display_name"`
	KeySize      int       `json:"key_size"`
	KeyAlgorithm string    `json:"key_algorithm"`
	CreatedAt    time.Time `json:"created_at"`
	BlockCount   int       `json:"block_count"`
}

func toAppCreator(crt creator.Creator, blockCount int) appCreator {
	return appCreator{
		CreatorID:    crt.ID,
		DisplayName:  crt.DisplayName,
		KeySize:      cryptutil.KeySizeBytes(crt.PublicKey) * 8,
		KeyAlgorithm: "RSA",
		CreatedAt:    crt.CreatedAt,
		BlockCount:   blockCount,
	}
}

// List returns the active creators (GET /creators).
func (h *Handlers) List(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	crts, err := h.creators.QueryActive(ctx)
	if err != nil {
		return v1.NewRequestError(err, v1.KindDatabase)
	}

	out := make([]appCreator, len(crts))
	for i, crt := range crts {
		count := 0
		if envs, err := h.chain.BlocksForCreator(ctx, crt.ID); err == nil {
			count = len(envs)
		}
		out[i] = toAppCreator(crt, count)
	}

	return web.Respond(ctx, w, map[string]any{"creators": out}, http.StatusOK)
}

type newCreator struct {
	DisplayName  string `json:"display_name"`
	PublicKeyPEM string `json:"public_key_pem"`
}

// Create registers a new creator (POST /creators).
func (h *Handlers) Create(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var nc newCreator
	if err := web.Decode(r, &nc); err != nil {
		return v1.NewRequestError(err, v1.KindValidation)
	}

	crt, err := h.creators.Create(ctx, creator.NewCreator{
		DisplayName:  nc.DisplayName,
		PublicKeyPEM: nc.PublicKeyPEM,
	})
	if err != nil {
		switch {
		case errors.Is(err, creator.ErrDisplayNameTaken):
			return v1.NewRequestError(err, v1.KindConflict)
		case errors.Is(err, creator.ErrInvalidPublicKey), errors.Is(err, creator.ErrKeyTooSmall):
			return v1.NewRequestError(err, v1.KindValidation)
		default:
			return v1.NewRequestError(err, v1.KindDatabase)
		}
	}

	return web.Respond(ctx, w, toAppCreator(crt, 0), http.StatusCreated)
}

// PublicKey returns a creator's id and public key by display name
// (GET /creators/{display_name}/public-key).
func (h *Handlers) PublicKey(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	displayName := web.Param(r, "display_name")

	crt, err := h.creators.QueryByDisplayName(ctx, displayName)
	if err != nil {
		if errors.Is(err, creator.ErrNotFound) {
			return v1.NewRequestError(err, v1.KindNotFound)
		}
		return v1.NewRequestError(err, v1.KindDatabase)
	}

	return web.Respond(ctx, w, map[string]any{
		"creator_id":     crt.ID,
		"public_key_pem": crt.PublicKeyPEM,
	}, http.StatusOK)
}

// Stats returns aggregate creator figures (GET /creators/stats/summary).
func (h *Handlers) Stats(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	stats, err := h.creators.Stats(ctx)
	if err != nil {
		return v1.NewRequestError(err, v1.KindDatabase)
	}

	return web.Respond(ctx, w, map[string]any{"stats": stats}, http.StatusOK)
}
