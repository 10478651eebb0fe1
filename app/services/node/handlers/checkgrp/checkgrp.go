// Package checkgrp maintains the group of handlers for health, liveness,
// readiness, and audit-event inspection.
package checkgrp

import (
	"context"
	"net/http"
	"os"

	"github.com/ardanlabs/sealedger/business/core/audit"
	"github.com/ardanlabs/sealedger/business/core/chain"
	"github.com/ardanlabs/sealedger/business/sys/database"
	v1 "github.com/ardanlabs/sealedger/business/web/v1"
	"github.com/ardanlabs/sealedger/foundation/web"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PeerCounter reports the number of live gossip connections.
type PeerCounter interface {
	PeerCount() int
}

// Handlers manages the set of check endpoints.
type Handlers struct {
	build string
	db    *pgxpool.Pool
	chain *chain.Store
	audit *audit.Core
	peers PeerCounter
}

// New constructs a checkgrp handlers value.
func New(build string, db *pgxpool.Pool, chn *chain.Store, aud *audit.Core, peers PeerCounter) *Handlers {
	return &Handlers{
		build: build,
		db:    db,
		chain: chn,
		audit: aud,
		peers: peers,
	}
}

// Health reports overall service health (GET /health).
func (h *Handlers) Health(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	dbStatus := "up"
	if err := database.StatusCheck(ctx, h.db); err != nil {
		dbStatus = "down"
	}

	peerCount := 0
	if h.peers != nil {
		peerCount = h.peers.PeerCount()
	}

	return web.Respond(ctx, w, map[string]any{
		"status":    "up",
		"database":  dbStatus,
		"blocks":    h.chain.Length(),
		"p2p_peers": peerCount,
	}, http.StatusOK)
}

// Readiness reports whether the service is ready to accept traffic
// (GET /debug/readiness).
func (h *Handlers) Readiness(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := database.StatusCheck(ctx, h.db); err != nil {
		return v1.NewRequestError(err, v1.KindDatabase)
	}

	return web.Respond(ctx, w, map[string]any{"status": "ok"}, http.StatusOK)
}

// Liveness reports whether the process itself is alive
// (GET /debug/liveness).
func (h *Handlers) Liveness(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	info := struct {
		Status    string `json:"status"`
		Build     string `json:"build"`
		Host      string `json:"host"`
		Pod       string `json:"pod,omitempty"`
	}{
		Status: "up",
		Build:  h.build,
		Host:   hostname(),
		Pod:    os.Getenv("KUBERNETES_POD_NAME"),
	}

	return web.Respond(ctx, w, info, http.StatusOK)
}

// AuditEvents returns the most recent audit log entries
// (GET /debug/audit/events).
func (h *Handlers) AuditEvents(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	events, err := h.audit.Recent(ctx, 100)
	if err != nil {
		return v1.NewRequestError(err, v1.KindDatabase)
	}

	return web.Respond(ctx, w, map[string]any{"events": events}, http.StatusOK)
}

func hostname() string {
	host, err := os.Hostname()
	if err != nil {
		return "unavailable"
	}
	return host
}
