// Package handlers manages the different versions of the API and
// constructs the public and debug muxes.
package handlers

import (
	"context"
	"expvar"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/ardanlabs/sealedger/app/services/node/handlers/checkgrp"
	"github.com/ardanlabs/sealedger/app/services/node/handlers/v1/blockgrp"
	"github.com/ardanlabs/sealedger/app/services/node/handlers/v1/creatorgrp"
	"github.com/ardanlabs/sealedger/app/services/node/handlers/v1/decryptgrp"
	"github.com/ardanlabs/sealedger/business/core/audit"
	"github.com/ardanlabs/sealedger/business/core/chain"
	"github.com/ardanlabs/sealedger/business/core/creator"
	"github.com/ardanlabs/sealedger/business/core/gossip"
	"github.com/ardanlabs/sealedger/business/core/mining"
	"github.com/ardanlabs/sealedger/business/web/mid"
	"github.com/ardanlabs/sealedger/foundation/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// MuxConfig contains all the collaborators required to construct the
// public API mux.
type MuxConfig struct {
	Shutdown   chan os.Signal
	Log        *zap.SugaredLogger
	DB         *pgxpool.Pool
	Chain      *chain.Store
	Creators   *creator.Core
	Mining     *mining.Core
	Audit      *audit.Core
	Gossip     *gossip.Core
	Build      string
	CORSOrigin string
}

// PublicMux constructs the http.Handler for the public v1 API.
func PublicMux(cfg MuxConfig) http.Handler {
	app := web.NewApp(cfg.Shutdown, mid.Logger(cfg.Log), mid.Errors(cfg.Log), mid.Metrics(), mid.Panics(), mid.Cors(cfg.CORSOrigin))

	cGrp := creatorgrp.New(cfg.Creators, cfg.Chain)
	bGrp := blockgrp.New(cfg.Chain, cfg.Mining)
	dGrp := decryptgrp.New(cfg.Chain)
	hGrp := checkgrp.New(cfg.Build, cfg.DB, cfg.Chain, cfg.Audit, cfg.Gossip)

	const version = "v1"

	app.Handle(http.MethodGet, version, "/creators", cGrp.List)
	app.Handle(http.MethodPost, version, "/creators", cGrp.Create)
	app.Handle(http.MethodGet, version, "/creators/stats/summary", cGrp.Stats)
	app.Handle(http.MethodGet, version, "/creators/:display_name/public-key", cGrp.PublicKey)

	app.Handle(http.MethodGet, version, "/blocks", bGrp.List)
	app.Handle(http.MethodPost, version, "/blocks/prepare-mining", bGrp.PrepareMining)
	app.Handle(http.MethodPost, version, "/blocks/commit", bGrp.Commit)
	app.Handle(http.MethodGet, version, "/blocks/stats/summary", bGrp.Stats)

	app.Handle(http.MethodGet, version, "/decrypt/blocks/:creator_id", dGrp.ByCreator)

	app.Handle(http.MethodGet, "", "/health", hGrp.Health)

	// Preflight requests never carry the app's own routes, so give every
	// path an OPTIONS responder that just runs the CORS middleware.
	noop := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return nil
	}
	app.Handle(http.MethodOptions, "", "/*", noop, mid.Cors(cfg.CORSOrigin))

	return app
}

// DebugStandardLibraryMux registers the standard library debug endpoints.
func DebugStandardLibraryMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())

	return mux
}

// DebugMux registers the debug endpoints plus this service's readiness,
// liveness, and audit-inspection endpoints.
func DebugMux(build string, log *zap.SugaredLogger, db *pgxpool.Pool, chn *chain.Store, aud *audit.Core, peers *gossip.Core) http.Handler {
	mux := DebugStandardLibraryMux()

	hGrp := checkgrp.New(build, db, chn, aud, peers)

	app := web.NewApp(nil, mid.Logger(log), mid.Errors(log))
	app.Handle(http.MethodGet, "", "/debug/readiness", hGrp.Readiness)
	app.Handle(http.MethodGet, "", "/debug/liveness", hGrp.Liveness)
	app.Handle(http.MethodGet, "", "/debug/audit/events", hGrp.AuditEvents)

	mux.Handle("/debug/readiness", app)
	mux.Handle("/debug/liveness", app)
	mux.Handle("/debug/audit/events", app)

	return mux
}
