// Package handlers manages the different versions of the API.
package handlers

import (
	"expvar"
	"net/http"
	"net/http/pprof"
	"os"

	v1 "github.com/medledger/ledger/app/services/node/handlers/v1"
	"github.com/medledger/ledger/business/web/mid"
	"github.com/medledger/ledger/foundation/events"
	"github.com/medledger/ledger/foundation/ledger/chain"
	"github.com/medledger/ledger/foundation/ledger/pow"
	"github.com/medledger/ledger/foundation/ledger/state"
	"github.com/medledger/ledger/foundation/registry"
	"github.com/medledger/ledger/foundation/web"
	"go.uber.org/zap"
)

// MuxConfig contains all the mandatory systems required by handlers.
type MuxConfig struct {
	Shutdown chan os.Signal
	Log      *zap.SugaredLogger
	Chain    *chain.Chain
	State    *state.State
	Engine   *pow.Engine
	Miner    *pow.Miner
	Monitor  *pow.Monitor
	Registry *registry.Registry
	Evts     *events.Events
	DeviceID string
}

// PublicMux constructs a http.Handler with all application routes defined.
func PublicMux(cfg MuxConfig) http.Handler {

	// Construct the web.App which holds all routes as well as common Middleware.
	app := web.NewApp(
		cfg.Shutdown,
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Cors("*"),
		mid.Panics(),
	)

	// Load the v1 routes.
	v1.PublicRoutes(app, v1.Config{
		Log:      cfg.Log,
		Chain:    cfg.Chain,
		State:    cfg.State,
		Engine:   cfg.Engine,
		Miner:    cfg.Miner,
		Monitor:  cfg.Monitor,
		Registry: cfg.Registry,
		Evts:     cfg.Evts,
		DeviceID: cfg.DeviceID,
	})

	return app
}

// PrivateMux constructs a http.Handler with all application routes defined.
func PrivateMux(cfg MuxConfig) http.Handler {

	// Construct the web.App which holds all routes as well as common Middleware.
	app := web.NewApp(
		cfg.Shutdown,
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Panics(),
	)

	// Load the v1 routes.
	v1.PrivateRoutes(app, v1.Config{
		Log:   cfg.Log,
		Chain: cfg.Chain,
		State: cfg.State,
		Miner: cfg.Miner,
	})

	return app
}

// DebugStandardLibraryMux registers all the debug routes from the standard library
// into a new mux bypassing the use of the DefaultServerMux. Using the
// DefaultServerMux would be a security risk since a dependency could inject a
// handler into our service without us knowing it.
func DebugStandardLibraryMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Register all the standard library debug endpoints.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())

	return mux
}
