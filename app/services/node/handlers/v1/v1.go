// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"github.com/medledger/ledger/app/services/node/handlers/v1/private"
	"github.com/medledger/ledger/app/services/node/handlers/v1/public"
	"github.com/medledger/ledger/foundation/events"
	"github.com/medledger/ledger/foundation/ledger/chain"
	"github.com/medledger/ledger/foundation/ledger/pow"
	"github.com/medledger/ledger/foundation/ledger/state"
	"github.com/medledger/ledger/foundation/registry"
	"github.com/medledger/ledger/foundation/web"
	"go.uber.org/zap"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
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

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	public.Routes(app, public.Config{
		Log:      cfg.Log,
		Chain:    cfg.Chain,
		State:    cfg.State,
		Engine:   cfg.Engine,
		Monitor:  cfg.Monitor,
		Registry: cfg.Registry,
		Evts:     cfg.Evts,
		DeviceID: cfg.DeviceID,
	})
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	private.Routes(app, private.Config{
		Log:   cfg.Log,
		Chain: cfg.Chain,
		State: cfg.State,
		Miner: cfg.Miner,
	})
}
