// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/medledger/ledger/business/web/errs"
	"github.com/medledger/ledger/foundation/ledger/block"
	"github.com/medledger/ledger/foundation/ledger/chain"
	"github.com/medledger/ledger/foundation/ledger/pow"
	"github.com/medledger/ledger/foundation/ledger/state"
	"github.com/medledger/ledger/foundation/web"
	"go.uber.org/zap"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	Chain *chain.Chain
	State *state.State
	Miner *pow.Miner
}

// Routes binds all the private routes.
func Routes(app *web.App, cfg Config) {
	prv := Handlers{
		Log:   cfg.Log,
		Chain: cfg.Chain,
		State: cfg.State,
		Miner: cfg.Miner,
	}

	const version = "v1"

	app.Handle(http.MethodGet, version, "/chain", prv.Document)
	app.Handle(http.MethodPost, version, "/block/submit", prv.SubmitBlock)
	app.Handle(http.MethodPost, version, "/peers/register", prv.RegisterPeer)
	app.Handle(http.MethodPost, version, "/chain/resolve", prv.Resolve)
	app.Handle(http.MethodPost, version, "/mining/start", prv.StartMining)
	app.Handle(http.MethodPost, version, "/mining/stop", prv.StopMining)
	app.Handle(http.MethodPost, version, "/checkpoint", prv.CreateCheckpoint)
	app.Handle(http.MethodGet, version, "/checkpoint/list", prv.ListCheckpoints)
	app.Handle(http.MethodPost, version, "/checkpoint/restore/:name", prv.RestoreCheckpoint)
	app.Handle(http.MethodPost, version, "/checkpoint/cleanup/:keep", prv.CleanupCheckpoints)
}

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	Chain *chain.Chain
	State *state.State
	Miner *pow.Miner
}

// Document returns the full chain document. Peers call this during
// reconciliation.
func (h Handlers) Document(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.Chain.Document(), http.StatusOK)
}

// SubmitBlock accepts a block mined by another node and appends it to the
// chain when it validates against the current tip.
func (h Handlers) SubmitBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var doc json.RawMessage
	if err := web.Decode(r, &doc); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	b, err := block.From(doc)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := h.Chain.AddBlock(b); err != nil {
		return errs.NewTrusted(err, http.StatusConflict)
	}

	if err := h.State.Save(); err != nil {
		h.Log.Errorw("submit block", "ERROR", err)
	}

	resp := struct {
		Status string `json:"status"`
		Index  int    `json:"index"`
	}{
		Status: "block accepted",
		Index:  b.Index,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// RegisterPeer adds a peer address to the reconciliation set.
func (h Handlers) RegisterPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var body struct {
		Host string `json:"host"`
	}
	if err := web.Decode(r, &body); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	if body.Host == "" {
		return errs.NewTrusted(fmt.Errorf("host is required"), http.StatusBadRequest)
	}

	added := h.Chain.RegisterPeer(body.Host)

	resp := struct {
		Added bool     `json:"added"`
		Peers []string `json:"peers"`
	}{
		Added: added,
		Peers: h.Chain.Peers(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Resolve runs the longest-valid-chain reconciliation against every
// registered peer and persists the result when the chain was replaced.
func (h Handlers) Resolve(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	replaced := h.Chain.ResolveConflicts(NewFetcher(nil))

	if replaced {
		if err := h.State.Save(); err != nil {
			h.Log.Errorw("resolve", "ERROR", err)
		}
	}

	resp := struct {
		Replaced bool `json:"replaced"`
		Length   int  `json:"length"`
	}{
		Replaced: replaced,
		Length:   h.Chain.Length(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// StartMining turns the background mining loop on.
func (h Handlers) StartMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	started := h.Miner.Start()

	resp := struct {
		Mining bool `json:"mining"`
	}{
		Mining: started || h.Miner.Running(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// StopMining turns the background mining loop off.
func (h Handlers) StopMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.Miner.Shutdown()

	resp := struct {
		Mining bool `json:"mining"`
	}{
		Mining: h.Miner.Running(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// CreateCheckpoint snapshots the current chain under a timestamped name.
func (h Handlers) CreateCheckpoint(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	name, err := h.State.CreateCheckpoint("")
	if err != nil {
		return errs.NewTrusted(err, http.StatusInternalServerError)
	}

	resp := struct {
		Checkpoint string `json:"checkpoint"`
	}{
		Checkpoint: name,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ListCheckpoints enumerates the retained snapshots, oldest first.
func (h Handlers) ListCheckpoints(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	names, err := h.State.ListCheckpoints()
	if err != nil {
		return errs.NewTrusted(err, http.StatusInternalServerError)
	}

	return web.Respond(ctx, w, names, http.StatusOK)
}

// RestoreCheckpoint loads the named snapshot as the active chain.
func (h Handlers) RestoreCheckpoint(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	name := web.Param(r, "name")

	found, err := h.State.RestoreCheckpoint(name)
	if err != nil {
		return errs.NewTrusted(err, http.StatusInternalServerError)
	}
	if !found {
		return errs.NewTrusted(fmt.Errorf("checkpoint %s not found", name), http.StatusNotFound)
	}

	resp := struct {
		Restored string `json:"restored"`
		Length   int    `json:"length"`
	}{
		Restored: name,
		Length:   h.Chain.Length(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// CleanupCheckpoints deletes the oldest snapshots beyond the retention
// count in the route.
func (h Handlers) CleanupCheckpoints(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	keep, err := strconv.Atoi(web.Param(r, "keep"))
	if err != nil || keep < 0 {
		return errs.NewTrusted(fmt.Errorf("keep must be a non-negative number"), http.StatusBadRequest)
	}

	removed, err := h.State.CleanupOldCheckpoints(keep)
	if err != nil {
		return errs.NewTrusted(err, http.StatusInternalServerError)
	}

	resp := struct {
		Removed int `json:"removed"`
	}{
		Removed: removed,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
