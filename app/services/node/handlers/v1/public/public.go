// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/medledger/ledger/business/web/errs"
	"github.com/medledger/ledger/foundation/events"
	"github.com/medledger/ledger/foundation/ledger/chain"
	"github.com/medledger/ledger/foundation/ledger/pow"
	"github.com/medledger/ledger/foundation/ledger/state"
	"github.com/medledger/ledger/foundation/ledger/transaction"
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
	Monitor  *pow.Monitor
	Registry *registry.Registry
	Evts     *events.Events
	DeviceID string
}

// Routes binds all the public routes.
func Routes(app *web.App, cfg Config) {
	pbl := Handlers{
		Log:      cfg.Log,
		Chain:    cfg.Chain,
		State:    cfg.State,
		Engine:   cfg.Engine,
		Monitor:  cfg.Monitor,
		Registry: cfg.Registry,
		WS:       websocket.Upgrader{},
		Evts:     cfg.Evts,
		DeviceID: cfg.DeviceID,
	}

	const version = "v1"

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitTransaction)
	app.Handle(http.MethodGet, version, "/history/:key/:value", pbl.History)
	app.Handle(http.MethodGet, version, "/chain/validate", pbl.Validate)
	app.Handle(http.MethodGet, version, "/chain/export", pbl.ExportChain)
	app.Handle(http.MethodGet, version, "/stats", pbl.Stats)
}

// Handlers manages the set of public ledger endpoints.
type Handlers struct {
	Log      *zap.SugaredLogger
	Chain    *chain.Chain
	State    *state.State
	Engine   *pow.Engine
	Monitor  *pow.Monitor
	Registry *registry.Registry
	WS       websocket.Upgrader
	Evts     *events.Events
	DeviceID string
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitTransaction accepts one supply-chain event, queues it, mines it
// into a block, persists the chain, and returns the mined block descriptor.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var ne newEvent
	if err := web.Decode(r, &ne); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("submit event", "traceid", v.TraceID, "device", ne.DeviceID)

	tx := transaction.New(ne.Content, ne.DeviceID)
	if _, err := h.Chain.AddTransaction(tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	mined, _ := h.Chain.MinePendingTransactions(h.DeviceID)

	if err := h.State.Save(); err != nil {
		h.Log.Errorw("submit event", "traceid", v.TraceID, "ERROR", err)
	}

	resp := minedDescriptor{
		Index:         mined.Index,
		Hash:          mined.Hash,
		TransactionID: tx.TransactionID,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// History returns every transaction whose content matches the key/value
// pair in the route, annotated with the containing block.
func (h Handlers) History(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	key := web.Param(r, "key")
	value := historyValue(web.Param(r, "value"))

	matches := h.Chain.TransactionHistory(key, value)

	entries := make([]historyEntry, len(matches))
	for i, m := range matches {
		entries[i] = historyEntry{
			HistoryEntry: m,
			DeviceName:   h.Registry.Lookup(m.Transaction.DeviceID),
		}
	}

	return web.Respond(ctx, w, entries, http.StatusOK)
}

// historyValue converts the raw route segment into the form stored in the
// chain. Content decoded from JSON carries numbers as float64 and booleans
// as bool, so the query has to take the same shape or it never matches.
func historyValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}

	switch v.(type) {
	case float64, bool:
		return v
	}

	return raw
}

// Validate walks the whole chain checking its invariants.
func (h Handlers) Validate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := validity{Valid: true}
	if err := h.Chain.Validate(); err != nil {
		resp = validity{Valid: false, Error: err.Error()}
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ExportChain returns the read-only snapshot of the chain.
func (h Handlers) ExportChain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.ExportSnapshot(), http.StatusOK)
}

// Stats returns chain, mining, and power information for operators.
func (h Handlers) Stats(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := struct {
		Chain     state.Stats   `json:"chain"`
		Mining    pow.Stats     `json:"mining"`
		PowerMode pow.PowerMode `json:"power_mode"`
	}{
		Chain:     h.State.ChainStats(),
		Mining:    h.Engine.Stats(),
		PowerMode: h.Monitor.Mode(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
