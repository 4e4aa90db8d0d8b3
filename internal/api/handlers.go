package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alexliesenfeld/health"
	"go.uber.org/zap"

	"github.com/shieldedusdc/relayer/internal/store"
)

type handlers struct {
	deps          Deps
	logger        *zap.Logger
	healthChecker health.Checker
}

// perChainChecks builds one readiness check per configured chain's RPC
// reachability, composed into the health.Checker used by /health. Each
// check is a bounded HeadBlock call; the health.Check's own Timeout
// keeps it from ever outliving the request (spec.md §4.7 "MUST NOT
// block on the poller" applies equally to a stalled RPC endpoint).
func (h *handlers) perChainChecks() []health.CheckerOption {
	opts := make([]health.CheckerOption, 0, len(h.deps.Config.Chains))
	for _, c := range h.deps.Config.Chains {
		chainName := c.Name
		conn := h.deps.Connectors[chainName]
		opts = append(opts, health.WithCheck(health.Check{
			Name: "chain:" + chainName,
			Check: func(ctx context.Context) error {
				if conn == nil {
					return fmt.Errorf("no connector configured for chain %s", chainName)
				}
				_, err := conn.HeadBlock(ctx)
				return err
			},
			Timeout: 2 * time.Second,
		}))
	}
	return opts
}

// pollerHealth reports an error once the Attestation Poller has gone
// more than pollerStaleAfter intervals without ticking.
func (h *handlers) pollerHealth() error {
	p := h.deps.Poller
	if p == nil {
		return nil
	}
	last := p.LastTickAt()
	if last.IsZero() {
		return nil // not yet ticked once; give it its first interval.
	}
	if stale := time.Since(last); stale > pollerStaleAfter*p.Interval() {
		return fmt.Errorf("poller last ticked %s ago", stale.Round(time.Second))
	}
	return nil
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	result := h.healthChecker.Check(r.Context())

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"cctp": map[string]interface{}{
			"status":       result.Status,
			"is_running":   h.deps.IsRunning.Load(),
			"pending":      h.deps.Store.Len(),
			"check_results": result.Details,
		},
	})
}

type chainSummary struct {
	Name     string `json:"name"`
	ChainID  uint64 `json:"chain_id"`
	Domain   uint32 `json:"domain"`
	Bridge   string `json:"bridge"`
}

func (h *handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	chains := make([]chainSummary, 0, len(h.deps.Config.Chains))
	for _, c := range h.deps.Config.Chains {
		chains = append(chains, chainSummary{
			Name:    c.Name,
			ChainID: c.ChainID,
			Domain:  c.DomainID,
			Bridge:  c.BridgeAddress.Hex(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"is_running":    h.deps.IsRunning.Load(),
		"pending_count": h.deps.Store.Len(),
		"chains":        chains,
	})
}

type transferSummary struct {
	Key         string    `json:"key"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Nonce       uint64    `json:"nonce"`
	MessageHash string    `json:"message_hash"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	Retries     int       `json:"retries"`
}

func (h *handlers) handlePending(w http.ResponseWriter, r *http.Request) {
	snapshot := h.deps.Store.Snapshot()
	transfers := make([]transferSummary, 0, len(snapshot))
	for _, t := range snapshot {
		key := t.Key()
		transfers = append(transfers, transferSummary{
			Key:         keyString(key),
			Source:      t.SourceChain.Name,
			Destination: t.DestinationChain.Name,
			Nonce:       t.BurnNonce,
			MessageHash: t.MessageHash.Hex(),
			EnqueuedAt:  t.EnqueuedAt,
			Retries:     t.Retries,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(transfers),
		"transfers": transfers,
	})
}

func (h *handlers) handleStart(w http.ResponseWriter, r *http.Request) {
	if h.deps.OnStart == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}
	if err := h.deps.OnStart(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (h *handlers) handleStop(w http.ResponseWriter, r *http.Request) {
	if h.deps.OnStop == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}
	if err := h.deps.OnStop(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func keyString(k store.Key) string {
	return fmt.Sprintf("%d:%d", k.SourceDomain, k.BurnNonce)
}
