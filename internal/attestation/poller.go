package attestation

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/shieldedusdc/relayer/internal/dispatcher"
	"github.com/shieldedusdc/relayer/internal/metrics"
	"github.com/shieldedusdc/relayer/internal/store"
)

// Dispatcher is the subset of *dispatcher.Dispatcher the Poller needs,
// kept as an interface so tests can substitute a stub.
type Dispatcher interface {
	Dispatch(ctx context.Context, destination store.PendingTransfer, messageBytes, attestationBytes []byte) (dispatcher.Result, error)
}

// dispatcherAdapter adapts the concrete *dispatcher.Dispatcher (whose
// Dispatch takes a config.ChainConfig, not a whole PendingTransfer) to
// the Dispatcher interface above.
type dispatcherAdapter struct {
	inner *dispatcher.Dispatcher
}

func (a dispatcherAdapter) Dispatch(ctx context.Context, t store.PendingTransfer, messageBytes, attestationBytes []byte) (dispatcher.Result, error) {
	return a.inner.Dispatch(ctx, t.DestinationChain, messageBytes, attestationBytes)
}

// AdaptDispatcher wraps a *dispatcher.Dispatcher for use by the Poller.
func AdaptDispatcher(d *dispatcher.Dispatcher) Dispatcher {
	return dispatcherAdapter{inner: d}
}

// Poller is the Attestation Poller (spec.md §4.5): the single writer of
// retries, state, and store membership.
type Poller struct {
	client     *Client
	store      *store.Store
	dispatcher Dispatcher
	metrics    *metrics.Registry
	logger     *zap.Logger

	interval       time.Duration
	maxPollRetries int

	// lastTickAt is a unix-nano heartbeat updated at the start of every
	// tick, so /health can detect a poller goroutine that has stopped
	// ticking (SPEC_FULL.md A5) without the health check taking any
	// lock.
	lastTickAt atomic.Int64
}

// New constructs a Poller.
func New(client *Client, s *store.Store, d Dispatcher, interval time.Duration, maxPollRetries int, m *metrics.Registry, logger *zap.Logger) *Poller {
	return &Poller{
		client:         client,
		store:          s,
		dispatcher:     d,
		metrics:        m,
		logger:         logger.With(zap.String("component", "attestation-poller")),
		interval:       interval,
		maxPollRetries: maxPollRetries,
	}
}

// LastTickAt returns the time of the most recently started tick, or the
// zero Time if the Poller has never ticked.
func (p *Poller) LastTickAt() time.Time {
	ns := p.lastTickAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Interval returns the configured poll interval, used by the health
// check to size its staleness threshold.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run loops until ctx is cancelled, ticking every interval.
func (p *Poller) Run(ctx context.Context, isRunning *atomic.Bool) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !isRunning.Load() {
				continue
			}
			p.tick(ctx)
		}
	}
}

// tick implements spec.md §4.5: iterate a snapshot of the store (which
// must tolerate concurrent mutation — Snapshot returns copies of the
// entries taken under the Store's lock, and every field change goes
// through Store.Mutate, so no further synchronization is needed here).
func (p *Poller) tick(ctx context.Context) {
	p.lastTickAt.Store(time.Now().UnixNano())
	for _, transfer := range p.store.Snapshot() {
		p.pollOne(ctx, transfer)
	}
}

func (p *Poller) pollOne(ctx context.Context, transfer *store.PendingTransfer) {
	key := transfer.Key()

	if transfer.Retries >= p.maxPollRetries {
		p.logger.Error("poll retries exhausted, giving up",
			zap.Uint32("source_domain", key.SourceDomain),
			zap.Uint64("burn_nonce", key.BurnNonce),
		)
		p.metrics.PollRetriesExhausted.Inc()
		p.store.Mutate(key, func(t *store.PendingTransfer) { t.State = store.GivenUp })
		p.store.Delete(key)
		p.metrics.PendingGauge.Set(float64(p.store.Len()))
		return
	}

	resp, err := p.client.Get(ctx, transfer.MessageHash)
	if err != nil {
		p.recordRetry(key)
		return
	}
	if !resp.Complete() {
		p.recordRetry(key)
		return
	}

	attestationBytes := common.FromHex(resp.Attestation)

	p.store.Mutate(key, func(t *store.PendingTransfer) {
		t.State = store.Relaying
	})

	result, err := p.dispatcher.Dispatch(ctx, *transfer, transfer.MessageBytes, attestationBytes)
	if err != nil {
		p.logger.Error("dispatch failed",
			zap.Uint32("source_domain", key.SourceDomain),
			zap.Uint64("burn_nonce", key.BurnNonce),
			zap.Error(err),
		)
		p.recordRetry(key)
		return
	}

	switch result.Outcome {
	case dispatcher.OutcomeDelivered:
		p.logger.Info("delivered",
			zap.Uint32("source_domain", key.SourceDomain),
			zap.Uint64("burn_nonce", key.BurnNonce),
			zap.String("tx_hash", result.TxHash.Hex()),
		)
		p.store.Mutate(key, func(t *store.PendingTransfer) { t.State = store.Delivered })
		p.store.Delete(key)
	default:
		p.logger.Warn("dispatch failed terminally",
			zap.Uint32("source_domain", key.SourceDomain),
			zap.Uint64("burn_nonce", key.BurnNonce),
			zap.String("reason", result.Reason),
		)
		p.store.Mutate(key, func(t *store.PendingTransfer) { t.State = store.Failed })
		p.store.Delete(key)
	}
	p.metrics.PendingGauge.Set(float64(p.store.Len()))
}

func (p *Poller) recordRetry(key store.Key) {
	p.metrics.AttestationRetries.Inc()
	p.store.Mutate(key, func(t *store.PendingTransfer) {
		t.Retries++
		t.LastAttemptAt = time.Now()
	})
}
