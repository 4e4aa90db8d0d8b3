// Package scanner implements the Event Scanner (spec.md §4.2): one
// cooperative per-source-chain loop that tracks LastProcessedBlock,
// fetches new Initiation logs, and hands each one to a Correlator
// together with its transaction receipt.
package scanner

import (
	"context"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/shieldedusdc/relayer/internal/chain"
	"github.com/shieldedusdc/relayer/internal/config"
	"github.com/shieldedusdc/relayer/internal/event"
	"github.com/shieldedusdc/relayer/internal/metrics"
)

// Handler processes one correlated (event, receipt) pair. *correlator.Correlator
// satisfies this.
type Handler interface {
	Handle(initiation *event.InitiationEvent, receipt *chain.Receipt) error
}

const receiptCacheSize = 256

// Scanner drives a single source chain's block-scanning state machine.
type Scanner struct {
	cfg       config.ChainConfig
	connector chain.Connector
	handler   Handler
	metrics   *metrics.Registry
	logger    *zap.Logger

	lastProcessed atomic.Uint64
}

// New constructs a Scanner. lastProcessed should be seeded by the caller
// (Supervisor) per spec.md §3 "LastProcessedBlock": max(0, head -
// max_lookback) on first start, or a checkpoint-restored value.
func New(cfg config.ChainConfig, connector chain.Connector, handler Handler, m *metrics.Registry, logger *zap.Logger, lastProcessed uint64) *Scanner {
	s := &Scanner{
		cfg:       cfg,
		connector: connector,
		handler:   handler,
		metrics:   m,
		logger:    logger.With(zap.String("component", "scanner"), zap.String("chain", cfg.Name)),
	}
	s.lastProcessed.Store(lastProcessed)
	return s
}

// LastProcessedBlock returns the current checkpoint, per spec.md §3.
func (s *Scanner) LastProcessedBlock() uint64 {
	return s.lastProcessed.Load()
}

// ChainName returns the name of the source chain this Scanner drives,
// used by the Supervisor to key checkpoint writes.
func (s *Scanner) ChainName() string {
	return s.cfg.Name
}

// Run loops until ctx is cancelled, ticking every cfg.PollInterval. It
// never returns an error: per-tick failures are logged and retried on
// the next tick (spec.md §4.2 "Error policy").
func (s *Scanner) Run(ctx context.Context, isRunning *atomic.Bool) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !isRunning.Load() {
				continue
			}
			s.tick(ctx)
		}
	}
}

func (s *Scanner) tick(ctx context.Context) {
	last := s.lastProcessed.Load()

	head, err := s.connector.HeadBlock(ctx)
	if err != nil {
		s.logger.Error("head_block failed, tick aborted", zap.Error(err))
		return
	}
	if s.cfg.Confirmations > 0 {
		if s.cfg.Confirmations > head {
			head = 0
		} else {
			head -= s.cfg.Confirmations
		}
	}
	s.metrics.ScanLagBlocks.WithLabelValues(s.cfg.Name).Set(float64(head) - float64(last))

	if head <= last {
		return
	}

	to := head
	if s.cfg.ChunkSize > 0 && to > last+s.cfg.ChunkSize {
		to = last + s.cfg.ChunkSize
	}
	from := last + 1

	logs, err := s.connector.GetLogs(ctx, from, to, s.cfg.BridgeAddress, event.InitiationTopic)
	if err != nil {
		s.logger.Error("get_logs failed, tick aborted", zap.Error(err), zap.Uint64("from", from), zap.Uint64("to", to))
		return
	}

	// Ascending (block_number, log_index) order, per spec.md §4.2 step 5.
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	receiptCache, _ := lru.New[string, *chain.Receipt](receiptCacheSize)

	for i := range logs {
		log := logs[i]
		initiation, err := event.DecodeInitiation(log)
		if err != nil {
			s.logger.Error("decode initiation failed, tick aborted", zap.Error(err))
			return
		}

		receipt, cached := receiptCache.Get(log.TxHash.Hex())
		if !cached {
			receipt, err = s.connector.GetReceipt(ctx, log.TxHash)
			if err != nil {
				s.logger.Error("get_receipt failed, tick aborted", zap.Error(err), zap.String("tx_hash", log.TxHash.Hex()))
				return
			}
			if receipt == nil {
				s.logger.Error("receipt not yet available for a logged event, tick aborted", zap.String("tx_hash", log.TxHash.Hex()))
				return
			}
			receiptCache.Add(log.TxHash.Hex(), receipt)
		}

		if err := s.handler.Handle(initiation, receipt); err != nil {
			s.logger.Error("handler failed, tick aborted", zap.Error(err))
			return
		}
	}

	s.lastProcessed.Store(to)
	s.metrics.ScanLagBlocks.WithLabelValues(s.cfg.Name).Set(float64(head) - float64(to))
}
