// Package correlator implements the Message Correlator (spec.md §4.3):
// given an InitiationEvent and the receipt of the transaction that
// carried it, locate the outer MessageSent log, hash it, resolve the
// destination chain, and hand a new PendingTransfer to the store.
package correlator

import (
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/shieldedusdc/relayer/internal/chain"
	"github.com/shieldedusdc/relayer/internal/config"
	"github.com/shieldedusdc/relayer/internal/event"
	"github.com/shieldedusdc/relayer/internal/metrics"
	"github.com/shieldedusdc/relayer/internal/store"
)

// ErrCorrelationMissing names the case where the receipt carries no
// matching MessageSent log — spec.md §4.3 step 1, "this should not happen
// in a well-formed bridge". Handle logs and counts that case and returns
// nil; it does not return this error.
var ErrCorrelationMissing = errors.New("correlation missing: no matching MessageSent log in receipt")

// ErrUnknownDestination names the case where destination_domain does not
// match any configured chain — spec.md §4.3 step 4. Handle logs and
// counts that case and returns nil; it does not return this error.
var ErrUnknownDestination = errors.New("unknown destination domain")

// DomainResolver resolves a destination_domain to a ChainConfig. *config.Config
// satisfies this directly.
type DomainResolver interface {
	LookupByDomain(domain uint32) (config.ChainConfig, bool)
}

// Correlator ties InitiationEvent + Receipt pairs to PendingStore entries.
type Correlator struct {
	source   config.ChainConfig
	resolver DomainResolver
	store    *store.Store
	metrics  *metrics.Registry
	logger   *zap.Logger
}

// New returns a Correlator bound to a single source chain's configuration
// (it needs source.MessageTransmitterAddress to locate the MessageSent
// log emitted by that chain's transmitter).
func New(source config.ChainConfig, resolver DomainResolver, s *store.Store, m *metrics.Registry, logger *zap.Logger) *Correlator {
	return &Correlator{
		source:   source,
		resolver: resolver,
		store:    s,
		metrics:  m,
		logger:   logger.With(zap.String("component", "correlator"), zap.String("chain", source.Name)),
	}
}

// Handle implements spec.md §4.3 steps 1-5. It never returns an error for
// CorrelationMissing/UnknownDestination — those are classified, logged,
// and counted, then nil is returned so the Scanner's tick still advances
// past the event (spec.md §8 B2).
func (c *Correlator) Handle(initiation *event.InitiationEvent, receipt *chain.Receipt) error {
	msgLog := event.FindMessageSent(receipt.Logs, c.source.MessageTransmitterAddress)
	if msgLog == nil {
		c.logger.Error("correlation missing",
			zap.Uint64("burn_nonce", initiation.BurnNonce),
			zap.String("tx_hash", initiation.SourceTxHash.Hex()),
		)
		c.metrics.CorrelationMissing.Inc()
		return nil
	}

	messageBytes, err := event.DecodeMessageBytes(msgLog)
	if err != nil {
		return errors.Wrap(err, "decode message-sent payload")
	}
	messageHash := crypto.Keccak256Hash(messageBytes)

	destination, ok := c.resolver.LookupByDomain(initiation.DestinationDomain)
	if !ok {
		c.logger.Error("unknown destination domain",
			zap.Uint64("burn_nonce", initiation.BurnNonce),
			zap.Uint32("destination_domain", initiation.DestinationDomain),
		)
		c.metrics.UnknownDestination.Inc()
		return nil
	}
	if !destination.IsDestination() {
		c.logger.Error("resolved destination chain has no receive endpoint",
			zap.Uint64("burn_nonce", initiation.BurnNonce),
			zap.String("destination", destination.Name),
		)
		c.metrics.UnknownDestination.Inc()
		return nil
	}

	transfer := &store.PendingTransfer{
		SourceChain:      c.source,
		DestinationChain: destination,
		BurnNonce:        initiation.BurnNonce,
		MessageHash:      messageHash,
		MessageBytes:     messageBytes,
		EnqueuedAt:       time.Now(),
		Retries:          0,
		State:            store.Attesting,
	}

	inserted := c.store.Insert(transfer)
	if !inserted {
		c.logger.Debug("re-observed already-pending transfer, skipping",
			zap.Uint64("burn_nonce", initiation.BurnNonce),
		)
		return nil
	}

	c.logger.Info("correlated new pending transfer",
		zap.Uint64("burn_nonce", initiation.BurnNonce),
		zap.String("destination", destination.Name),
		zap.String("message_hash", messageHash.Hex()),
	)
	c.metrics.PendingGauge.Set(float64(c.store.Len()))
	return nil
}
