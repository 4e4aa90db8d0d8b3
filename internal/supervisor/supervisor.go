// Package supervisor implements the Supervisor (spec.md §4.8, C8): it
// owns configuration loading, constructs every other component, probes
// each chain at startup, and drives clean startup/shutdown.
package supervisor

import (
	"context"
	"strconv"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shieldedusdc/relayer/internal/api"
	"github.com/shieldedusdc/relayer/internal/attestation"
	"github.com/shieldedusdc/relayer/internal/chain"
	"github.com/shieldedusdc/relayer/internal/checkpoint"
	"github.com/shieldedusdc/relayer/internal/config"
	"github.com/shieldedusdc/relayer/internal/correlator"
	"github.com/shieldedusdc/relayer/internal/dispatcher"
	"github.com/shieldedusdc/relayer/internal/metrics"
	"github.com/shieldedusdc/relayer/internal/scanner"
	"github.com/shieldedusdc/relayer/internal/signer"
	"github.com/shieldedusdc/relayer/internal/store"
)

// Supervisor owns every long-lived component's lifecycle: construction,
// startup probing, and coordinated shutdown when the context passed to
// Run is cancelled. Flipping isRunning only pauses scanner and poller
// ticks; it does not stop any task.
type Supervisor struct {
	cfg    *config.Config
	logger *zap.Logger

	store      *store.Store
	metrics    *metrics.Registry
	checkpoint *checkpoint.Store

	scanners   []*scanner.Scanner
	poller     *attestation.Poller
	apiServer  *api.Server
	isRunning  *atomic.Bool

	// pendingChanges carries Store mutations to runPendingCheckpointer so
	// the Store's OnChange hook itself never blocks on Redis I/O.
	pendingChanges chan store.ChangeEvent
}

// New wires every component named in spec.md §4.8: per-chain Connectors,
// a Correlator per source chain, a Scanner per source chain, the shared
// Dispatcher, the Attestation Poller, and the Status API. It does not
// start anything — that happens in Run.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*Supervisor, error) {
	m := metrics.New(reg)

	s, err := newSigner(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(config.ErrConfigFatal, err.Error())
	}

	connectors := make(map[string]chain.Connector, len(cfg.Chains))
	destConnectors := make(map[uint32]chain.Connector, len(cfg.Chains))
	for _, c := range cfg.Chains {
		conn, err := chain.NewEthConnector(ctx, c.RPCURL, s)
		if err != nil {
			return nil, errors.Wrapf(config.ErrConfigFatal, "chain %s: %s", c.Name, err)
		}
		connectors[c.Name] = conn
		if c.IsDestination() {
			destConnectors[c.DomainID] = conn
		}
	}

	pendingStore := store.New()

	var cp *checkpoint.Store
	if cfg.RedisURL != "" {
		cp, err = checkpoint.New(cfg.RedisURL)
		if err != nil {
			return nil, errors.Wrap(config.ErrConfigFatal, err.Error())
		}
		if err := cp.Ping(ctx); err != nil {
			logger.Warn("checkpoint store unreachable at startup, continuing without it", zap.Error(err))
			cp = nil
		}
	}

	var pendingChanges chan store.ChangeEvent
	if cp != nil {
		pendingChanges = make(chan store.ChangeEvent, 256)
		pendingStore.OnChange(func(ev store.ChangeEvent) {
			select {
			case pendingChanges <- ev:
			default:
				logger.Warn("checkpoint pending-change queue full, dropping event")
			}
		})
	}

	dispatch := dispatcher.New(destConnectors, cfg.DispatchTimeout, m, logger)
	attestationClient := attestation.NewClient(cfg.AttestationBaseURL)
	poller := attestation.New(attestationClient, pendingStore, attestation.AdaptDispatcher(dispatch), cfg.AttestationPollInterval, cfg.MaxPollRetries, m, logger)

	scanners := make([]*scanner.Scanner, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		if !c.IsSource() {
			continue
		}
		conn := connectors[c.Name]

		seed, err := seedLastProcessed(ctx, conn, c, cp)
		if err != nil {
			return nil, errors.Wrapf(config.ErrConfigFatal, "chain %s: seed last_processed_block: %s", c.Name, err)
		}

		corr := correlator.New(c, cfg, pendingStore, m, logger)
		scanners = append(scanners, scanner.New(c, conn, corr, m, logger, seed))
	}

	isRunning := atomic.NewBool(cfg.AutoStartListener)

	apiServer := api.New(portAddr(cfg.Port), api.Deps{
		Config:     cfg,
		Store:      pendingStore,
		Metrics:    m,
		IsRunning:  isRunning,
		Connectors: connectors,
		Poller:     poller,
		OnStart:    func() error { isRunning.Store(true); return nil },
		OnStop:     func() error { isRunning.Store(false); return nil },
	}, logger)

	return &Supervisor{
		cfg:            cfg,
		logger:         logger,
		store:          pendingStore,
		metrics:        m,
		checkpoint:     cp,
		scanners:       scanners,
		poller:         poller,
		apiServer:      apiServer,
		isRunning:      isRunning,
		pendingChanges: pendingChanges,
	}, nil
}

// Run blocks until ctx is cancelled (the caller cancels it on an
// interrupt signal) and returns once every task has stopped. All tasks
// share the cancelled context, so a dispatch in flight at that moment is
// cut short, not drained; only the Status API gets a grace period (5s)
// for its own shutdown.
func (sv *Supervisor) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	for _, sc := range sv.scanners {
		sc := sc
		group.Go(func() error {
			sc.Run(gctx, sv.isRunning)
			return nil
		})
	}

	group.Go(func() error {
		sv.poller.Run(gctx, sv.isRunning)
		return nil
	})

	group.Go(func() error {
		return sv.apiServer.Run(gctx)
	})

	if sv.checkpoint != nil {
		group.Go(func() error {
			sv.runCheckpointer(gctx)
			return nil
		})
		group.Go(func() error {
			sv.runPendingCheckpointer(gctx)
			return nil
		})
	}

	return group.Wait()
}

// runPendingCheckpointer drains Store mutations reported via OnChange and
// mirrors each one to the checkpoint store (SPEC_FULL.md A4), keeping the
// Redis round-trip off the Store's own lock.
func (sv *Supervisor) runPendingCheckpointer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sv.pendingChanges:
			if !ok {
				return
			}
			var err error
			if ev.Op == store.ChangeDelete {
				err = sv.checkpoint.DeletePending(ctx, ev.Key)
			} else {
				err = sv.checkpoint.SavePending(ctx, ev.Transfer)
			}
			if err != nil {
				sv.logger.Warn("checkpoint pending mirror failed", zap.Error(err))
			}
		}
	}
}

// runCheckpointer periodically mirrors scan progress to the optional
// checkpoint store (SPEC_FULL.md A4); it is advisory only, per
// spec.md §1 Non-goals.
func (sv *Supervisor) runCheckpointer(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sc := range sv.scanners {
				if err := sv.checkpoint.SaveLastProcessedBlock(ctx, sc.ChainName(), sc.LastProcessedBlock()); err != nil {
					sv.logger.Warn("checkpoint save failed", zap.Error(err))
				}
			}
		}
	}
}

func seedLastProcessed(ctx context.Context, conn chain.Connector, c config.ChainConfig, cp *checkpoint.Store) (uint64, error) {
	head, err := conn.HeadBlock(ctx)
	if err != nil {
		return 0, err
	}

	if cp != nil {
		if saved, ok := cp.LoadLastProcessedBlock(ctx, c.Name); ok && saved <= head {
			return saved, nil
		}
	}

	if head <= c.MaxLookback {
		return 0, nil
	}
	return head - c.MaxLookback, nil
}

func newSigner(ctx context.Context, cfg *config.Config) (signer.Signer, error) {
	if cfg.RelayerKeyKMSARN != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, errors.Wrap(err, "load AWS config")
		}
		client := kms.NewFromConfig(awsCfg)
		return signer.NewKMSSigner(ctx, client, cfg.RelayerKeyKMSARN)
	}
	return signer.NewLocalSigner(cfg.RelayerPrivateKeyHex)
}

func portAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
