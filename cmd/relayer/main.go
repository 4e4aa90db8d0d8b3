// Command relayer runs the cross-chain message relayer described in
// spec.md: it scans configured source chains for Initiation events,
// correlates them to outer messages, polls the attestation service, and
// dispatches receive_message calls on the destination chain.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shieldedusdc/relayer/internal/config"
	"github.com/shieldedusdc/relayer/internal/logging"
	"github.com/shieldedusdc/relayer/internal/supervisor"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal config error:", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal logging error:", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sv, err := supervisor.New(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Sugar().Errorf("fatal startup error: %s", err)
		return 1
	}

	logger.Sugar().Infof("relayer starting: %s", cfg.String())

	if err := sv.Run(ctx); err != nil {
		logger.Sugar().Errorf("relayer exited with error: %s", err)
		return 1
	}

	logger.Info("relayer shut down cleanly")
	return 0
}
