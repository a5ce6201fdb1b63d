package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/wake-on-arp/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the probe interface and wake targets",
	Long: `Resolve both interfaces, then run until interrupted:
  active:  every poll_interval, ARP-probe all targets for probe_window and
           wake each target that answers after a cycle it did not answer
  passive: capture TCP SYNs on net_device (promiscuous unless disabled) and
           wake the target whose client/server pair matches

Requires CAP_NET_RAW (and CAP_NET_ADMIN for promiscuous mode).`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Set up context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runnerSvc := runner.New(log.Logger, hostname())
	err = runnerSvc.Run(ctx, *cfg)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("wake-on-arp stopped")
		return err
	}

	log.Info().Msg("wake-on-arp stopped")
	return nil
}
