package main

import (
	"fmt"

	"github.com/fgeck/wake-on-arp/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var wakeTarget int

var wakeCmd = &cobra.Command{
	Use:   "wake",
	Short: "Send the magic packet for one target now",
	Long:  `Send the Wake-on-LAN packet for target N (as numbered in the config) through lan_device.`,
	RunE:  wakeNow,
}

func init() {
	wakeCmd.Flags().IntVarP(&wakeTarget, "target", "t", 1, "target number (1-based)")
}

func wakeNow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runnerSvc := runner.New(log.Logger, hostname())
	ev, err := runnerSvc.Wake(cmd.Context(), *cfg, wakeTarget-1)
	if err != nil {
		log.Error().Err(err).Msg("wake failed")
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "woke target %d (%s)\n", ev.Index+1, ev.Target.MAC)
	return nil
}
