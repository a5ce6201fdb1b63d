package main

import (
	"fmt"
	"os"

	"github.com/fgeck/wake-on-arp/internal/services/runner"
	"github.com/fgeck/wake-on-arp/internal/services/sniff"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var replaySend bool

var replayCmd = &cobra.Command{
	Use:   "replay FILE.pcap",
	Short: "Run the passive matcher over a capture file",
	Long: `Feed an Ethernet pcap file through the passive SYN matcher and report which
wakes would fire. Capture timestamps drive the 30 second cooldown. Nothing is
sent unless --send is given.`,
	Args: cobra.ExactArgs(1),
	RunE: replayCapture,
}

func init() {
	replayCmd.Flags().BoolVar(&replaySend, "send", false, "actually send the magic packets")
}

func replayCapture(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening capture: %w", err)
	}
	defer func() { _ = f.Close() }()

	src, err := sniff.NewReplaySource(f)
	if err != nil {
		return err
	}

	runnerSvc := runner.New(log.Logger, hostname())
	events, err := runnerSvc.Replay(cmd.Context(), *cfg, src, replaySend)
	if err != nil {
		log.Error().Err(err).Msg("replay failed")
		return err
	}

	out := cmd.OutOrStdout()
	for _, ev := range events {
		status := "sent"
		switch {
		case ev.Error != nil:
			status = "failed: " + ev.Error.Error()
		case !replaySend:
			status = "dry run"
		}
		fmt.Fprintf(out, "%s  target %d  %s -> %s  wake %s  (%s)\n",
			ev.At.Format("2006-01-02 15:04:05.000"), ev.Index+1, ev.Target.IP, ev.Target.ServerIP, ev.Target.MAC, status)
	}
	fmt.Fprintf(out, "%d wake(s)\n", len(events))

	return nil
}
