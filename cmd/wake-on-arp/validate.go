package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without opening any sockets.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", configFile)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	// Print configuration summary
	fmt.Fprintln(out, "Configuration is valid!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Summary:")
	fmt.Fprintf(out, "  Mode: %s\n", cfg.Mode)
	fmt.Fprintf(out, "  Probe device: %s\n", cfg.ProbeDevice)
	fmt.Fprintf(out, "  LAN device: %s\n", cfg.LANDevice)
	fmt.Fprintf(out, "  Broadcast IP: %s\n", cfg.BroadcastIP)
	fmt.Fprintf(out, "  Subnet: /%d (gateway allowed: %v)\n", cfg.Subnet, cfg.AllowGateway)
	fmt.Fprintf(out, "  Probe window: %s\n", cfg.ProbeWindow)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval)
	fmt.Fprintf(out, "  Promiscuous: %v\n", cfg.Promiscuous)
	fmt.Fprintf(out, "  Telegram: %v\n", cfg.Telegram != nil)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Targets:")
	for i, t := range cfg.Targets {
		if t.HasServer() {
			fmt.Fprintf(out, "  %d. %s -> %s wakes %s\n", i+1, t.IP, t.ServerIP, t.MAC)
		} else {
			fmt.Fprintf(out, "  %d. %s wakes %s\n", i+1, t.IP, t.MAC)
		}
	}

	if cfg.Telegram != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Telegram Configuration:")
		fmt.Fprintf(out, "  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Fprintf(out, "  Bot Token: (configured)\n")
	}

	return nil
}
