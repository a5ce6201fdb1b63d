// Package models contains the data structures used throughout wake-on-arp.
package models

import (
	"net/netip"
	"time"
)

// MaxTargets is the maximum number of configured targets.
const MaxTargets = 10

// Mode selects the detection strategy.
type Mode string

const (
	// ModeActive periodically ARP-probes every target.
	ModeActive Mode = "active"
	// ModePassive sniffs the probe link for TCP SYNs between a client and its server.
	ModePassive Mode = "passive"
	// ModeManual marks wakes requested from the command line. It is not a
	// valid configuration value.
	ModeManual Mode = "manual"
)

// Config holds the complete configuration for a wake-on-arp run.
type Config struct {
	Mode         Mode
	BroadcastIP  netip.Addr
	ProbeDevice  string // net_device: interface facing the targets
	LANDevice    string // lan_device: interface facing the machines to wake
	Subnet       int    // prefix length of the probe network
	AllowGateway bool
	ProbeWindow  time.Duration // how long a cycle waits for ARP replies
	PollInterval time.Duration // pause between active cycles
	Promiscuous  bool          // passive only
	Targets      []Target
	Telegram     *TelegramConfig // nil if not configured
}
