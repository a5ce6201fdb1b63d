package models

import (
	"net"
	"net/netip"
	"time"
)

// Target is a configured host pairing.
type Target struct {
	IP       netip.Addr       // probed address (active) or SYN client (passive)
	MAC      net.HardwareAddr // machine to wake
	ServerIP netip.Addr       // passive SYN destination; zero value if unset
}

// HasServer reports whether the target is paired with a server address.
func (t Target) HasServer() bool {
	return t.ServerIP.IsValid()
}

// TargetState is the runtime bookkeeping for one Target.
type TargetState struct {
	Present  bool
	LastWake time.Time // zero if no wake has been sent yet
}

// LinkContext describes a resolved network interface.
type LinkContext struct {
	Name      string
	Index     int
	LocalIP   netip.Addr
	LocalMAC  net.HardwareAddr
	LocalMask int // prefix length of LocalIP on the link
}
