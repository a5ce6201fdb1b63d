// Package registry holds the configured targets and their runtime state.
package registry

import (
	"fmt"
	"net/netip"

	"github.com/fgeck/wake-on-arp/internal/models"
)

// Registry is an index-addressed table of targets. A target's index never
// changes for the lifetime of the Registry. It is owned by a single goroutine.
type Registry struct {
	targets []models.Target
	states  []models.TargetState
}

// New creates a Registry for targets.
func New(targets []models.Target) (*Registry, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets configured")
	}
	if len(targets) > models.MaxTargets {
		return nil, fmt.Errorf("too many targets: %d (max %d)", len(targets), models.MaxTargets)
	}

	ts := make([]models.Target, len(targets))
	copy(ts, targets)

	return &Registry{
		targets: ts,
		states:  make([]models.TargetState, len(ts)),
	}, nil
}

// Len returns the number of targets.
func (r *Registry) Len() int {
	return len(r.targets)
}

// Target returns the target at index i.
func (r *Registry) Target(i int) models.Target {
	return r.targets[i]
}

// Targets returns a copy of all targets in index order.
func (r *Registry) Targets() []models.Target {
	out := make([]models.Target, len(r.targets))
	copy(out, r.targets)
	return out
}

// State returns the mutable runtime state of target i.
func (r *Registry) State(i int) *models.TargetState {
	return &r.states[i]
}

// MatchPair returns the index of the first target whose client address is src
// and whose server address is dst. Targets without a server never match.
func (r *Registry) MatchPair(src, dst netip.Addr) (int, bool) {
	for i, t := range r.targets {
		if !t.HasServer() {
			continue
		}
		if t.IP == src && t.ServerIP == dst {
			return i, true
		}
	}
	return -1, false
}
