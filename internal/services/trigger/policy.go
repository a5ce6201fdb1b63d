// Package trigger decides when an observation turns into a wake.
//
// Active mode uses a rising-edge rule: a target fires when it is observed
// after a cycle in which it was not. Passive mode uses a cooldown rule: a
// candidate fires unless the same target fired within ThrottleInterval.
// Both rules update state before sending, so a failed send still counts.
package trigger

import (
	"context"
	"time"

	"github.com/fgeck/wake-on-arp/internal/models"
	"github.com/fgeck/wake-on-arp/internal/registry"
	"github.com/fgeck/wake-on-arp/internal/services/wol"
	"github.com/rs/zerolog"
)

// ThrottleInterval is the per-target cooldown between passive-mode wakes.
const ThrottleInterval = 30 * time.Second

// Policy applies the trigger rules to a Registry and sends wakes through a
// wol.Service. It must be driven from the goroutine that owns the Registry.
type Policy struct {
	reg      *registry.Registry
	sender   wol.Service
	lan      models.LinkContext
	throttle time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates a Policy waking through lan.
func New(logger zerolog.Logger, reg *registry.Registry, sender wol.Service, lan models.LinkContext) *Policy {
	return &Policy{
		reg:      reg,
		sender:   sender,
		lan:      lan,
		throttle: ThrottleInterval,
		now:      time.Now,
		logger:   logger,
	}
}

// ApplyPresence applies the edge rule to one probe cycle. present[i] is the
// observation for target i; missing entries count as absent.
func (p *Policy) ApplyPresence(ctx context.Context, present []bool) []models.WakeEvent {
	var events []models.WakeEvent

	for i := 0; i < p.reg.Len(); i++ {
		seen := i < len(present) && present[i]
		state := p.reg.State(i)

		if !seen {
			if state.Present {
				p.logger.Debug().Int("target", i).Str("ip", p.reg.Target(i).IP.String()).Msg("target went away")
			}
			state.Present = false
			continue
		}
		if state.Present {
			continue
		}

		now := p.now()
		state.Present = true
		state.LastWake = now
		events = append(events, p.fire(ctx, i, models.ModeActive, now))
	}

	return events
}

// ApplyCandidate applies the cooldown rule to a SYN match for target idx seen at now.
func (p *Policy) ApplyCandidate(ctx context.Context, idx int, now time.Time) (models.WakeEvent, bool) {
	if idx < 0 || idx >= p.reg.Len() {
		return models.WakeEvent{}, false
	}

	state := p.reg.State(idx)
	if !state.LastWake.IsZero() && now.Sub(state.LastWake) <= p.throttle {
		p.logger.Debug().
			Int("target", idx).
			Dur("since_last", now.Sub(state.LastWake)).
			Msg("wake throttled")
		return models.WakeEvent{}, false
	}

	state.LastWake = now
	return p.fire(ctx, idx, models.ModePassive, now), true
}

func (p *Policy) fire(ctx context.Context, idx int, mode models.Mode, at time.Time) models.WakeEvent {
	target := p.reg.Target(idx)
	event := models.WakeEvent{Index: idx, Target: target, Mode: mode, At: at}

	p.logger.Info().
		Int("target", idx).
		Str("ip", target.IP.String()).
		Str("mac", target.MAC.String()).
		Str("mode", string(mode)).
		Msg("wake triggered")

	if err := p.sender.Send(ctx, target, p.lan); err != nil {
		p.logger.Error().Err(err).Int("target", idx).Msg("failed to send WOL packet")
		event.Error = err
	}

	return event
}
