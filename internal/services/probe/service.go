// Package probe implements the active ARP presence probe.
package probe

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/fgeck/wake-on-arp/internal/models"
	"github.com/fgeck/wake-on-arp/internal/registry"
	"github.com/fgeck/wake-on-arp/internal/wire"
	"github.com/mdlayher/ethernet"
	"github.com/mdlayher/packet"
	"github.com/rs/zerolog"
)

// DefaultWindow is how long a cycle waits for replies when none is configured.
const DefaultWindow = 500 * time.Millisecond

// maxFrame bounds a single received frame.
const maxFrame = 1514

// drainWait bounds how long a cycle spends discarding frames queued before
// its requests went out. It must lie in the future: a read against an
// already expired deadline fails without looking at the queue.
const drainWait = 5 * time.Millisecond

// Conn is the link-layer substrate a cycle sends on and receives from.
// *packet.Conn satisfies it.
type Conn interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
	ReadFrom(b []byte) (int, net.Addr, error)
	SetReadDeadline(t time.Time) error
}

// Service defines the interface for active presence probing.
type Service interface {
	Cycle(ctx context.Context, reg *registry.Registry, link models.LinkContext, conn Conn, window time.Duration) []bool
}

// Impl implements the probe Service interface.
type Impl struct {
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a new probe service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		logger: logger,
		now:    time.Now,
	}
}

// Cycle sends one ARP request per target, then collects replies until window
// elapses. It returns whether each target answered during this cycle.
// Frames still queued from earlier cycles are discarded first.
func (s *Impl) Cycle(ctx context.Context, reg *registry.Registry, link models.LinkContext, conn Conn, window time.Duration) []bool {
	if window <= 0 {
		window = DefaultWindow
	}

	buf := make([]byte, maxFrame)
	s.drain(conn, buf)

	targets := reg.Targets()
	present := make([]bool, len(targets))
	probed := make([]bool, len(targets))
	pending := 0

	dst := &packet.Addr{HardwareAddr: ethernet.Broadcast}
	for i, t := range targets {
		frame, err := wire.EncodeARPRequest(link.LocalIP, link.LocalMAC, t.IP)
		if err != nil {
			s.logger.Error().Err(err).Int("target", i).Str("ip", t.IP.String()).Msg("failed to build ARP request")
			continue
		}
		if _, err := conn.WriteTo(frame, dst); err != nil {
			s.logger.Warn().Err(err).Int("target", i).Str("ip", t.IP.String()).Msg("failed to send ARP request")
			continue
		}
		probed[i] = true
		pending++
	}

	if pending == 0 {
		return present
	}

	deadline := s.now().Add(window)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		s.logger.Error().Err(err).Msg("failed to set ARP read deadline")
		return present
	}

	for pending > 0 && ctx.Err() == nil {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if !isTimeout(err) {
				s.logger.Error().Err(err).Msg("failed to receive ARP reply")
			}
			break
		}

		for i, t := range targets {
			if !probed[i] || present[i] {
				continue
			}
			if wire.IsARPReplyFor(buf[:n], t.IP) {
				present[i] = true
				pending--
			}
		}
	}

	s.logger.Debug().Interface("present", present).Msg("probe cycle finished")
	return present
}

// drain reads and drops whatever is queued on conn, so late or duplicate
// replies to a previous cycle cannot count as answers to this one.
func (s *Impl) drain(conn Conn, buf []byte) {
	if err := conn.SetReadDeadline(s.now().Add(drainWait)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to set ARP drain deadline")
		return
	}

	dropped := 0
	for {
		if _, _, err := conn.ReadFrom(buf); err != nil {
			if !isTimeout(err) {
				s.logger.Warn().Err(err).Msg("failed to drain ARP socket")
			}
			break
		}
		dropped++
	}

	if dropped > 0 {
		s.logger.Debug().Int("frames", dropped).Msg("discarded stale ARP frames")
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
