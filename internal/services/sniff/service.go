// Package sniff implements passive SYN-triggered detection over a stream of
// captured Ethernet frames.
package sniff

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/fgeck/wake-on-arp/internal/registry"
	"github.com/fgeck/wake-on-arp/internal/wire"
	"github.com/google/gopacket"
	"github.com/rs/zerolog"
)

// HandlerFunc receives the index of a matching target and the frame's capture time.
type HandlerFunc func(ctx context.Context, idx int, at time.Time)

// Service defines the interface for passive SYN detection.
type Service interface {
	OnFrame(frame []byte, reg *registry.Registry) (int, bool)
	Run(ctx context.Context, src gopacket.PacketDataSource, reg *registry.Registry, handle HandlerFunc) error
}

// Impl implements the sniff Service interface.
type Impl struct {
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a new sniff service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		logger: logger,
		now:    time.Now,
	}
}

// OnFrame returns the index of the target whose (client, server) pair matches
// the TCP SYN in frame. It does not touch target state.
func (s *Impl) OnFrame(frame []byte, reg *registry.Registry) (int, bool) {
	syn, ok := wire.ParseSYN(frame)
	if !ok {
		return -1, false
	}
	return reg.MatchPair(syn.Src, syn.Dst)
}

// Run reads frames from src until it is exhausted, closed, or ctx ends, and
// calls handle for every matching SYN. Read timeouts are treated as idle time.
func (s *Impl) Run(ctx context.Context, src gopacket.PacketDataSource, reg *registry.Registry, handle HandlerFunc) error {
	var frames, matches int
	defer func() {
		s.logger.Debug().Int("frames", frames).Int("matches", matches).Msg("frame stream ended")
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, ci, err := src.ReadPacketData()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, net.ErrClosed):
			return err
		case isTimeout(err):
			continue
		default:
			s.logger.Warn().Err(err).Msg("failed to read frame")
			continue
		}
		frames++

		idx, ok := s.OnFrame(data, reg)
		if !ok {
			continue
		}
		matches++

		at := ci.Timestamp
		if at.IsZero() {
			at = s.now()
		}

		t := reg.Target(idx)
		s.logger.Debug().
			Int("target", idx).
			Str("ip", t.IP.String()).
			Str("server", t.ServerIP.String()).
			Msg("SYN matched")

		handle(ctx, idx, at)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
