// Package runner drives the detection engines: it resolves the links, opens
// the sockets and loops until the context ends.
package runner

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/fgeck/wake-on-arp/internal/models"
	"github.com/fgeck/wake-on-arp/internal/registry"
	"github.com/fgeck/wake-on-arp/internal/services/link"
	"github.com/fgeck/wake-on-arp/internal/services/probe"
	"github.com/fgeck/wake-on-arp/internal/services/sniff"
	"github.com/fgeck/wake-on-arp/internal/services/telegram"
	"github.com/fgeck/wake-on-arp/internal/services/trigger"
	"github.com/fgeck/wake-on-arp/internal/services/wol"
	"github.com/google/gopacket"
	"github.com/rs/zerolog"
)

// Service defines the interface for the wake-on-arp driver.
type Service interface {
	Run(ctx context.Context, cfg models.Config) error
	Replay(ctx context.Context, cfg models.Config, src gopacket.PacketDataSource, send bool) ([]models.WakeEvent, error)
	Wake(ctx context.Context, cfg models.Config, idx int) (models.WakeEvent, error)
}

// notifyTimeout bounds each Telegram call, which runs on the detection loop.
const notifyTimeout = 3 * time.Second

// SenderFactory builds the WakeSender used for a run.
type SenderFactory func(broadcast netip.Addr) wol.Service

// Impl implements the runner Service interface.
type Impl struct {
	links       link.Service
	probeSvc    probe.Service
	sniffSvc    sniff.Service
	telegramSvc telegram.Service
	newSender   SenderFactory
	logger      zerolog.Logger
	after       func(d time.Duration) <-chan time.Time
	now         func() time.Time
}

// New creates a new runner service. host names this machine in notifications.
func New(logger zerolog.Logger, host string) *Impl {
	return &Impl{
		links:       link.New(logger),
		probeSvc:    probe.New(logger),
		sniffSvc:    sniff.New(logger),
		telegramSvc: telegram.New(logger, host),
		newSender: func(broadcast netip.Addr) wol.Service {
			return wol.New(logger, broadcast)
		},
		logger: logger,
		after:  time.After,
		now:    time.Now,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	links link.Service,
	probeSvc probe.Service,
	sniffSvc sniff.Service,
	telegramSvc telegram.Service,
	newSender SenderFactory,
) *Impl {
	return &Impl{
		links:       links,
		probeSvc:    probeSvc,
		sniffSvc:    sniffSvc,
		telegramSvc: telegramSvc,
		newSender:   newSender,
		logger:      logger,
		after:       time.After,
		now:         time.Now,
	}
}

// Run resolves both links and runs the configured detection mode until ctx
// ends or the capture source fails. Startup failures are returned before any
// socket is opened.
func (s *Impl) Run(ctx context.Context, cfg models.Config) error {
	reg, err := registry.New(cfg.Targets)
	if err != nil {
		return err
	}

	probeLink, err := s.links.Resolve(cfg.ProbeDevice)
	if err != nil {
		return fmt.Errorf("probe device: %w", err)
	}
	lanLink, err := s.links.Resolve(cfg.LANDevice)
	if err != nil {
		return fmt.Errorf("LAN device: %w", err)
	}

	if err := CheckTargets(s.logger, cfg, probeLink); err != nil {
		return err
	}

	policy := trigger.New(s.logger, reg, s.newSender(cfg.BroadcastIP), lanLink)

	s.logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("device", probeLink.Name).
		Str("lan_device", lanLink.Name).
		Int("targets", reg.Len()).
		Msg("starting wake-on-arp")

	if cfg.Mode == models.ModePassive {
		return s.runPassive(ctx, cfg, reg, probeLink, policy)
	}
	return s.runActive(ctx, cfg, reg, probeLink, policy)
}

func (s *Impl) runActive(
	ctx context.Context,
	cfg models.Config,
	reg *registry.Registry,
	probeLink models.LinkContext,
	policy *trigger.Policy,
) error {
	conn, err := s.links.OpenProbe(probeLink)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		present := s.probeSvc.Cycle(ctx, reg, probeLink, conn, cfg.ProbeWindow)
		s.notify(ctx, cfg, policy.ApplyPresence(ctx, present))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(cfg.PollInterval):
		}
	}
}

func (s *Impl) runPassive(
	ctx context.Context,
	cfg models.Config,
	reg *registry.Registry,
	probeLink models.LinkContext,
	policy *trigger.Policy,
) error {
	src, err := s.links.OpenCapture(probeLink, cfg.Promiscuous)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	return s.sniffSvc.Run(ctx, src, reg, s.candidateHandler(cfg, policy))
}

// Replay feeds a recorded frame stream through the passive engine, using the
// capture timestamps for the cooldown. Unless send is set, wakes are logged
// and not transmitted, and no interface is touched.
func (s *Impl) Replay(ctx context.Context, cfg models.Config, src gopacket.PacketDataSource, send bool) ([]models.WakeEvent, error) {
	reg, err := registry.New(cfg.Targets)
	if err != nil {
		return nil, err
	}

	lanLink := models.LinkContext{Name: cfg.LANDevice}
	sender := wol.Service(wol.NewWithClient(s.logger, &wol.DryRunClient{Logger: s.logger}, cfg.BroadcastIP))
	if send {
		lanLink, err = s.links.Resolve(cfg.LANDevice)
		if err != nil {
			return nil, fmt.Errorf("LAN device: %w", err)
		}
		sender = s.newSender(cfg.BroadcastIP)
	}

	policy := trigger.New(s.logger, reg, sender, lanLink)

	var events []models.WakeEvent
	handle := func(ctx context.Context, idx int, at time.Time) {
		ev, ok := policy.ApplyCandidate(ctx, idx, at)
		if !ok {
			return
		}
		events = append(events, ev)
		if send {
			s.notify(ctx, cfg, []models.WakeEvent{ev})
		}
	}

	if err := s.sniffSvc.Run(ctx, src, reg, handle); err != nil {
		return events, err
	}
	return events, nil
}

// Wake sends the magic packet for target idx (0-based) right away.
func (s *Impl) Wake(ctx context.Context, cfg models.Config, idx int) (models.WakeEvent, error) {
	if idx < 0 || idx >= len(cfg.Targets) {
		return models.WakeEvent{}, fmt.Errorf("target %d not configured (have %d)", idx+1, len(cfg.Targets))
	}

	lanLink, err := s.links.Resolve(cfg.LANDevice)
	if err != nil {
		return models.WakeEvent{}, fmt.Errorf("LAN device: %w", err)
	}

	target := cfg.Targets[idx]
	event := models.WakeEvent{Index: idx, Target: target, Mode: models.ModeManual, At: s.now()}
	event.Error = s.newSender(cfg.BroadcastIP).Send(ctx, target, lanLink)

	s.notify(ctx, cfg, []models.WakeEvent{event})

	if event.Error != nil {
		return event, fmt.Errorf("waking target %d: %w", idx+1, event.Error)
	}
	return event, nil
}

func (s *Impl) candidateHandler(cfg models.Config, policy *trigger.Policy) sniff.HandlerFunc {
	return func(ctx context.Context, idx int, at time.Time) {
		if ev, ok := policy.ApplyCandidate(ctx, idx, at); ok {
			s.notify(ctx, cfg, []models.WakeEvent{ev})
		}
	}
}

func (s *Impl) notify(ctx context.Context, cfg models.Config, events []models.WakeEvent) {
	if cfg.Telegram == nil {
		return
	}

	for _, ev := range events {
		nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		result, err := s.telegramSvc.SendNotification(nctx, *cfg.Telegram, ev)
		cancel()
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to send Telegram notification")
			continue
		}
		if result.Error != nil {
			s.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
			continue
		}

		s.logger.Info().Int("target", ev.Index).Msg("Telegram notification sent")
	}
}
