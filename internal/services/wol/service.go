// Package wol provides Wake-on-LAN operations.
package wol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/fgeck/wake-on-arp/internal/models"
	"github.com/fgeck/wake-on-arp/internal/wire"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
)

// DefaultPort is the UDP discard port magic packets are sent to.
const DefaultPort = 9

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Send(ctx context.Context, target models.Target, lan models.LinkContext) error
}

// Client sends a magic packet for mac to broadcast, sourced from source.
type Client interface {
	Wake(ctx context.Context, source, broadcast netip.Addr, mac net.HardwareAddr) error
}

// SendError reports which step of a wake send failed.
type SendError struct {
	Op  string // "payload", "listen", "write" or "send"
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("wol %s: %v", e.Op, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// DefaultClient sends magic packets over UDP. With a valid source address the
// socket is bound to it so the datagram leaves through the LAN interface;
// otherwise the mdlayher/wol client picks the route.
type DefaultClient struct {
	Port int // 0 means DefaultPort
}

// Wake sends a magic packet to the specified MAC address.
func (c *DefaultClient) Wake(ctx context.Context, source, broadcast netip.Addr, mac net.HardwareAddr) error {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	dst := netip.AddrPortFrom(broadcast, uint16(port))

	if !source.IsValid() {
		return c.wakeUnbound(dst, mac)
	}

	payload, err := wire.BuildWakePayload(mac)
	if err != nil {
		return &SendError{Op: "payload", Err: err}
	}

	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp4", netip.AddrPortFrom(source, 0).String())
	if err != nil {
		return &SendError{Op: "listen", Err: err}
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.WriteTo(payload[:], net.UDPAddrFromAddrPort(dst)); err != nil {
		return &SendError{Op: "write", Err: err}
	}

	return nil
}

func (c *DefaultClient) wakeUnbound(dst netip.AddrPort, mac net.HardwareAddr) error {
	client, err := wol.NewClient()
	if err != nil {
		return &SendError{Op: "listen", Err: fmt.Errorf("failed to create WOL client: %w", err)}
	}
	defer func() { _ = client.Close() }()

	if err := client.Wake(dst.String(), mac); err != nil {
		return &SendError{Op: "write", Err: err}
	}

	return nil
}

// DryRunClient logs instead of sending.
type DryRunClient struct {
	Logger zerolog.Logger
}

// Wake logs the packet that would have been sent.
func (c *DryRunClient) Wake(_ context.Context, source, broadcast netip.Addr, mac net.HardwareAddr) error {
	if _, err := wire.BuildWakePayload(mac); err != nil {
		return &SendError{Op: "payload", Err: err}
	}

	c.Logger.Info().
		Str("mac", mac.String()).
		Str("source", source.String()).
		Str("broadcast", broadcast.String()).
		Msg("dry run: WOL packet not sent")
	return nil
}

// Impl implements the WOL Service interface.
type Impl struct {
	wolClient Client
	broadcast netip.Addr
	logger    zerolog.Logger
}

// New creates a new WOL service sending to broadcast.
func New(logger zerolog.Logger, broadcast netip.Addr) *Impl {
	return &Impl{
		wolClient: &DefaultClient{},
		broadcast: broadcast,
		logger:    logger,
	}
}

// NewWithClient creates a new WOL service with a custom client (for testing).
func NewWithClient(logger zerolog.Logger, wolClient Client, broadcast netip.Addr) *Impl {
	return &Impl{
		wolClient: wolClient,
		broadcast: broadcast,
		logger:    logger,
	}
}

// Send wakes target through the LAN link.
func (s *Impl) Send(ctx context.Context, target models.Target, lan models.LinkContext) error {
	s.logger.Info().
		Str("mac", target.MAC.String()).
		Str("broadcast", s.broadcast.String()).
		Str("device", lan.Name).
		Msg("sending WOL packet")

	if err := s.wolClient.Wake(ctx, lan.LocalIP, s.broadcast, target.MAC); err != nil {
		var se *SendError
		if errors.As(err, &se) {
			return err
		}
		return &SendError{Op: "send", Err: err}
	}

	s.logger.Debug().Str("mac", target.MAC.String()).Msg("WOL packet sent successfully")
	return nil
}
