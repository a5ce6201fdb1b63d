// Package link resolves network interfaces and opens the raw sockets the
// detection engines run on.
package link

import (
	"fmt"
	"io"
	"net"
	"net/netip"

	"github.com/fgeck/wake-on-arp/internal/models"
	"github.com/fgeck/wake-on-arp/internal/services/probe"
	"github.com/google/gopacket"
	"github.com/mdlayher/packet"
	"github.com/rs/zerolog"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// ProbeConn is an ARP socket for the active engine.
type ProbeConn interface {
	probe.Conn
	io.Closer
}

// CaptureSource is a frame stream for the passive engine.
type CaptureSource interface {
	gopacket.PacketDataSource
	io.Closer
}

// Service defines the interface for link resolution and socket setup.
type Service interface {
	Resolve(name string) (models.LinkContext, error)
	OpenProbe(link models.LinkContext) (ProbeConn, error)
	OpenCapture(link models.LinkContext, promiscuous bool) (CaptureSource, error)
}

// Impl implements the link Service interface on Linux.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new link service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// Resolve looks up the index, hardware address and first IPv4 address of name.
func (s *Impl) Resolve(name string) (models.LinkContext, error) {
	if name == "" {
		return models.LinkContext{}, fmt.Errorf("empty interface name")
	}

	l, err := netlink.LinkByName(name)
	if err != nil {
		return models.LinkContext{}, fmt.Errorf("looking up interface %s: %w", name, err)
	}
	attrs := l.Attrs()

	addrs, err := netlink.AddrList(l, netlink.FAMILY_V4)
	if err != nil {
		return models.LinkContext{}, fmt.Errorf("listing addresses of %s: %w", name, err)
	}

	for _, a := range addrs {
		if a.IPNet == nil {
			continue
		}
		ip, ok := netip.AddrFromSlice(a.IP.To4())
		if !ok {
			continue
		}
		ones, _ := a.Mask.Size()

		lc := models.LinkContext{
			Name:      attrs.Name,
			Index:     attrs.Index,
			LocalIP:   ip,
			LocalMAC:  attrs.HardwareAddr,
			LocalMask: ones,
		}
		s.logger.Debug().
			Str("device", lc.Name).
			Int("index", lc.Index).
			Str("ip", lc.LocalIP.String()).
			Str("mac", lc.LocalMAC.String()).
			Msg("interface resolved")
		return lc, nil
	}

	return models.LinkContext{}, fmt.Errorf("no IPv4 address found on interface %s", name)
}

// OpenProbe opens a raw ARP socket on link.
func (s *Impl) OpenProbe(link models.LinkContext) (ProbeConn, error) {
	conn, err := packet.Listen(iface(link), packet.Raw, unix.ETH_P_ARP, nil)
	if err != nil {
		return nil, fmt.Errorf("opening ARP socket on %s: %w", link.Name, err)
	}
	return conn, nil
}

// OpenCapture opens a raw IPv4 socket on link filtered to TCP SYN segments.
// With promiscuous set, the link also delivers frames not addressed to it
// until the returned source is closed.
func (s *Impl) OpenCapture(link models.LinkContext, promiscuous bool) (CaptureSource, error) {
	conn, err := packet.Listen(iface(link), packet.Raw, unix.ETH_P_IP, nil)
	if err != nil {
		return nil, fmt.Errorf("opening capture socket on %s: %w", link.Name, err)
	}

	filter, err := SYNFilter()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.SetBPF(filter); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("attaching SYN filter on %s: %w", link.Name, err)
	}

	if promiscuous {
		if err := conn.SetPromiscuous(true); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("enabling promiscuous mode on %s: %w", link.Name, err)
		}
		s.logger.Info().Str("device", link.Name).Msg("promiscuous mode enabled")
	}

	return newCapture(conn, link.Name, promiscuous, s.logger), nil
}

func iface(link models.LinkContext) *net.Interface {
	return &net.Interface{
		Index:        link.Index,
		Name:         link.Name,
		HardwareAddr: link.LocalMAC,
	}
}
