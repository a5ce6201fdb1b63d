// Package wiretest builds frames for tests.
package wiretest

import (
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/mdlayher/arp"
	"github.com/mdlayher/ethernet"
	"github.com/stretchr/testify/require"
)

// Fixed addresses used by fixtures.
var (
	LocalMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	RemoteMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// ARPReply returns an Ethernet frame carrying "senderIP is-at senderMAC".
func ARPReply(tb testing.TB, senderIP netip.Addr, senderMAC net.HardwareAddr, targetIP netip.Addr) []byte {
	tb.Helper()
	return arpFrame(tb, arp.OperationReply, senderIP, senderMAC, targetIP)
}

// ARPRequest returns an Ethernet frame carrying "who-has targetIP tell senderIP".
func ARPRequest(tb testing.TB, senderIP netip.Addr, senderMAC net.HardwareAddr, targetIP netip.Addr) []byte {
	tb.Helper()
	return arpFrame(tb, arp.OperationRequest, senderIP, senderMAC, targetIP)
}

func arpFrame(tb testing.TB, op arp.Operation, senderIP netip.Addr, senderMAC net.HardwareAddr, targetIP netip.Addr) []byte {
	tb.Helper()

	p, err := arp.NewPacket(op, senderMAC, senderIP, LocalMAC, targetIP)
	require.NoError(tb, err)
	payload, err := p.MarshalBinary()
	require.NoError(tb, err)

	f := &ethernet.Frame{
		Destination: LocalMAC,
		Source:      senderMAC,
		EtherType:   ethernet.EtherTypeARP,
		Payload:     payload,
	}
	b, err := f.MarshalBinary()
	require.NoError(tb, err)
	return b
}

// TCPFlags selects the flags set on a TCP fixture.
type TCPFlags struct {
	SYN, ACK, RST bool
}

// TCP returns an Ethernet/IPv4/TCP frame from src to dst.
func TCP(tb testing.TB, src, dst netip.Addr, flags TCPFlags) []byte {
	tb.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       RemoteMAC,
		DstMAC:       LocalMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    src.AsSlice(),
		DstIP:    dst.AsSlice(),
	}
	tcp := &layers.TCP{
		SrcPort: 51234,
		DstPort: 445,
		Seq:     1000,
		Window:  64240,
		SYN:     flags.SYN,
		ACK:     flags.ACK,
		RST:     flags.RST,
	}
	require.NoError(tb, tcp.SetNetworkLayerForChecksum(ip))

	return serialize(tb, eth, ip, tcp)
}

// SYN is shorthand for a bare SYN from src to dst.
func SYN(tb testing.TB, src, dst netip.Addr) []byte {
	tb.Helper()
	return TCP(tb, src, dst, TCPFlags{SYN: true})
}

// UDP returns an Ethernet/IPv4/UDP frame from src to dst.
func UDP(tb testing.TB, src, dst netip.Addr) []byte {
	tb.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       RemoteMAC,
		DstMAC:       LocalMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    src.AsSlice(),
		DstIP:    dst.AsSlice(),
	}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 5353}
	require.NoError(tb, udp.SetNetworkLayerForChecksum(ip))

	return serialize(tb, eth, ip, udp, gopacket.Payload([]byte("hello")))
}

func serialize(tb testing.TB, ls ...gopacket.SerializableLayer) []byte {
	tb.Helper()

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(tb, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}
