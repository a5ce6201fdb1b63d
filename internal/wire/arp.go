// Package wire encodes and decodes the frames wake-on-arp sends and inspects.
//
// Decoders never return errors: a frame that does not parse is simply not a match.
package wire

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/mdlayher/arp"
	"github.com/mdlayher/ethernet"
)

const (
	// EthernetHeaderLen is the length of an untagged Ethernet II header.
	EthernetHeaderLen = 14
	// ARPPacketLen is the length of an Ethernet/IPv4 ARP packet.
	ARPPacketLen = 28
	// ARPFrameLen is the length of an unpadded Ethernet+ARP frame.
	ARPFrameLen = EthernetHeaderLen + ARPPacketLen
)

var zeroMAC = net.HardwareAddr{0, 0, 0, 0, 0, 0}

// EncodeARPRequest builds a broadcast "who-has targetIP" frame.
func EncodeARPRequest(senderIP netip.Addr, senderMAC net.HardwareAddr, targetIP netip.Addr) ([]byte, error) {
	if !senderIP.Is4() || !targetIP.Is4() {
		return nil, fmt.Errorf("arp request requires IPv4 addresses, got %s and %s", senderIP, targetIP)
	}
	if len(senderMAC) != 6 {
		return nil, fmt.Errorf("invalid sender MAC %q", senderMAC)
	}

	p, err := arp.NewPacket(arp.OperationRequest, senderMAC, senderIP, zeroMAC, targetIP)
	if err != nil {
		return nil, fmt.Errorf("building arp packet: %w", err)
	}
	payload, err := p.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshaling arp packet: %w", err)
	}

	f := &ethernet.Frame{
		Destination: ethernet.Broadcast,
		Source:      senderMAC,
		EtherType:   ethernet.EtherTypeARP,
		Payload:     payload,
	}
	b, err := f.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshaling ethernet frame: %w", err)
	}
	if len(b) < ARPFrameLen {
		return nil, fmt.Errorf("short arp frame: %d bytes", len(b))
	}

	// Minimum-size padding is left to the driver.
	return b[:ARPFrameLen], nil
}

// IsARPReplyFor reports whether frame is an ARP reply sent by expectedSender.
func IsARPReplyFor(frame []byte, expectedSender netip.Addr) bool {
	if len(frame) < ARPFrameLen {
		return false
	}

	var f ethernet.Frame
	if err := f.UnmarshalBinary(frame); err != nil {
		return false
	}
	if f.EtherType != ethernet.EtherTypeARP {
		return false
	}

	var p arp.Packet
	if err := p.UnmarshalBinary(f.Payload); err != nil {
		return false
	}

	return p.Operation == arp.OperationReply && p.SenderIP == expectedSender
}
