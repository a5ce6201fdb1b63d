package wire

import (
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// SYN holds the addresses of an observed TCP SYN segment.
type SYN struct {
	Src netip.Addr
	Dst netip.Addr
}

// ParseSYN returns the IPv4 endpoints of frame if it is an Ethernet/IPv4/TCP
// segment with the SYN flag set. Other TCP flags are not inspected.
func ParseSYN(frame []byte) (SYN, bool) {
	var (
		eth layers.Ethernet
		ip4 layers.IPv4
		tcp layers.TCP
	)
	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &eth, &ip4, &tcp)
	parser.IgnoreUnsupported = true

	decoded := make([]gopacket.LayerType, 0, 3)
	if err := parser.DecodeLayers(frame, &decoded); err != nil {
		return SYN{}, false
	}

	var sawIP, sawTCP bool
	for _, lt := range decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			sawIP = true
		case layers.LayerTypeTCP:
			sawTCP = true
		}
	}
	if !sawIP || !sawTCP {
		return SYN{}, false
	}
	if ip4.Version != 4 || ip4.IHL < 5 || ip4.Protocol != layers.IPProtocolTCP {
		return SYN{}, false
	}
	if !tcp.SYN {
		return SYN{}, false
	}

	src, ok := netip.AddrFromSlice(ip4.SrcIP.To4())
	if !ok {
		return SYN{}, false
	}
	dst, ok := netip.AddrFromSlice(ip4.DstIP.To4())
	if !ok {
		return SYN{}, false
	}

	return SYN{Src: src, Dst: dst}, true
}
