package sniff

import (
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// NewReplaySource reads Ethernet frames from a pcap stream.
func NewReplaySource(r io.Reader) (gopacket.PacketDataSource, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading pcap header: %w", err)
	}
	if lt := pr.LinkType(); lt != layers.LinkTypeEthernet {
		return nil, fmt.Errorf("unsupported link type %s: need Ethernet", lt)
	}
	return pr, nil
}
