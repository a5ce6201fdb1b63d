package wire

import (
	"fmt"
	"net"

	"github.com/mdlayher/wol"
)

// WakePayloadLen is the size of a password-less magic packet.
const WakePayloadLen = 102

// WakePayload is a Wake-on-LAN magic packet: six 0xFF bytes followed by
// sixteen copies of the target MAC.
type WakePayload [WakePayloadLen]byte

// BuildWakePayload returns the magic packet waking mac.
func BuildWakePayload(mac net.HardwareAddr) (WakePayload, error) {
	var out WakePayload
	if len(mac) != 6 {
		return out, fmt.Errorf("invalid MAC address %q: need 6 bytes", mac)
	}

	b, err := (&wol.MagicPacket{Target: mac}).MarshalBinary()
	if err != nil {
		return out, fmt.Errorf("marshaling magic packet: %w", err)
	}
	if len(b) != WakePayloadLen {
		return out, fmt.Errorf("unexpected magic packet length %d", len(b))
	}

	copy(out[:], b)
	return out, nil
}
