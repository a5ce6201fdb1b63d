//go:build integration

package integration

import (
	"bytes"
	"context"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/wake-on-arp/internal/config"
	"github.com/fgeck/wake-on-arp/internal/services/runner"
	"github.com/fgeck/wake-on-arp/internal/services/sniff"
	"github.com/fgeck/wake-on-arp/internal/wire/wiretest"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passiveConf = `
mode passive
net_device eth1
lan_device eth0
broadcast_ip 192.168.1.255
target_ip_1 192.168.1.10
target_mac_1 AA:BB:CC:DD:EE:FF
target_server_1 192.168.1.1
target_ip_2 192.168.1.20
target_mac_2 11:22:33:44:55:66
target_server_2 192.168.1.1
`

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func writeCapture(t *testing.T, frames [][]byte, times []time.Time) string {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for i, f := range frames {
		ci := gopacket.CaptureInfo{Timestamp: times[i], CaptureLength: len(f), Length: len(f)}
		require.NoError(t, w.WritePacket(ci, f))
	}
	return writeFile(t, "capture.pcap", buf.Bytes())
}

// TestReplay_ConfFileAndCapture loads a conf file from disk and replays a pcap
// file through the passive engine without touching any interface.
func TestReplay_ConfFileAndCapture(t *testing.T) {
	client1 := netip.MustParseAddr("192.168.1.10")
	client2 := netip.MustParseAddr("192.168.1.20")
	server := netip.MustParseAddr("192.168.1.1")
	t0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	capture := writeCapture(t,
		[][]byte{
			wiretest.SYN(t, client1, server),
			wiretest.SYN(t, client1, server),
			wiretest.TCP(t, client2, server, wiretest.TCPFlags{ACK: true}),
			wiretest.SYN(t, client2, server),
			wiretest.UDP(t, client1, server),
			wiretest.SYN(t, client1, server),
		},
		[]time.Time{
			t0,
			t0.Add(5 * time.Second),
			t0.Add(6 * time.Second),
			t0.Add(7 * time.Second),
			t0.Add(8 * time.Second),
			t0.Add(40 * time.Second),
		},
	)

	cfg, err := config.LoadFile(writeFile(t, "wake-on-arp.conf", []byte(passiveConf)))
	require.NoError(t, err)

	f, err := os.Open(capture)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	src, err := sniff.NewReplaySource(f)
	require.NoError(t, err)

	svc := runner.New(zerolog.New(io.Discard), "integration")
	events, err := svc.Replay(context.Background(), *cfg, src, false)

	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, 0, events[0].Index)
	assert.True(t, t0.Equal(events[0].At))
	assert.Equal(t, 1, events[1].Index)
	assert.True(t, t0.Add(7*time.Second).Equal(events[1].At))
	assert.Equal(t, 0, events[2].Index)
	assert.True(t, t0.Add(40*time.Second).Equal(events[2].At))
	for _, ev := range events {
		assert.NoError(t, ev.Error)
	}
}
