package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fgeck/wake-on-arp/internal/models"
	"github.com/fgeck/wake-on-arp/internal/registry"
	"github.com/fgeck/wake-on-arp/internal/services/trigger"
	"github.com/fgeck/wake-on-arp/internal/wire"
	"github.com/fgeck/wake-on-arp/internal/wire/wiretest"
	"github.com/mdlayher/packet"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn models an ARP socket. queued frames are waiting before the cycle
// starts; frames arrive once the first request is written; replyFunc answers
// each written request. An empty queue reports a deadline timeout.
type fakeConn struct {
	mu        sync.Mutex
	writeFunc func(b []byte) error
	replyFunc func(req []byte) [][]byte
	written   [][]byte
	dsts      []net.Addr
	queued    [][]byte
	frames    [][]byte
	delivered bool
	readErr   error
	deadlines []time.Time
	deadline  time.Time
}

func (c *fakeConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeFunc != nil {
		if err := c.writeFunc(b); err != nil {
			return 0, err
		}
	}
	c.written = append(c.written, append([]byte(nil), b...))
	c.dsts = append(c.dsts, addr)
	if !c.delivered {
		c.queued = append(c.queued, c.frames...)
		c.delivered = true
	}
	if c.replyFunc != nil {
		c.queued = append(c.queued, c.replyFunc(b)...)
	}
	return len(b), nil
}

func (c *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queued) > 0 {
		f := c.queued[0]
		c.queued = c.queued[1:]
		return copy(b, f), &packet.Addr{HardwareAddr: wiretest.RemoteMAC}, nil
	}
	if c.readErr != nil {
		return 0, nil, c.readErr
	}
	return 0, nil, os.ErrDeadlineExceeded
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines = append(c.deadlines, t)
	c.deadline = t
	return nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

var probeLink = models.LinkContext{
	Name:     "wlan0",
	Index:    3,
	LocalIP:  netip.MustParseAddr("10.0.0.1"),
	LocalMAC: wiretest.LocalMAC,
}

func testRegistry(t *testing.T, ips ...string) *registry.Registry {
	t.Helper()
	mac, _ := net.ParseMAC("AA:BB:CC:DD:EE:FF")
	targets := make([]models.Target, len(ips))
	for i, ip := range ips {
		targets[i] = models.Target{IP: netip.MustParseAddr(ip), MAC: mac}
	}
	reg, err := registry.New(targets)
	require.NoError(t, err)
	return reg
}

func reply(t *testing.T, ip string) []byte {
	return wiretest.ARPReply(t, netip.MustParseAddr(ip), wiretest.RemoteMAC, probeLink.LocalIP)
}

func TestCycle_SendsOneRequestPerTarget(t *testing.T) {
	conn := &fakeConn{}
	reg := testRegistry(t, "10.0.0.5", "10.0.0.6")

	New(testLogger()).Cycle(context.Background(), reg, probeLink, conn, 50*time.Millisecond)

	require.Len(t, conn.written, 2)
	for i, ip := range []string{"10.0.0.5", "10.0.0.6"} {
		want, err := wire.EncodeARPRequest(probeLink.LocalIP, probeLink.LocalMAC, netip.MustParseAddr(ip))
		require.NoError(t, err)
		assert.Equal(t, want, conn.written[i])
		assert.Equal(t, "ff:ff:ff:ff:ff:ff", conn.dsts[i].(*packet.Addr).HardwareAddr.String())
	}
}

func TestCycle_ReplyMarksPresent(t *testing.T) {
	conn := &fakeConn{frames: [][]byte{reply(t, "10.0.0.5")}}
	reg := testRegistry(t, "10.0.0.5")

	present := New(testLogger()).Cycle(context.Background(), reg, probeLink, conn, 50*time.Millisecond)

	assert.Equal(t, []bool{true}, present)
}

func TestCycle_NoReplyMeansAbsent(t *testing.T) {
	conn := &fakeConn{}
	reg := testRegistry(t, "10.0.0.5", "10.0.0.6")

	present := New(testLogger()).Cycle(context.Background(), reg, probeLink, conn, 50*time.Millisecond)

	assert.Equal(t, []bool{false, false}, present)
}

func TestCycle_IgnoresUnrelatedFrames(t *testing.T) {
	conn := &fakeConn{frames: [][]byte{
		wiretest.ARPRequest(t, netip.MustParseAddr("10.0.0.5"), wiretest.RemoteMAC, probeLink.LocalIP),
		reply(t, "10.0.0.99"),
		{0x01, 0x02, 0x03},
		reply(t, "10.0.0.6"),
	}}
	reg := testRegistry(t, "10.0.0.5", "10.0.0.6")

	present := New(testLogger()).Cycle(context.Background(), reg, probeLink, conn, 50*time.Millisecond)

	assert.Equal(t, []bool{false, true}, present)
}

func TestCycle_SendFailureOnlyAffectsThatTarget(t *testing.T) {
	bad, err := wire.EncodeARPRequest(probeLink.LocalIP, probeLink.LocalMAC, netip.MustParseAddr("10.0.0.5"))
	require.NoError(t, err)

	conn := &fakeConn{
		writeFunc: func(b []byte) error {
			if string(b) == string(bad) {
				return errors.New("no buffer space available")
			}
			return nil
		},
		// A reply from the failed target does not count: it was never probed.
		frames: [][]byte{reply(t, "10.0.0.5"), reply(t, "10.0.0.6")},
	}
	reg := testRegistry(t, "10.0.0.5", "10.0.0.6")

	present := New(testLogger()).Cycle(context.Background(), reg, probeLink, conn, 50*time.Millisecond)

	assert.Equal(t, []bool{false, true}, present)
	assert.Len(t, conn.written, 1)
}

func TestCycle_AllSendsFail(t *testing.T) {
	conn := &fakeConn{
		writeFunc: func([]byte) error { return errors.New("network is down") },
	}
	reg := testRegistry(t, "10.0.0.5")

	present := New(testLogger()).Cycle(context.Background(), reg, probeLink, conn, 50*time.Millisecond)

	assert.Equal(t, []bool{false}, present)
	assert.Len(t, conn.deadlines, 1, "no receive window without probes")
}

func TestCycle_ReceiveErrorEndsWindow(t *testing.T) {
	conn := &fakeConn{
		frames:  [][]byte{reply(t, "10.0.0.5")},
		readErr: errors.New("socket closed"),
	}
	reg := testRegistry(t, "10.0.0.5", "10.0.0.6")

	present := New(testLogger()).Cycle(context.Background(), reg, probeLink, conn, time.Second)

	assert.Equal(t, []bool{true, false}, present)
}

func TestCycle_DeadlineIsBounded(t *testing.T) {
	conn := &fakeConn{}
	reg := testRegistry(t, "10.0.0.5")
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	svc := New(testLogger())
	svc.now = func() time.Time { return fixed }
	svc.Cycle(context.Background(), reg, probeLink, conn, 250*time.Millisecond)

	assert.Equal(t, fixed.Add(250*time.Millisecond), conn.deadline)
}

func TestCycle_DefaultWindow(t *testing.T) {
	conn := &fakeConn{}
	reg := testRegistry(t, "10.0.0.5")
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	svc := New(testLogger())
	svc.now = func() time.Time { return fixed }
	svc.Cycle(context.Background(), reg, probeLink, conn, 0)

	assert.Equal(t, fixed.Add(DefaultWindow), conn.deadline)
}

func TestCycle_ContextDeadlineShortensWindow(t *testing.T) {
	conn := &fakeConn{}
	reg := testRegistry(t, "10.0.0.5")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	ctxDeadline, _ := ctx.Deadline()

	New(testLogger()).Cycle(ctx, reg, probeLink, conn, time.Hour)

	assert.Equal(t, ctxDeadline, conn.deadline)
}

func TestCycle_DiscardsFramesQueuedBeforeRequests(t *testing.T) {
	conn := &fakeConn{queued: [][]byte{reply(t, "10.0.0.5"), reply(t, "10.0.0.5")}}
	reg := testRegistry(t, "10.0.0.5")

	present := New(testLogger()).Cycle(context.Background(), reg, probeLink, conn, 50*time.Millisecond)

	assert.Equal(t, []bool{false}, present)
	assert.Empty(t, conn.queued)
}

func TestCycle_DrainDeadlineIsShortAndAhead(t *testing.T) {
	conn := &fakeConn{}
	reg := testRegistry(t, "10.0.0.5")
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	svc := New(testLogger())
	svc.now = func() time.Time { return fixed }
	svc.Cycle(context.Background(), reg, probeLink, conn, 250*time.Millisecond)

	require.Len(t, conn.deadlines, 2)
	assert.Equal(t, fixed.Add(drainWait), conn.deadlines[0])
	assert.Equal(t, fixed.Add(250*time.Millisecond), conn.deadlines[1])
}

type mockWOLService struct {
	sent []models.Target
}

func (m *mockWOLService) Send(_ context.Context, target models.Target, _ models.LinkContext) error {
	m.sent = append(m.sent, target)
	return nil
}

func TestCycle_DuplicateRepliesDoNotHideAbsence(t *testing.T) {
	up := false
	conn := &fakeConn{
		// Every answered request is answered twice; the second copy is
		// still queued when the cycle ends.
		replyFunc: func([]byte) [][]byte {
			if !up {
				return nil
			}
			return [][]byte{reply(t, "10.0.0.5"), reply(t, "10.0.0.5")}
		},
	}
	reg := testRegistry(t, "10.0.0.5")
	sender := &mockWOLService{}
	policy := trigger.New(testLogger(), reg, sender, models.LinkContext{Name: "eth0"})
	svc := New(testLogger())

	var observed []bool
	for _, state := range []bool{false, true, true, false, true} {
		up = state
		present := svc.Cycle(context.Background(), reg, probeLink, conn, 10*time.Millisecond)
		observed = append(observed, present[0])
		policy.ApplyPresence(context.Background(), present)
	}

	assert.Equal(t, []bool{false, true, true, false, true}, observed)
	assert.Len(t, sender.sent, 2)
}
