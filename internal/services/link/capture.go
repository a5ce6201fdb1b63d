package link

import (
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/rs/zerolog"
)

// pollInterval bounds each blocking read so callers can observe cancellation.
const pollInterval = time.Second

// captureConn is the subset of *packet.Conn a Capture needs.
type captureConn interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	SetReadDeadline(t time.Time) error
	SetPromiscuous(enable bool) error
	Close() error
}

// Capture is a live frame stream. It owns the socket and, when enabled, the
// promiscuous membership, both released by Close.
type Capture struct {
	conn    captureConn
	name    string
	promisc bool
	buf     []byte
	logger  zerolog.Logger
	now     func() time.Time
}

func newCapture(conn captureConn, name string, promisc bool, logger zerolog.Logger) *Capture {
	return &Capture{
		conn:    conn,
		name:    name,
		promisc: promisc,
		buf:     make([]byte, 65536),
		logger:  logger,
		now:     time.Now,
	}
}

// ReadPacketData returns the next captured frame. A read that sees no frame
// within pollInterval returns a timeout error.
func (c *Capture) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if err := c.conn.SetReadDeadline(c.now().Add(pollInterval)); err != nil {
		return nil, gopacket.CaptureInfo{}, err
	}

	n, _, err := c.conn.ReadFrom(c.buf)
	if err != nil {
		return nil, gopacket.CaptureInfo{}, err
	}

	data := make([]byte, n)
	copy(data, c.buf[:n])
	return data, gopacket.CaptureInfo{
		Timestamp:     c.now(),
		CaptureLength: n,
		Length:        n,
	}, nil
}

// Close restores the link's promiscuous setting and closes the socket.
func (c *Capture) Close() error {
	if c.promisc {
		if err := c.conn.SetPromiscuous(false); err != nil {
			c.logger.Warn().Err(err).Str("device", c.name).Msg("failed to disable promiscuous mode")
		} else {
			c.logger.Info().Str("device", c.name).Msg("promiscuous mode disabled")
		}
	}
	return c.conn.Close()
}
