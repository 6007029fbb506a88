package network

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/NCAR/aircraft-oap/internal/timeutil"
)

// maxDatagram is large enough for any UDP payload, so raw 4114-byte records
// are never truncated.
const maxDatagram = 65536

// Datagram describes one received packet.
type Datagram struct {
	Size int
	From *net.UDPAddr
	At   time.Time
}

// ListenerConfig configures a Listener. Zero values pick defaults.
type ListenerConfig struct {
	// Address to bind; defaults to ":5000" (all interfaces).
	Address string
	RcvBuf  int

	// LogInterval between periodic stats lines; zero disables them.
	LogInterval time.Duration

	// Report is called for every datagram. Defaults to a log line.
	Report func(Datagram)

	Dialer Dialer
	Clock  timeutil.Clock
}

// Listener passively receives datagrams and reports each one.
type Listener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	report      func(Datagram)
	dialer      Dialer
	clock       timeutil.Clock
	stats       *ListenerStats
}

// NewListener applies defaults to config.
func NewListener(config ListenerConfig) *Listener {
	l := &Listener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: config.LogInterval,
		report:      config.Report,
		dialer:      config.Dialer,
		clock:       config.Clock,
		stats:       NewListenerStats(),
	}
	if l.address == "" {
		l.address = fmt.Sprintf(":%d", DefaultPort)
	}
	if l.report == nil {
		l.report = func(d Datagram) {
			log.Printf("Received %d bytes from %v", d.Size, d.From)
		}
	}
	if l.dialer == nil {
		l.dialer = SystemDialer{}
	}
	if l.clock == nil {
		l.clock = timeutil.RealClock{}
	}
	return l
}

// Stats exposes the listener's running statistics.
func (l *Listener) Stats() *ListenerStats { return l.stats }

// Start binds the socket and receives until ctx is cancelled. Failing to arm
// the read deadline is fatal, since a read could then block past
// cancellation. The socket is always closed before Start returns.
func (l *Listener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := l.dialer.ListenUDP(addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			log.Printf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	log.Printf("Listening for UDP packets on %s...", conn.LocalAddr())

	if l.logInterval > 0 {
		go l.logStats(ctx)
	}

	buffer := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			log.Print("Stopped listening")
			return ctx.Err()
		default:
		}

		// short deadline so cancellation is observed
		if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				log.Print("Stopped listening")
				return ctx.Err()
			}
			log.Printf("UDP read error: %v", err)
			continue
		}

		d := Datagram{Size: n, From: from, At: l.clock.Now()}
		src := ""
		if from != nil {
			src = from.String()
		}
		l.stats.Add(n, src, d.At)
		l.report(d)
	}
}

func (l *Listener) logStats(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	last := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sum := l.stats.Summary()
			if sum.Packets > last {
				log.Printf("Listener stats: %s", sum)
				last = sum.Packets
			}
		}
	}
}
