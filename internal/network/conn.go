package network

import (
	"errors"
	"net"
	"sync"
	"time"
)

// Conn is the UDP socket surface used by the sender and the listener.
// *net.UDPConn satisfies it directly.
type Conn interface {
	Write(b []byte) (int, error)
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
	Close() error
}

// Dialer opens UDP sockets. It exists so tests can swap in MockDialer.
type Dialer interface {
	DialUDP(raddr *net.UDPAddr) (Conn, error)
	ListenUDP(laddr *net.UDPAddr) (Conn, error)
}

// SystemDialer opens real sockets with the net package.
type SystemDialer struct{}

func (SystemDialer) DialUDP(raddr *net.UDPAddr) (Conn, error) {
	c, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (SystemDialer) ListenUDP(laddr *net.UDPAddr) (Conn, error) {
	c, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// MockDatagram is an inbound datagram served by MockConn.
type MockDatagram struct {
	Data []byte
	From *net.UDPAddr
}

// MockConn is an in-memory Conn. Writes are recorded; reads drain Inbound
// and then time out like a socket with a read deadline.
type MockConn struct {
	mu sync.Mutex

	Inbound []MockDatagram
	Written [][]byte

	// WriteErrors maps a 1-based write call number to the error it returns.
	WriteErrors map[int]error
	// ShortWrite makes every write report one byte fewer than requested.
	ShortWrite bool
	// ReadError is returned once by the next ReadFromUDP.
	ReadError error
	// DeadlineError is returned by every SetReadDeadline call.
	DeadlineError error

	ReadBufferSize int
	ReadDeadline   time.Time
	Closed         bool
	LocalAddress   *net.UDPAddr

	writeCalls int
	readIndex  int
}

// NewMockConn creates a MockConn that will deliver the given datagrams.
func NewMockConn(inbound ...MockDatagram) *MockConn {
	return &MockConn{
		Inbound:      inbound,
		LocalAddress: &net.UDPAddr{IP: net.IPv4zero, Port: DefaultPort},
	}
}

func (m *MockConn) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return 0, net.ErrClosed
	}
	m.writeCalls++
	if err, ok := m.WriteErrors[m.writeCalls]; ok {
		return 0, err
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	m.Written = append(m.Written, cp)
	if m.ShortWrite && len(b) > 0 {
		return len(b) - 1, nil
	}
	return len(b), nil
}

func (m *MockConn) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	if m.Closed {
		m.mu.Unlock()
		return 0, nil, net.ErrClosed
	}
	if m.ReadError != nil {
		err := m.ReadError
		m.ReadError = nil
		m.mu.Unlock()
		return 0, nil, err
	}
	if m.readIndex >= len(m.Inbound) {
		m.mu.Unlock()
		// stand-in for waiting out the read deadline
		time.Sleep(time.Millisecond)
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: errTimeout}
	}
	d := m.Inbound[m.readIndex]
	m.readIndex++
	m.mu.Unlock()
	return copy(b, d.Data), d.From, nil
}

func (m *MockConn) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadBufferSize = bytes
	return nil
}

func (m *MockConn) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeadlineError != nil {
		return m.DeadlineError
	}
	m.ReadDeadline = t
	return nil
}

func (m *MockConn) LocalAddr() net.Addr { return m.LocalAddress }

func (m *MockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Drained reports whether every inbound datagram has been read.
func (m *MockConn) Drained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readIndex >= len(m.Inbound)
}

// IsClosed reports whether Close has been called.
func (m *MockConn) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}

// MockDialer hands out a fixed MockConn and records the addresses used.
type MockDialer struct {
	Conn  *MockConn
	Error error

	Dialed   []*net.UDPAddr
	Listened []*net.UDPAddr
}

func (d *MockDialer) DialUDP(raddr *net.UDPAddr) (Conn, error) {
	d.Dialed = append(d.Dialed, raddr)
	if d.Error != nil {
		return nil, d.Error
	}
	return d.Conn, nil
}

func (d *MockDialer) ListenUDP(laddr *net.UDPAddr) (Conn, error) {
	d.Listened = append(d.Listened, laddr)
	if d.Error != nil {
		return nil, d.Error
	}
	return d.Conn, nil
}

var errTimeout error = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
