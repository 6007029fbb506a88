// Package network holds the UDP transport for the replay tools: a
// connected sender for outbound records and a passive listener.
package network

import (
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 5000
)

// UDPSender writes each datagram to one fixed destination. The socket is
// opened once by NewUDPSender and released by Close.
type UDPSender struct {
	conn    Conn
	address string

	packets int
	bytes   int
}

// NewUDPSender resolves host:port and connects a UDP socket to it. A nil
// dialer uses SystemDialer.
func NewUDPSender(host string, port int, dialer Dialer) (*UDPSender, error) {
	if dialer == nil {
		dialer = SystemDialer{}
	}
	address := net.JoinHostPort(host, strconv.Itoa(port))
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target address: %w", err)
	}

	conn, err := dialer.DialUDP(raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create send connection: %w", err)
	}

	log.Printf("Sending datagrams to %s", address)
	return &UDPSender{conn: conn, address: address}, nil
}

// Send writes datagram as a single UDP packet.
func (s *UDPSender) Send(datagram []byte) error {
	n, err := s.conn.Write(datagram)
	if err != nil {
		return err
	}
	if n != len(datagram) {
		return fmt.Errorf("short write to %s: %d of %d bytes: %w", s.address, n, len(datagram), io.ErrShortWrite)
	}
	s.packets++
	s.bytes += n
	return nil
}

// Address is the resolved host:port target.
func (s *UDPSender) Address() string { return s.address }

// Counts returns datagrams and bytes sent so far.
func (s *UDPSender) Counts() (packets, bytes int) { return s.packets, s.bytes }

func (s *UDPSender) Close() error {
	return s.conn.Close()
}
