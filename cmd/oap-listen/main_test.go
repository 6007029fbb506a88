package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NCAR/aircraft-oap/internal/network"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRun_PrintsEachDatagram(t *testing.T) {
	from := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 53000}
	conn := network.NewMockConn(
		network.MockDatagram{Data: make([]byte, 4096), From: from},
		network.MockDatagram{Data: make([]byte, 4114), From: from},
	)
	dialer := &network.MockDialer{Conn: conn}

	var stdout, stderr syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- run(ctx, []string{"-port", "5001"}, &stdout, &stderr, dialer) }()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "Received 4114 bytes from 127.0.0.1:53000")
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after interrupt")
	}

	out := stdout.String()
	assert.Contains(t, out, "Listening for UDP packets on port 5001")
	assert.Contains(t, out, "Received 4096 bytes from 127.0.0.1:53000")
	assert.Contains(t, out, "Stopped listening")
	assert.Contains(t, out, "2 packets")
	assert.True(t, conn.IsClosed())
	require.Len(t, dialer.Listened, 1)
	assert.Equal(t, 5001, dialer.Listened[0].Port)
}

func TestRun_BindFailure(t *testing.T) {
	var stdout, stderr syncBuffer
	dialer := &network.MockDialer{Error: errors.New("address already in use")}

	code := run(context.Background(), nil, &stdout, &stderr, dialer)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "address already in use")
}

func TestRun_BadFlag(t *testing.T) {
	var stdout, stderr syncBuffer
	code := run(context.Background(), []string{"-bogus"}, &stdout, &stderr, &network.MockDialer{})
	assert.Equal(t, 2, code)
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr syncBuffer
	code := run(context.Background(), []string{"-version"}, &stdout, &stderr, &network.MockDialer{})
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "oap-listen ")
}
