// Command oap-listen binds a UDP port on all interfaces and prints the size
// and source of every datagram until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/NCAR/aircraft-oap/internal/config"
	"github.com/NCAR/aircraft-oap/internal/network"
	"github.com/NCAR/aircraft-oap/internal/version"
)

func run(ctx context.Context, args []string, stdout, stderr io.Writer, dialer network.Dialer) int {
	fs := flag.NewFlagSet("oap-listen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	port := fs.Int("port", config.DefaultPort, "UDP port to listen on")
	rcvBuf := fs.Int("rcvbuf", 4<<20, "Socket receive buffer size in bytes")
	statsInterval := fs.Duration("stats-interval", 0, "Interval between stats lines (0 disables)")
	configPath := fs.String("config", "", "Path to a JSON settings file (listen_port)")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.String("oap-listen"))
		return 0
	}

	if *configPath != "" {
		cfg, err := config.LoadReplayConfig(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		portSet := false
		fs.Visit(func(f *flag.Flag) { portSet = portSet || f.Name == "port" })
		if !portSet {
			*port = cfg.GetListenPort()
		}
	}

	l := network.NewListener(network.ListenerConfig{
		Address:     fmt.Sprintf("0.0.0.0:%d", *port),
		RcvBuf:      *rcvBuf,
		LogInterval: *statsInterval,
		Dialer:      dialer,
		Report: func(d network.Datagram) {
			fmt.Fprintf(stdout, "Received %d bytes from %v\n", d.Size, d.From)
		},
	})

	fmt.Fprintf(stdout, "Listening for UDP packets on port %d...\n", *port)
	err := l.Start(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "Stopped listening")
	fmt.Fprintf(stdout, "Summary: %s\n", l.Stats().Summary())
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, network.SystemDialer{})
	stop()
	os.Exit(code)
}
