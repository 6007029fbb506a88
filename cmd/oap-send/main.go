// Command oap-send streams an OAP probe capture over UDP, one record per
// datagram, for receiver simulation and testing.
//
// Usage:
//
//	oap-send [flags] FILE
//
// Flags:
//
//	-ip          target address (default 127.0.0.1)
//	-port        target UDP port (default 5000)
//	-delay       seconds between records (default 0.2)
//	-mode        reconstructed (4096-byte payload) or raw (whole 4114-byte record)
//	-fullrecord  shorthand for -mode raw
//	-pcap        FILE is a pcap recording of a previous -fullrecord replay
//	-pcap-port   only take datagrams to this UDP port from -pcap input (0 = any)
//	-config      JSON settings file; explicit flags win
//	-v           log raw header fields for every record
//	-version     print build information and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NCAR/aircraft-oap/internal/capture"
	"github.com/NCAR/aircraft-oap/internal/config"
	"github.com/NCAR/aircraft-oap/internal/fsutil"
	"github.com/NCAR/aircraft-oap/internal/monitoring"
	"github.com/NCAR/aircraft-oap/internal/network"
	"github.com/NCAR/aircraft-oap/internal/oap"
	"github.com/NCAR/aircraft-oap/internal/version"
)

type options struct {
	host       string
	port       int
	delay      float64
	fullRecord bool
	modeName   string
	mode       oap.Mode
	pcap       bool
	pcapPort   int
	configPath string
	verbose    bool
	version    bool
	filename   string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("oap-send", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.host, "ip", config.DefaultHost, "Target IP address")
	fs.IntVar(&opts.port, "port", config.DefaultPort, "Target UDP port")
	fs.Float64Var(&opts.delay, "delay", config.DefaultDelay.Seconds(), "Delay between records in seconds")
	fs.BoolVar(&opts.fullRecord, "fullrecord", false, "Send the full 4114-byte record (header + data + checksum) instead of the 4096-byte data")
	fs.StringVar(&opts.modeName, "mode", oap.ModeReconstructed.String(), "Payload to send: reconstructed or raw")
	fs.BoolVar(&opts.pcap, "pcap", false, "Treat FILE as a pcap recording of raw records")
	fs.IntVar(&opts.pcapPort, "pcap-port", 0, "UDP destination port to extract from -pcap input (0 = any)")
	fs.StringVar(&opts.configPath, "config", "", "Path to a JSON settings file")
	fs.BoolVar(&opts.verbose, "v", false, "Log raw header fields for each record")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: oap-send [flags] FILE")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.version {
		return opts, nil
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, errors.New("exactly one capture file is required")
	}
	opts.filename = fs.Arg(0)

	if opts.configPath != "" {
		cfg, err := config.LoadReplayConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		set := map[string]bool{}
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if !set["ip"] {
			opts.host = cfg.GetHost()
		}
		if !set["port"] {
			opts.port = cfg.GetPort()
		}
		if !set["delay"] {
			opts.delay = cfg.GetDelay().Seconds()
		}
		if !set["fullrecord"] && !set["mode"] {
			opts.modeName = cfg.GetMode().String()
		}
		if !set["pcap-port"] {
			opts.pcapPort = cfg.GetPCAPPort()
		}
	}

	if opts.delay < 0 {
		return nil, fmt.Errorf("delay must not be negative, got %v", opts.delay)
	}
	mode, err := oap.ParseMode(opts.modeName)
	if err != nil {
		return nil, err
	}
	if opts.fullRecord {
		mode = oap.ModeRaw
	}
	opts.mode = mode
	return opts, nil
}

func (o *options) streamConfig() oap.StreamConfig {
	return oap.StreamConfig{
		Delay:           time.Duration(o.delay * float64(time.Second)),
		Mode:            o.mode,
		OmitSentResults: true,
	}
}

// extractRecords pulls raw records out of a pcap recording.
func extractRecords(r io.Reader, o *options) ([]byte, error) {
	records, stats, err := capture.ExtractPCAP(r, o.pcapPort)
	if err != nil {
		return nil, err
	}
	if stats.Records == 0 {
		log.Printf("Warning: no %d-byte records found in %s", oap.RecordSize, o.filename)
	}
	return records, nil
}

// run returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, fsys fsutil.FileSystem, dialer network.Dialer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if opts.version {
		fmt.Fprintln(stdout, version.String("oap-send"))
		return 0
	}
	monitoring.SetVerbose(opts.verbose)

	f, err := capture.Open(fsys, opts.filename)
	if err != nil {
		if errors.Is(err, capture.ErrCaptureNotFound) {
			fmt.Fprintf(stderr, "Error: File '%s' not found\n", opts.filename)
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	defer f.Close()

	var records []byte
	if opts.pcap {
		if records, err = extractRecords(f, opts); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	sender, err := network.NewUDPSender(opts.host, opts.port, dialer)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer sender.Close()

	cfg := opts.streamConfig()
	fmt.Fprintf(stdout, "Streaming OAP data from %s to %s (%s mode, %v delay)\n",
		opts.filename, sender.Address(), cfg.Mode, cfg.Delay)

	var summary oap.Summary
	if opts.pcap {
		summary = oap.Stream(ctx, records, sender, cfg)
	} else if summary, err = oap.StreamReader(ctx, f, sender, cfg); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Program completed, sent %d records\n", summary.Sent)
	fmt.Fprintf(stdout, "Summary: %s\n", summary)
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, fsutil.OSFileSystem{}, network.SystemDialer{})
	stop()
	os.Exit(code)
}
