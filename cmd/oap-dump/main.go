// Command oap-dump prints the header of every record in an OAP capture:
// raw timestamp words, the decoded time (or "invalid"), and the stored
// checksum next to the payload word sum.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/NCAR/aircraft-oap/internal/capture"
	"github.com/NCAR/aircraft-oap/internal/fsutil"
	"github.com/NCAR/aircraft-oap/internal/oap"
	"github.com/NCAR/aircraft-oap/internal/version"
)

// dumpStats totals what dump printed.
type dumpStats struct {
	records          int
	invalidTimes     int
	checksumMismatch int
	trailingBytes    int
}

func dump(ctx context.Context, w io.Writer, data []byte, limit int) dumpStats {
	var st dumpStats
	for offset := 0; offset < len(data); offset += oap.RecordSize {
		if ctx.Err() != nil || (limit > 0 && st.records >= limit) {
			break
		}
		end := offset + oap.RecordSize
		if end > len(data) {
			st.trailingBytes = len(data) - offset
			fmt.Fprintf(w, "%6s  offset %d: incomplete record, %d bytes\n", "-", offset, st.trailingBytes)
			break
		}

		rec, err := oap.Decode(data[offset:end])
		if err != nil {
			fmt.Fprintf(w, "%6d  offset %d: %v\n", st.records+1, offset, err)
			continue
		}
		st.records++

		ts := "invalid"
		if rec.TimestampValid {
			ts = rec.Timestamp.Format("2006/01/02 15:04:05.000")
		} else {
			st.invalidTimes++
		}
		ck := "ok"
		if !rec.ChecksumOK() {
			ck = fmt.Sprintf("mismatch (sum 0x%04x)", rec.ComputeChecksum())
			st.checksumMismatch++
		}
		fmt.Fprintf(w, "%6d  %v  %-23s  dow=%d  cksum=0x%04x %s\n",
			st.records, rec.Fields.Values(), ts, rec.Fields.DayOfWeek, rec.Checksum, ck)
	}
	fmt.Fprintf(w, "%d records, %d invalid timestamps, %d checksum mismatches\n",
		st.records, st.invalidTimes, st.checksumMismatch)
	return st
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, fsys fsutil.FileSystem) int {
	fs := flag.NewFlagSet("oap-dump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	limit := fs.Int("n", 0, "Stop after this many records (0 = all)")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.String("oap-dump"))
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: oap-dump [-n N] FILE")
		return 2
	}

	data, err := capture.LoadFile(fsys, fs.Arg(0))
	if err != nil {
		if errors.Is(err, capture.ErrCaptureNotFound) {
			fmt.Fprintf(stderr, "Error: File '%s' not found\n", fs.Arg(0))
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}

	dump(ctx, stdout, data, *limit)
	return 0
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, fsutil.OSFileSystem{}))
}
