package oap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NCAR/aircraft-oap/internal/monitoring"
	"github.com/NCAR/aircraft-oap/internal/timeutil"
)

// DefaultDelay paces emission to roughly the probe's real buffer cadence.
const DefaultDelay = 200 * time.Millisecond

// Mode selects what is put on the wire for each record.
type Mode int

const (
	// ModeReconstructed sends the 4096-byte payload after the bit round trip.
	ModeReconstructed Mode = iota
	// ModeRaw sends the full 4114-byte window unmodified.
	ModeRaw
)

func (m Mode) String() string {
	switch m {
	case ModeReconstructed:
		return "reconstructed"
	case ModeRaw:
		return "raw"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "reconstructed", "raw" or "full" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reconstructed", "payload":
		return ModeReconstructed, nil
	case "raw", "full", "fullrecord":
		return ModeRaw, nil
	default:
		return ModeReconstructed, fmt.Errorf("unknown stream mode %q", s)
	}
}

// Sender delivers one datagram.
type Sender interface {
	Send(datagram []byte) error
}

// StreamConfig controls a single Stream call.
type StreamConfig struct {
	// Delay is waited after every successful send. Zero disables pacing.
	Delay time.Duration
	Mode  Mode

	// Clock paces the stream. Defaults to timeutil.RealClock.
	Clock timeutil.Clock

	// OmitSentResults keeps only skipped and failed windows in
	// Summary.Results. Without it Results holds one entry per window.
	OmitSentResults bool
}

// WindowStatus is the outcome of one window.
type WindowStatus int

const (
	StatusSent WindowStatus = iota
	StatusSkipped
	StatusFailed
)

func (s WindowStatus) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("WindowStatus(%d)", int(s))
	}
}

// WindowResult records what happened to one window of the source.
type WindowResult struct {
	Index  int // 1-based record number
	Offset int
	Bytes  int // datagram size on success, window size otherwise
	Status WindowStatus

	Timestamp      time.Time
	TimestampValid bool

	Err error
}

// Summary accumulates the per-window results of a stream session. Counters
// cover every window even when sent results are omitted.
type Summary struct {
	SessionID string
	Mode      Mode
	Sent      int
	Skipped   int
	Failed    int
	BytesSent int
	Elapsed   time.Duration
	Results   []WindowResult
}

func (s *Summary) add(r WindowResult, omitSent bool) {
	if r.Status != StatusSent || !omitSent {
		s.Results = append(s.Results, r)
	}
	switch r.Status {
	case StatusSent:
		s.Sent++
		s.BytesSent += r.Bytes
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("session %s (%s): sent=%d skipped=%d failed=%d bytes=%d elapsed=%v",
		s.SessionID, s.Mode, s.Sent, s.Skipped, s.Failed, s.BytesSent, s.Elapsed.Round(time.Millisecond))
}

// Stream walks source in RecordSize windows from offset 0 and sends each one
// to sink. Per-window failures are recorded and logged; they never stop the
// stream. A context cancellation stops it between windows.
func Stream(ctx context.Context, source []byte, sink Sender, cfg StreamConfig) Summary {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	start := clock.Now()
	summary := Summary{
		SessionID: uuid.New().String()[:8],
		Mode:      cfg.Mode,
	}

	for offset := 0; offset < len(source); offset += RecordSize {
		if ctx.Err() != nil {
			monitoring.Logf("Stream %s interrupted at offset %d", summary.SessionID, offset)
			break
		}

		end := offset + RecordSize
		if end > len(source) {
			end = len(source)
		}
		res := processWindow(source[offset:end], offset, sink, cfg.Mode)
		summary.add(res, cfg.OmitSentResults)

		switch res.Status {
		case StatusSkipped:
			monitoring.Logf("Skipping incomplete record at index %d (%d bytes).", offset, res.Bytes)
			continue
		case StatusFailed:
			monitoring.Logf("Error processing record at index %d: %v", offset, res.Err)
			continue
		}

		if cfg.Delay > 0 {
			if err := clock.Sleep(ctx, cfg.Delay); err != nil {
				monitoring.Logf("Stream %s interrupted after record %d", summary.SessionID, res.Index)
				break
			}
		}
	}

	summary.Elapsed = clock.Now().Sub(start)
	monitoring.Logf("Finished streaming %d records", summary.Sent)
	return summary
}

// StreamReader reads all of r and streams it. Only the read can fail.
func StreamReader(ctx context.Context, r io.Reader, sink Sender, cfg StreamConfig) (Summary, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read capture: %w", err)
	}
	return Stream(ctx, source, sink, cfg), nil
}

// processWindow turns one window into exactly one result.
func processWindow(window []byte, offset int, sink Sender, mode Mode) WindowResult {
	res := WindowResult{
		Index:  offset/RecordSize + 1,
		Offset: offset,
		Bytes:  len(window),
	}
	if len(window) < RecordSize {
		res.Status = StatusSkipped
		return res
	}

	datagram, err := encodeWindow(window, mode, &res)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	monitoring.Logf("Sending %s record %d (%d bytes)", mode, res.Index, len(datagram))
	if err := sink.Send(datagram); err != nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("failed to send record %d: %w", res.Index, err)
		return res
	}
	res.Status = StatusSent
	res.Bytes = len(datagram)
	return res
}

func encodeWindow(window []byte, mode Mode, res *WindowResult) ([]byte, error) {
	switch mode {
	case ModeRaw:
		return window, nil
	case ModeReconstructed:
		rec, err := Decode(window)
		if err != nil {
			return nil, fmt.Errorf("failed to decode record %d: %w", res.Index, err)
		}
		res.Timestamp = rec.Timestamp
		res.TimestampValid = rec.TimestampValid
		return Reconstruct(rec.Payload), nil
	default:
		return nil, fmt.Errorf("unsupported stream mode %v", mode)
	}
}
