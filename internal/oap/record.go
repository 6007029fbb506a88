// Package oap decodes OAP probe capture records and streams them to a
// datagram sink.
//
// An OAP capture is a concatenation of fixed-size records:
//
//	offset  size  field
//	0       16    8 x uint16 LE: year, month, day-of-week, day, hour, minute, second, millisecond
//	16      4096  probe payload
//	4112    2     uint16 LE checksum
package oap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/NCAR/aircraft-oap/internal/monitoring"
)

const (
	HeaderSize   = 16
	PayloadSize  = 4096
	ChecksumSize = 2
	RecordSize   = HeaderSize + PayloadSize + ChecksumSize // 4114

	// MaxMillisecond is the ceiling applied to the stored millisecond field.
	MaxMillisecond = 999
)

// ErrRecordSize is returned by Decode when the window is not exactly
// RecordSize bytes long.
var ErrRecordSize = errors.New("oap: record window must be exactly 4114 bytes")

// TimestampFields are the eight raw header words in file order.
type TimestampFields struct {
	Year        uint16
	Month       uint16
	DayOfWeek   uint16
	Day         uint16
	Hour        uint16
	Minute      uint16
	Second      uint16
	Millisecond uint16
}

// String renders the fields as YYYY/MM/DD hh:mm:ss.mmm without validating them.
func (f TimestampFields) String() string {
	return fmt.Sprintf("%04d/%02d/%02d %02d:%02d:%02d.%03d",
		f.Year, f.Month, f.Day, f.Hour, f.Minute, f.Second, f.Millisecond)
}

// Values returns the fields in file order.
func (f TimestampFields) Values() [8]uint16 {
	return [8]uint16{f.Year, f.Month, f.DayOfWeek, f.Day, f.Hour, f.Minute, f.Second, f.Millisecond}
}

// Record is one decoded capture window. It is only valid while the window
// that produced it is being processed.
type Record struct {
	Fields TimestampFields

	// Timestamp is zero when TimestampValid is false.
	Timestamp      time.Time
	TimestampValid bool

	Payload  []byte
	Checksum uint16
}

// ClampMillisecond limits a stored millisecond value to [0, 999].
func ClampMillisecond(ms uint16) uint16 {
	if ms > MaxMillisecond {
		return MaxMillisecond
	}
	return ms
}

// Decode parses a single RecordSize window. An out-of-range calendar field
// does not fail decoding; it leaves TimestampValid false.
func Decode(window []byte) (*Record, error) {
	if len(window) != RecordSize {
		return nil, fmt.Errorf("%w: got %d", ErrRecordSize, len(window))
	}

	f := TimestampFields{
		Year:        binary.LittleEndian.Uint16(window[0:2]),
		Month:       binary.LittleEndian.Uint16(window[2:4]),
		DayOfWeek:   binary.LittleEndian.Uint16(window[4:6]),
		Day:         binary.LittleEndian.Uint16(window[6:8]),
		Hour:        binary.LittleEndian.Uint16(window[8:10]),
		Minute:      binary.LittleEndian.Uint16(window[10:12]),
		Second:      binary.LittleEndian.Uint16(window[12:14]),
		Millisecond: binary.LittleEndian.Uint16(window[14:16]),
	}
	verbose := monitoring.Verbose()
	if verbose {
		monitoring.Debugf("Timestamp values: %v", f.Values())
	}

	rec := &Record{Fields: f}
	if ts, ok := f.Time(); ok {
		rec.Timestamp = ts
		rec.TimestampValid = true
	} else if verbose {
		monitoring.Debugf("Warning: invalid timestamp values: %v", f.Values())
	}

	payloadEnd := HeaderSize + PayloadSize
	rec.Payload = make([]byte, PayloadSize)
	copy(rec.Payload, window[HeaderSize:payloadEnd])
	rec.Checksum = binary.LittleEndian.Uint16(window[payloadEnd:RecordSize])

	return rec, nil
}

// Time builds a UTC timestamp from the fields with the millisecond clamped.
// It reports false when any field is outside its calendar range; time.Date
// would otherwise silently normalise month 13 into the next year.
func (f TimestampFields) Time() (time.Time, bool) {
	if f.Year < 1 || f.Year > 9999 {
		return time.Time{}, false
	}
	ms := ClampMillisecond(f.Millisecond)
	ts := time.Date(int(f.Year), time.Month(f.Month), int(f.Day),
		int(f.Hour), int(f.Minute), int(f.Second),
		int(ms)*int(time.Millisecond), time.UTC)

	if ts.Year() != int(f.Year) ||
		int(ts.Month()) != int(f.Month) ||
		ts.Day() != int(f.Day) ||
		ts.Hour() != int(f.Hour) ||
		ts.Minute() != int(f.Minute) ||
		ts.Second() != int(f.Second) {
		return time.Time{}, false
	}
	return ts, true
}

// Checksum returns the wrapping 16-bit sum of payload read as little-endian
// words, the value the probe stores after each payload.
func Checksum(payload []byte) uint16 {
	var sum uint16
	for i := 0; i+1 < len(payload); i += 2 {
		sum += binary.LittleEndian.Uint16(payload[i : i+2])
	}
	return sum
}

// ComputeChecksum is Checksum over the record's payload.
func (r *Record) ComputeChecksum() uint16 {
	return Checksum(r.Payload)
}

// ChecksumOK compares the stored checksum with ComputeChecksum. Nothing in
// the streaming path rejects a record on mismatch.
func (r *Record) ChecksumOK() bool {
	return r.ComputeChecksum() == r.Checksum
}

func (r *Record) String() string {
	ts := "invalid"
	if r.TimestampValid {
		ts = r.Timestamp.Format("2006/01/02 15:04:05.000")
	}
	return fmt.Sprintf("%s checksum=0x%04x", ts, r.Checksum)
}
