// Package testutil builds OAP capture fixtures for tests.
package testutil

import (
	"encoding/binary"

	"github.com/NCAR/aircraft-oap/internal/oap"
)

// DefaultFields is a calendar-valid header: 2023-07-19 (Wed) 14:05:42.123.
var DefaultFields = [8]uint16{2023, 7, 3, 19, 14, 5, 42, 123}

// Payload returns a deterministic PayloadSize buffer derived from seed.
func Payload(seed byte) []byte {
	p := make([]byte, oap.PayloadSize)
	for i := range p {
		p[i] = seed + byte(i)
	}
	return p
}

// Record lays out one capture record: header words, payload (zero-padded or
// truncated to PayloadSize) and checksum, all little-endian.
func Record(fields [8]uint16, payload []byte, checksum uint16) []byte {
	r := make([]byte, oap.RecordSize)
	for i, v := range fields {
		binary.LittleEndian.PutUint16(r[i*2:], v)
	}
	copy(r[oap.HeaderSize:oap.HeaderSize+oap.PayloadSize], payload)
	binary.LittleEndian.PutUint16(r[oap.HeaderSize+oap.PayloadSize:], checksum)
	return r
}

// ValidRecord is a Record with DefaultFields, Payload(seed) and a matching
// checksum.
func ValidRecord(seed byte) []byte {
	p := Payload(seed)
	return Record(DefaultFields, p, oap.Checksum(p))
}

// Capture concatenates records, optionally followed by trailing bytes.
func Capture(records [][]byte, trailing int) []byte {
	var out []byte
	for _, r := range records {
		out = append(out, r...)
	}
	return append(out, make([]byte, trailing)...)
}
