package oap_test

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NCAR/aircraft-oap/internal/monitoring"
	"github.com/NCAR/aircraft-oap/internal/oap"
	"github.com/NCAR/aircraft-oap/internal/testutil"
)

// buildWindow lays out a record exactly as it sits in a capture file.
func buildWindow(f oap.TimestampFields, payload []byte, checksum uint16) []byte {
	return testutil.Record(f.Values(), payload, checksum)
}

func patternPayload() []byte {
	p := make([]byte, oap.PayloadSize)
	for i := range p {
		p[i] = byte(i*31 + 7)
	}
	return p
}

func TestDecode_ValidTimestamp(t *testing.T) {
	fields := oap.TimestampFields{
		Year: 2023, Month: 7, DayOfWeek: 3, Day: 19,
		Hour: 14, Minute: 5, Second: 42, Millisecond: 123,
	}
	payload := patternPayload()
	rec, err := oap.Decode(buildWindow(fields, payload, 0xBEEF))
	require.NoError(t, err)

	assert.True(t, rec.TimestampValid)
	want := time.Date(2023, time.July, 19, 14, 5, 42, 123*int(time.Millisecond), time.UTC)
	assert.True(t, rec.Timestamp.Equal(want), "got %v want %v", rec.Timestamp, want)
	assert.Equal(t, fields, rec.Fields)
	assert.Equal(t, payload, rec.Payload)
	assert.Equal(t, uint16(0xBEEF), rec.Checksum)
}

func TestDecode_TimestampRoundTrip(t *testing.T) {
	cases := []oap.TimestampFields{
		{Year: 1, Month: 1, Day: 1},
		{Year: 2000, Month: 2, Day: 29, Hour: 23, Minute: 59, Second: 59, Millisecond: 999},
		{Year: 2019, Month: 12, Day: 31, Hour: 0, Minute: 0, Second: 0, Millisecond: 0},
		{Year: 9999, Month: 12, Day: 31, Hour: 23, Minute: 59, Second: 59, Millisecond: 500},
	}
	for _, f := range cases {
		t.Run(f.String(), func(t *testing.T) {
			rec, err := oap.Decode(buildWindow(f, nil, 0))
			require.NoError(t, err)
			require.True(t, rec.TimestampValid)

			ts := rec.Timestamp
			assert.Equal(t, int(f.Year), ts.Year())
			assert.Equal(t, int(f.Month), int(ts.Month()))
			assert.Equal(t, int(f.Day), ts.Day())
			assert.Equal(t, int(f.Hour), ts.Hour())
			assert.Equal(t, int(f.Minute), ts.Minute())
			assert.Equal(t, int(f.Second), ts.Second())
			assert.Equal(t, int(f.Millisecond)*int(time.Millisecond), ts.Nanosecond())
		})
	}
}

func TestDecode_MillisecondClamped(t *testing.T) {
	for _, ms := range []uint16{1000, 5000, 65535} {
		f := oap.TimestampFields{Year: 2024, Month: 3, Day: 10, Hour: 1, Minute: 2, Second: 3, Millisecond: ms}
		rec, err := oap.Decode(buildWindow(f, nil, 0))
		require.NoError(t, err)
		require.True(t, rec.TimestampValid, "ms=%d", ms)
		assert.Equal(t, 999000, rec.Timestamp.Nanosecond()/1000, "ms=%d", ms)
		// the raw field is kept as stored
		assert.Equal(t, ms, rec.Fields.Millisecond)
	}
}

func TestClampMillisecond(t *testing.T) {
	tests := []struct {
		in, want uint16
	}{
		{0, 0},
		{998, 998},
		{999, 999},
		{1000, 999},
		{65535, 999},
	}
	for _, tt := range tests {
		if got := oap.ClampMillisecond(tt.in); got != tt.want {
			t.Errorf("ClampMillisecond(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDecode_InvalidTimestampStillDecodesPayload(t *testing.T) {
	tests := []struct {
		name   string
		fields oap.TimestampFields
	}{
		{"month 13", oap.TimestampFields{Year: 2023, Month: 13, Day: 1}},
		{"month 0", oap.TimestampFields{Year: 2023, Month: 0, Day: 1}},
		{"day 32", oap.TimestampFields{Year: 2023, Month: 1, Day: 32}},
		{"feb 30", oap.TimestampFields{Year: 2023, Month: 2, Day: 30}},
		{"feb 29 non-leap", oap.TimestampFields{Year: 2023, Month: 2, Day: 29}},
		{"day 0", oap.TimestampFields{Year: 2023, Month: 5, Day: 0}},
		{"hour 24", oap.TimestampFields{Year: 2023, Month: 5, Day: 1, Hour: 24}},
		{"minute 60", oap.TimestampFields{Year: 2023, Month: 5, Day: 1, Minute: 60}},
		{"second 60", oap.TimestampFields{Year: 2023, Month: 5, Day: 1, Second: 60}},
		{"year 0", oap.TimestampFields{Year: 0, Month: 5, Day: 1}},
		{"year 10000", oap.TimestampFields{Year: 10000, Month: 5, Day: 1}},
		{"all ones", oap.TimestampFields{0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF}},
	}
	payload := patternPayload()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := oap.Decode(buildWindow(tt.fields, payload, 0x1234))
			require.NoError(t, err)
			assert.False(t, rec.TimestampValid)
			assert.True(t, rec.Timestamp.IsZero())
			assert.Equal(t, payload, rec.Payload)
			assert.Equal(t, uint16(0x1234), rec.Checksum)
			assert.Contains(t, rec.String(), "invalid")
		})
	}
}

func TestDecode_WrongSize(t *testing.T) {
	for _, n := range []int{0, 1, oap.RecordSize - 1, oap.RecordSize + 1, 2 * oap.RecordSize} {
		_, err := oap.Decode(make([]byte, n))
		if !errors.Is(err, oap.ErrRecordSize) {
			t.Errorf("Decode(len=%d) error = %v, want ErrRecordSize", n, err)
		}
	}
}

func TestDecode_PayloadIsCopied(t *testing.T) {
	w := buildWindow(oap.TimestampFields{Year: 2023, Month: 1, Day: 1}, patternPayload(), 0)
	rec, err := oap.Decode(w)
	require.NoError(t, err)

	w[oap.HeaderSize] ^= 0xFF
	assert.NotEqual(t, w[oap.HeaderSize], rec.Payload[0])
}

func TestChecksum(t *testing.T) {
	payload := make([]byte, oap.PayloadSize)
	binary.LittleEndian.PutUint16(payload[0:], 0x0102)
	binary.LittleEndian.PutUint16(payload[2:], 0x0304)
	binary.LittleEndian.PutUint16(payload[oap.PayloadSize-2:], 0xFFFF)

	// 0x0102 + 0x0304 + 0xFFFF wraps to 0x0405
	rec, err := oap.Decode(buildWindow(oap.TimestampFields{}, payload, 0x0405))
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0405), oap.Checksum(payload))
	assert.Equal(t, uint16(0x0405), rec.ComputeChecksum())
	assert.True(t, rec.ChecksumOK())

	rec.Checksum = 0
	assert.False(t, rec.ChecksumOK())
}

func TestTimestampFields_String(t *testing.T) {
	f := oap.TimestampFields{Year: 2023, Month: 7, Day: 9, Hour: 4, Minute: 5, Second: 6, Millisecond: 7}
	assert.Equal(t, "2023/07/09 04:05:06.007", f.String())
}

func TestDecode_VerboseLogsFields(t *testing.T) {
	var lines []string
	original := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() {
		monitoring.Logf = original
		monitoring.SetVerbose(false)
	})

	w := buildWindow(oap.TimestampFields{Year: 2023, Month: 13, Day: 1}, nil, 0)
	_, err := oap.Decode(w)
	require.NoError(t, err)
	assert.Empty(t, lines, "quiet unless verbose")

	monitoring.SetVerbose(true)
	_, err = oap.Decode(w)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[2023 13 0 1 0 0 0 0]")
	assert.Contains(t, lines[1], "invalid timestamp")
}
