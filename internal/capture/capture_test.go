package capture

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NCAR/aircraft-oap/internal/fsutil"
	"github.com/NCAR/aircraft-oap/internal/oap"
	"github.com/NCAR/aircraft-oap/internal/testutil"
)

func record(seed byte) []byte {
	return testutil.ValidRecord(seed)
}

func TestLoadFile(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	data := testutil.Capture([][]byte{record(1), record(2)}, 0)
	mfs.AddFile("/flights/rf01.2d", data)

	got, err := LoadFile(mfs, "/flights/rf01.2d")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestLoadFile_Missing(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	_, err := LoadFile(mfs, "/flights/none.2d")
	assert.True(t, errors.Is(err, ErrCaptureNotFound), "got %v", err)
}

func TestLoadFile_Directory(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	mfs.AddDir("/flights")
	_, err := LoadFile(mfs, "/flights")
	assert.ErrorIs(t, err, ErrCaptureNotFound)
}

func TestOpen(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	mfs.AddFile("/flight.2d", record(4))
	mfs.AddDir("/flights")

	f, err := Open(mfs, "/flight.2d")
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, record(4), got)

	_, err = Open(mfs, "/missing.2d")
	assert.ErrorIs(t, err, ErrCaptureNotFound)
	_, err = Open(mfs, "/flights")
	assert.ErrorIs(t, err, ErrCaptureNotFound)
}

func TestLoadFile_TrailingBytesKept(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	data := append(record(1), 1, 2, 3)
	mfs.AddFile("/short.2d", data)

	got, err := LoadFile(mfs, "/short.2d")
	require.NoError(t, err)
	assert.Len(t, got, oap.RecordSize+3)
}

// fragmentedFrames splits one UDP datagram into IPv4 fragments of at most
// 1480 payload bytes, as a 1500-byte MTU link would.
func fragmentedFrames(t *testing.T, payload []byte, dstPort uint16, id uint16) [][]byte {
	ip := testutil.IPv4Header(id)
	udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	datagram := testutil.Serialize(t, udp, gopacket.Payload(payload))

	const chunk = 1480
	var frames [][]byte
	for off := 0; off < len(datagram); off += chunk {
		end := off + chunk
		frag := testutil.IPv4Header(id)
		if end < len(datagram) {
			frag.Flags = layers.IPv4MoreFragments
		} else {
			end = len(datagram)
		}
		frag.FragOffset = uint16(off / 8)
		frames = append(frames, testutil.Serialize(t, testutil.Ethernet(), frag, gopacket.Payload(datagram[off:end])))
	}
	return frames
}

func TestExtractPCAP_Records(t *testing.T) {
	r1, r2 := record(1), record(2)
	buf := testutil.PCAP(t,
		testutil.UDPFrame(t, r1, 5000),
		testutil.UDPFrame(t, make([]byte, oap.PayloadSize), 5000), // reconstructed-mode datagram
		testutil.UDPFrame(t, record(3), 6000),                     // other port
		testutil.UDPFrame(t, r2, 5000),
	)

	out, stats, err := ExtractPCAP(buf, 5000)
	require.NoError(t, err)
	assert.Equal(t, testutil.Capture([][]byte{r1, r2}, 0), out)
	assert.Equal(t, PCAPStats{Packets: 4, Records: 2, Ignored: 2}, stats)
}

func TestExtractPCAP_AnyPort(t *testing.T) {
	buf := testutil.PCAP(t, testutil.UDPFrame(t, record(1), 5000), testutil.UDPFrame(t, record(2), 6000))

	out, stats, err := ExtractPCAP(buf, 0)
	require.NoError(t, err)
	assert.Len(t, out, 2*oap.RecordSize)
	assert.Equal(t, 2, stats.Records)
}

func TestExtractPCAP_ReassemblesFragments(t *testing.T) {
	r := record(7)
	frames := fragmentedFrames(t, r, 5000, 42)
	require.Greater(t, len(frames), 1)

	out, stats, err := ExtractPCAP(testutil.PCAP(t, frames...), 5000)
	require.NoError(t, err)
	assert.Equal(t, r, out)
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, len(frames)-1, stats.Fragments)
}

func TestExtractPCAP_TruncatedTail(t *testing.T) {
	r1, r2 := record(1), record(2)
	buf := testutil.PCAP(t,
		testutil.UDPFrame(t, r1, 5000),
		testutil.UDPFrame(t, r2, 5000),
		testutil.UDPFrame(t, record(3), 5000),
	)
	cut := bytes.NewReader(buf.Bytes()[:buf.Len()-100])

	out, stats, err := ExtractPCAP(cut, 5000)
	require.NoError(t, err)
	assert.Equal(t, testutil.Capture([][]byte{r1, r2}, 0), out)
	assert.Equal(t, PCAPStats{Packets: 2, Records: 2, Truncated: true}, stats)
	assert.Contains(t, stats.String(), "truncated")
}

func TestExtractPCAP_TruncatedPacketHeader(t *testing.T) {
	buf := testutil.PCAP(t, testutil.UDPFrame(t, record(1), 5000))
	// half of a 16-byte record header after the first packet
	data := append(buf.Bytes(), make([]byte, 8)...)

	out, stats, err := ExtractPCAP(bytes.NewReader(data), 0)
	require.NoError(t, err)
	assert.Len(t, out, oap.RecordSize)
	assert.True(t, stats.Truncated)
}

func TestExtractPCAP_NotPCAP(t *testing.T) {
	_, _, err := ExtractPCAP(bytes.NewReader([]byte("definitely not a pcap header")), 0)
	assert.Error(t, err)
}
