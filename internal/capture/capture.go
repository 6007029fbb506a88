// Package capture loads OAP record streams from disk: plain capture files and
// pcap recordings of a previous raw-mode replay.
package capture

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"

	"github.com/google/gopacket"
	"github.com/google/gopacket/ip4defrag"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/NCAR/aircraft-oap/internal/fsutil"
	"github.com/NCAR/aircraft-oap/internal/oap"
)

// ErrCaptureNotFound is returned when the capture path does not name a file.
var ErrCaptureNotFound = errors.New("capture file not found")

// checkFile reports ErrCaptureNotFound unless path names a regular file.
func checkFile(fsys fsutil.FileSystem, path string) error {
	info, err := fsys.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrCaptureNotFound, path)
		}
		return fmt.Errorf("failed to stat capture %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrCaptureNotFound, path)
	}
	return nil
}

// Open opens a capture file for streaming. A missing path or a directory
// yields ErrCaptureNotFound.
func Open(fsys fsutil.FileSystem, path string) (fs.File, error) {
	if err := checkFile(fsys, path); err != nil {
		return nil, err
	}
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	return f, nil
}

// LoadFile reads a whole capture file. A missing path or a directory yields
// ErrCaptureNotFound.
func LoadFile(fsys fsutil.FileSystem, path string) ([]byte, error) {
	if err := checkFile(fsys, path); err != nil {
		return nil, err
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture %s: %w", path, err)
	}
	if rem := len(data) % oap.RecordSize; rem != 0 {
		log.Printf("Capture %s is not a whole number of records: %d trailing bytes", path, rem)
	}
	return data, nil
}

// PCAPStats counts what ExtractPCAP saw.
type PCAPStats struct {
	Packets   int
	Fragments int // IPv4 fragments held for reassembly
	Records   int
	Ignored   int // non-UDP, wrong port, or payload not exactly one record
	Truncated bool // the recording ended partway through a packet
}

func (s PCAPStats) String() string {
	out := fmt.Sprintf("packets=%d fragments=%d records=%d ignored=%d",
		s.Packets, s.Fragments, s.Records, s.Ignored)
	if s.Truncated {
		out += " (truncated)"
	}
	return out
}

// ExtractPCAP reads a pcap recording and concatenates every UDP payload that
// is exactly one raw record, in capture order. port filters on the UDP
// destination port; 0 accepts any port. A recording cut off inside its last
// packet is not an error: the partial packet is dropped and Truncated set.
// Fragmented IPv4 datagrams are
// reassembled first, since a 4114-byte datagram exceeds an Ethernet MTU.
func ExtractPCAP(r io.Reader, port int) ([]byte, PCAPStats, error) {
	var stats PCAPStats

	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to open pcap stream: %w", err)
	}

	defrag := ip4defrag.NewIPv4Defragmenter()
	source := gopacket.NewPacketSource(reader, reader.LinkType())

	var out []byte
	for {
		packet, err := source.NextPacket()
		if err == io.EOF {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// capture stopped mid-write; keep what was read
			log.Printf("PCAP truncated after %d packets, dropping partial packet", stats.Packets)
			stats.Truncated = true
			break
		}
		if err != nil {
			return out, stats, fmt.Errorf("failed to read pcap packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		udp, fragment := udpLayer(packet, defrag)
		if fragment {
			stats.Fragments++
			continue
		}
		if udp == nil || (port != 0 && int(udp.DstPort) != port) || len(udp.Payload) != oap.RecordSize {
			stats.Ignored++
			continue
		}

		out = append(out, udp.Payload...)
		stats.Records++
	}

	log.Printf("PCAP extraction complete: %s", stats)
	return out, stats, nil
}

// udpLayer returns the packet's UDP layer, reassembling IPv4 fragments. The
// second result is true while a fragment is held awaiting its siblings.
func udpLayer(packet gopacket.Packet, defrag *ip4defrag.IPv4Defragmenter) (*layers.UDP, bool) {
	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		if l, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
			return l, false
		}
		return nil, false
	}

	ip4 := ipLayer.(*layers.IPv4)
	fragmented := ip4.Flags&layers.IPv4MoreFragments != 0 || ip4.FragOffset != 0
	if !fragmented {
		if l, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
			return l, false
		}
		return nil, false
	}

	whole, err := defrag.DefragIPv4WithTimestamp(ip4, packet.Metadata().Timestamp)
	if err != nil {
		log.Printf("PCAP defragmentation error: %v", err)
		return nil, false
	}
	if whole == nil {
		return nil, true
	}
	if whole.Protocol != layers.IPProtocolUDP {
		return nil, false
	}

	udp := &layers.UDP{}
	if err := udp.DecodeFromBytes(whole.Payload, gopacket.NilDecodeFeedback); err != nil {
		log.Printf("PCAP reassembled datagram is not valid UDP: %v", err)
		return nil, false
	}
	return udp, false
}
