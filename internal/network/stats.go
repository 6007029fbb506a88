package network

import (
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// statsWindow bounds the samples kept for the distribution summary; the
// listener runs until interrupted.
const statsWindow = 4096

// maxSources bounds the distinct sender addresses remembered. Datagrams from
// further new addresses are still counted, just not as new sources.
const maxSources = 256

// ListenerStats accumulates datagram counts and recent size and
// inter-arrival samples.
type ListenerStats struct {
	mu sync.Mutex

	packets int
	bytes   int
	sources map[string]struct{}

	// sourcesCapped is set once a sender was not recorded due to maxSources.
	sourcesCapped bool

	sizes    []float64 // bytes
	gaps     []float64 // seconds between consecutive datagrams
	lastSeen time.Time
}

// NewListenerStats returns an empty collector.
func NewListenerStats() *ListenerStats {
	return &ListenerStats{sources: make(map[string]struct{})}
}

// Add records one datagram of size bytes from src received at at.
func (s *ListenerStats) Add(size int, src string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packets++
	s.bytes += size
	if _, seen := s.sources[src]; !seen {
		if len(s.sources) < maxSources {
			s.sources[src] = struct{}{}
		} else {
			s.sourcesCapped = true
		}
	}
	s.sizes = appendBounded(s.sizes, float64(size))
	if !s.lastSeen.IsZero() {
		s.gaps = appendBounded(s.gaps, at.Sub(s.lastSeen).Seconds())
	}
	s.lastSeen = at
}

func appendBounded(xs []float64, v float64) []float64 {
	if len(xs) >= statsWindow {
		copy(xs, xs[1:])
		xs = xs[:len(xs)-1]
	}
	return append(xs, v)
}

// StatsSummary is a point-in-time view of ListenerStats.
type StatsSummary struct {
	Packets int
	Bytes   int
	Sources int

	// SourcesCapped means Sources stopped at its limit.
	SourcesCapped bool

	MeanSize   float64
	StdDevSize float64
	MeanGap    time.Duration
	StdDevGap  time.Duration
}

// Summary computes the current totals and distributions.
func (s *ListenerStats) Summary() StatsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := StatsSummary{
		Packets: s.packets,
		Bytes:   s.bytes,
		Sources: len(s.sources),

		SourcesCapped: s.sourcesCapped,
	}
	if len(s.sizes) > 0 {
		sum.MeanSize, sum.StdDevSize = meanStdDev(s.sizes)
	}
	if len(s.gaps) > 0 {
		mean, std := meanStdDev(s.gaps)
		sum.MeanGap = time.Duration(mean * float64(time.Second))
		sum.StdDevGap = time.Duration(std * float64(time.Second))
	}
	return sum
}

// meanStdDev guards the single-sample case, where stat.StdDev is NaN.
func meanStdDev(xs []float64) (float64, float64) {
	if len(xs) == 1 {
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}

func (s StatsSummary) String() string {
	sources := fmt.Sprint(s.Sources)
	if s.SourcesCapped {
		sources += "+"
	}
	return fmt.Sprintf("%d packets, %d bytes from %s sources; size %.1f±%.1f B; interval %v±%v",
		s.Packets, s.Bytes, sources, s.MeanSize, s.StdDevSize,
		s.MeanGap.Round(time.Microsecond), s.StdDevGap.Round(time.Microsecond))
}
