package absa

import (
	"sync"
	"time"

	"github.com/turtacn/FediSent-Analytics/pkg/types"
)

// Stats accumulates pipeline counters. The consumer loop writes; the admin
// surface reads snapshots concurrently.
type Stats struct {
	mu sync.Mutex

	started time.Time

	Processed int64
	Indexed   int64
	Skipped   int64
	Failed    int64
	Malformed int64

	AspectsKept     int64
	AspectsRejected map[RejectReason]int64
	Tones           map[types.Tone]int64
	IronyOverrides  int64

	CacheHits   int64
	CacheMisses int64
}

// NewStats creates zeroed counters.
func NewStats() *Stats {
	return &Stats{
		started:         time.Now(),
		AspectsRejected: make(map[RejectReason]int64),
		Tones:           make(map[types.Tone]int64),
	}
}

func (s *Stats) RecordProcessed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Processed++
	return s.Processed
}

func (s *Stats) RecordIndexed() {
	s.mu.Lock()
	s.Indexed++
	s.mu.Unlock()
}

func (s *Stats) RecordSkipped() {
	s.mu.Lock()
	s.Skipped++
	s.mu.Unlock()
}

func (s *Stats) RecordFailed() {
	s.mu.Lock()
	s.Failed++
	s.mu.Unlock()
}

func (s *Stats) RecordMalformed() {
	s.mu.Lock()
	s.Malformed++
	s.mu.Unlock()
}

func (s *Stats) RecordAspectKept() {
	s.mu.Lock()
	s.AspectsKept++
	s.mu.Unlock()
}

func (s *Stats) RecordAspectRejected(reason RejectReason) {
	s.mu.Lock()
	s.AspectsRejected[reason]++
	s.mu.Unlock()
}

func (s *Stats) RecordTone(tone types.Tone) {
	s.mu.Lock()
	s.Tones[tone]++
	s.mu.Unlock()
}

func (s *Stats) RecordIronyOverride() {
	s.mu.Lock()
	s.IronyOverrides++
	s.mu.Unlock()
}

func (s *Stats) RecordCacheHit() {
	s.mu.Lock()
	s.CacheHits++
	s.mu.Unlock()
}

func (s *Stats) RecordCacheMiss() {
	s.mu.Lock()
	s.CacheMisses++
	s.mu.Unlock()
}

// Snapshot is a point-in-time copy of the counters, safe to serialize.
type Snapshot struct {
	UptimeSeconds   float64                `json:"uptime_seconds"`
	Processed       int64                  `json:"processed"`
	Indexed         int64                  `json:"indexed"`
	Skipped         int64                  `json:"skipped"`
	Failed          int64                  `json:"failed"`
	Malformed       int64                  `json:"malformed"`
	AspectsKept     int64                  `json:"aspects_kept"`
	AspectsRejected map[RejectReason]int64 `json:"aspects_rejected"`
	Tones           map[types.Tone]int64   `json:"tones"`
	IronyOverrides  int64                  `json:"irony_overrides"`
	CacheHits       int64                  `json:"cache_hits"`
	CacheMisses     int64                  `json:"cache_misses"`
}

// KeepRate is the percentage of aspect candidates that survived filtering,
// or 0 before any candidate has been seen.
func (s Snapshot) KeepRate() float64 {
	var rejected int64
	for _, n := range s.AspectsRejected {
		rejected += n
	}
	total := s.AspectsKept + rejected
	if total == 0 {
		return 0
	}
	return 100 * float64(s.AspectsKept) / float64(total)
}

// Snapshot copies the counters under the lock.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	rejected := make(map[RejectReason]int64, len(s.AspectsRejected))
	for k, v := range s.AspectsRejected {
		rejected[k] = v
	}
	tones := make(map[types.Tone]int64, len(s.Tones))
	for k, v := range s.Tones {
		tones[k] = v
	}

	return Snapshot{
		UptimeSeconds:   time.Since(s.started).Seconds(),
		Processed:       s.Processed,
		Indexed:         s.Indexed,
		Skipped:         s.Skipped,
		Failed:          s.Failed,
		Malformed:       s.Malformed,
		AspectsKept:     s.AspectsKept,
		AspectsRejected: rejected,
		Tones:           tones,
		IronyOverrides:  s.IronyOverrides,
		CacheHits:       s.CacheHits,
		CacheMisses:     s.CacheMisses,
	}
}
