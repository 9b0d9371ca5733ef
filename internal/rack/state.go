// Package rack implements the Rack Controller: UDP ingest, per-server
// state, periodic spectral analysis, rack-score aggregation, and TCP
// reporting to the DC Controller.
package rack

import (
	"sync"
	"time"

	"netwatch/internal/signalproc"
)

// waveWindow is the bounded ring of recent samples. The spec requires
// at least 2 seconds of samples at the nominal rate (>=40 samples);
// 128 is the default here, matching spec §3.
const waveWindow = 128

type waveSample struct {
	value        float64
	relativeTime float64
}

// ServerState is the per-server record owned by the Rack Controller,
// keyed by server_id. Only the ingest path and the analysis path touch
// it; a per-record mutex makes the two paths mutually exclusive
// without serializing unrelated servers, per spec §5.
type ServerState struct {
	mu sync.Mutex

	ServerID      int
	ExpectedFreq  float64
	startTime     time.Time

	buffer  []waveSample
	bufHead int

	PacketsReceived int64
	PacketsLost     int64
	lastSeq         int64
	haveLastSeq     bool

	latencyHistogram *latencyHistogram

	LastSpectralError float64
	LastSNRdB         float64
	HaveLastAnalysis  bool
}

func newServerState(serverID int, expectedFreq float64, now time.Time) *ServerState {
	return &ServerState{
		ServerID:         serverID,
		ExpectedFreq:     expectedFreq,
		startTime:        now,
		buffer:           make([]waveSample, 0, waveWindow),
		latencyHistogram: newLatencyHistogram(),
	}
}

// recordArrival applies one decoded, correctly-addressed datagram to
// this server's state: loss accounting, buffer append, latency
// observation, and counter bookkeeping, in the order spec §4.3 lists.
func (s *ServerState) recordArrival(seq int64, sentTS float64, wave float64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.haveLastSeq && seq > s.lastSeq+1 {
		s.PacketsLost += seq - s.lastSeq - 1
	}

	relTime := now.Sub(s.startTime).Seconds()
	s.appendSample(waveSample{value: wave, relativeTime: relTime})

	latencySec := now.Sub(time.Unix(0, int64(sentTS*float64(time.Second)))).Seconds()
	if latencySec < 0 {
		latencySec = 0
	}
	s.latencyHistogram.Observe(latencySec * 1000.0)

	s.PacketsReceived++
	if !s.haveLastSeq || seq > s.lastSeq {
		s.lastSeq = seq
		s.haveLastSeq = true
	}
}

func (s *ServerState) appendSample(sample waveSample) {
	if len(s.buffer) < waveWindow {
		s.buffer = append(s.buffer, sample)
		return
	}
	s.buffer[s.bufHead] = sample
	s.bufHead = (s.bufHead + 1) % waveWindow
}

// snapshotSamples copies the current buffer contents in chronological
// order for a coherent read by the analysis pass, per spec §5.
func (s *ServerState) snapshotSamples() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.buffer)
	out := make([]float64, n)
	if n < waveWindow {
		for i, ws := range s.buffer {
			out[i] = ws.value
		}
		return out
	}
	for i := 0; i < n; i++ {
		idx := (s.bufHead + i) % waveWindow
		out[i] = s.buffer[idx].value
	}
	return out
}

// applyAnalysis stores the result of the latest analysis pass.
func (s *ServerState) applyAnalysis(res signalproc.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastSpectralError = res.SpectralError
	s.LastSNRdB = res.SNRdB
	s.HaveLastAnalysis = true
}

// snapshotAnalysis returns the last computed spectral error and SNR,
// and whether any analysis has run yet for this server.
func (s *ServerState) snapshotAnalysis() (spectralError, snrDB float64, haveAnalysis bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastSpectralError, s.LastSNRdB, s.HaveLastAnalysis
}

// snapshotCounters returns a point-in-time copy of the cumulative
// counters, safe to read concurrently with ingest.
func (s *ServerState) snapshotCounters() (received, lost int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PacketsReceived, s.PacketsLost
}

// latencyHistogram buckets latency observations per spec §6 boundaries.
type latencyHistogram struct {
	mu      sync.Mutex
	buckets []float64 // upper bounds in ms, +Inf implicit as the last bucket
	counts  []uint64
	sum     float64
	total   uint64
}

var latencyBucketBoundsMs = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000}

func newLatencyHistogram() *latencyHistogram {
	return &latencyHistogram{
		buckets: latencyBucketBoundsMs,
		counts:  make([]uint64, len(latencyBucketBoundsMs)+1),
	}
}

func (h *latencyHistogram) Observe(ms float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += ms
	h.total++
	for i, bound := range h.buckets {
		if ms <= bound {
			h.counts[i]++
			return
		}
	}
	h.counts[len(h.counts)-1]++
}

// Snapshot returns cumulative bucket counts (upper-bound inclusive,
// Prometheus "le" semantics: each returned count already includes all
// lower buckets), the running sum, and the total observation count.
func (h *latencyHistogram) Snapshot() (bucketCumulative []uint64, sum float64, count uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cumulative := make([]uint64, len(h.counts))
	var running uint64
	for i, c := range h.counts {
		running += c
		cumulative[i] = running
	}
	return cumulative, h.sum, h.total
}
