package rack

import (
	"context"
	"log"
	"sync"
	"time"

	"netwatch/internal/protocol"
	"netwatch/internal/signalproc"
)

// Controller owns the per-server state map for one rack and runs the
// ingest and analysis sides of the Rack Controller described in spec
// §4.3. The global map is guarded only for insertion of new servers;
// each ServerState then protects its own fields, per spec §5.
type Controller struct {
	RackID       int
	SampleRateHz float64

	mu      sync.RWMutex
	servers map[int]*ServerState

	decodeFailures  int64
	crossRackLogged map[int]bool

	RackHealthScore float64

	tracer Tracer
}

// Tracer is the subset of internal/telemetry.Tracer the Rack Controller
// needs, kept as an interface here so signalproc/rack stay decoupled
// from the OTel SDK. A nil Tracer interface is allowed: the Controller
// then skips span creation.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, func())
}

// NewController creates an empty Rack Controller for rackID.
func NewController(rackID int, sampleRateHz float64, tracer Tracer) *Controller {
	return &Controller{
		RackID:          rackID,
		SampleRateHz:    sampleRateHz,
		servers:         make(map[int]*ServerState),
		crossRackLogged: make(map[int]bool),
		RackHealthScore: 1.0,
		tracer:          tracer,
	}
}

// Ingest decodes and applies one inbound UDP datagram, per spec §4.3
// steps 1-7. Decode failures and wrong-rack traffic are dropped
// without creating per-server state.
func (c *Controller) Ingest(ctx context.Context, payload []byte, now time.Time) {
	if c.tracer != nil {
		var done func()
		ctx, done = c.tracer.StartSpan(ctx, "netwatch.ingest")
		defer done()
	}
	_ = ctx

	dg, err := protocol.DecodeDatagram(payload)
	if err != nil {
		c.mu.Lock()
		c.decodeFailures++
		c.mu.Unlock()
		log.Printf("rack %d: dropping malformed datagram: %v", c.RackID, err)
		return
	}

	if dg.RackID != c.RackID {
		c.mu.Lock()
		alreadyLogged := c.crossRackLogged[dg.RackID]
		c.crossRackLogged[dg.RackID] = true
		c.mu.Unlock()
		if !alreadyLogged {
			log.Printf("rack %d: dropping traffic addressed to rack %d (configuration bug)", c.RackID, dg.RackID)
		}
		return
	}

	state := c.getOrCreateServer(dg.ServerID, now)
	state.recordArrival(dg.Seq, dg.SentTS, dg.WaveSample, now)
}

func (c *Controller) getOrCreateServer(serverID int, now time.Time) *ServerState {
	c.mu.RLock()
	state, ok := c.servers[serverID]
	c.mu.RUnlock()
	if ok {
		return state
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok = c.servers[serverID]
	if ok {
		return state
	}
	expectedFreq := (1.0 + float64(c.RackID)) + 0.05*float64(serverID)
	state = newServerState(serverID, expectedFreq, now)
	c.servers[serverID] = state
	return state
}

// ServerSnapshot is a point-in-time view of one server's published
// metrics, returned by RunAnalysisPass for the metrics/reporting layer.
type ServerSnapshot struct {
	ServerID        int
	SpectralError   float64
	SNRdB           float64
	HasFreshData    bool
	PacketsReceived int64
	PacketsLost     int64
}

// RunAnalysisPass runs signalproc.Analyze over every known server with
// enough buffered samples, updates each server's published gauges, and
// recomputes the rack health score, per spec §4.3.
func (c *Controller) RunAnalysisPass(ctx context.Context) []ServerSnapshot {
	if c.tracer != nil {
		var done func()
		ctx, done = c.tracer.StartSpan(ctx, "netwatch.analyze_pass")
		defer done()
	}
	_ = ctx

	c.mu.RLock()
	states := make([]*ServerState, 0, len(c.servers))
	for _, s := range c.servers {
		states = append(states, s)
	}
	c.mu.RUnlock()

	snapshots := make([]ServerSnapshot, 0, len(states))
	var freshErrors []float64

	for _, s := range states {
		samples := s.snapshotSamples()
		received, lost := s.snapshotCounters()

		snap := ServerSnapshot{
			ServerID:        s.ServerID,
			PacketsReceived: received,
			PacketsLost:     lost,
		}

		if len(samples) >= signalproc.MinSamples {
			res := signalproc.Analyze(samples, s.ExpectedFreq, c.SampleRateHz)
			s.applyAnalysis(res)
			snap.SpectralError = res.SpectralError
			snap.SNRdB = res.SNRdB
			snap.HasFreshData = true
			freshErrors = append(freshErrors, res.SpectralError)
		}

		snapshots = append(snapshots, snap)
	}

	if len(freshErrors) == 0 {
		c.mu.Lock()
		c.RackHealthScore = 1.0
		c.mu.Unlock()
		log.Printf("rack %d: analysis pass found no server with fresh data", c.RackID)
		return snapshots
	}

	var sum float64
	for _, e := range freshErrors {
		sum += e
	}
	mean := sum / float64(len(freshErrors))
	score := 1.0 - mean
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	c.mu.Lock()
	c.RackHealthScore = score
	c.mu.Unlock()

	return snapshots
}

// Snapshot returns the last-known published state for every server,
// without running a fresh analysis pass. Safe to call from the
// metrics exposition path on its own schedule.
func (c *Controller) Snapshot() []ServerSnapshot {
	c.mu.RLock()
	states := make([]*ServerState, 0, len(c.servers))
	for _, s := range c.servers {
		states = append(states, s)
	}
	c.mu.RUnlock()

	out := make([]ServerSnapshot, 0, len(states))
	for _, s := range states {
		received, lost := s.snapshotCounters()
		spectralError, snrDB, fresh := s.snapshotAnalysis()
		out = append(out, ServerSnapshot{
			ServerID:        s.ServerID,
			SpectralError:   spectralError,
			SNRdB:           snrDB,
			HasFreshData:    fresh,
			PacketsReceived: received,
			PacketsLost:     lost,
		})
	}
	return out
}

// HealthScore returns the most recently computed rack health score.
func (c *Controller) HealthScore() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.RackHealthScore
}

// ServerCount returns the number of servers with any observed state.
func (c *Controller) ServerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.servers)
}

// LatencyHistogramFor exposes the latency histogram for a known server,
// for the metrics exposition layer. Returns nil if the server is
// unknown.
func (c *Controller) LatencyHistogramFor(serverID int) *latencyHistogram {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.servers[serverID]
	if !ok {
		return nil
	}
	return s.latencyHistogram
}

// LatencyBucketsFor returns the latency histogram bucket upper bounds
// (in ms), their cumulative counts, the running sum, and the total
// observation count for a known server. ok is false if serverID is
// unknown.
func (c *Controller) LatencyBucketsFor(serverID int) (bounds []float64, cumulative []uint64, sum float64, count uint64, ok bool) {
	h := c.LatencyHistogramFor(serverID)
	if h == nil {
		return nil, nil, 0, 0, false
	}
	cumulative, sum, count = h.Snapshot()
	return latencyBucketBoundsMs, cumulative, sum, count, true
}

// DecodeFailures returns the cumulative count of malformed datagrams
// dropped at decode time (debug counter, spec §7).
func (c *Controller) DecodeFailures() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.decodeFailures
}
