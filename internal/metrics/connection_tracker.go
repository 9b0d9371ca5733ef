package metrics

import (
	"math"
	"sync"
	"time"
)

// LinkState is the lifecycle state of a Rack Controller's TCP link to
// its DC Controller. Unlike the teacher's MCP session tracker, which
// watched an unbounded population of client sessions, a Rack
// Controller holds exactly one DC link at a time, so there is no
// session map or per-session event log to maintain here.
type LinkState string

const (
	LinkStateNew          LinkState = "new"
	LinkStateConnected    LinkState = "connected"
	LinkStateDisconnected LinkState = "disconnected"
)

// LinkTracker tracks the lifecycle and send stability of a Rack
// Controller's DC link and implements internal/rack.LinkRecorder.
type LinkTracker struct {
	mu sync.RWMutex

	rackID string
	state  LinkState

	connectCount   int64
	reconnectCount int64
	dropCount      int64
	sendCount      int64
	sendErrorCount int64
	sendLatencyMs  float64

	nowFunc func() time.Time
}

// NewLinkTracker creates an empty LinkTracker.
func NewLinkTracker() *LinkTracker {
	return &LinkTracker{state: LinkStateNew, nowFunc: time.Now}
}

// RecordCreated implements internal/rack.LinkRecorder.
func (lt *LinkTracker) RecordCreated(rackID string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.rackID = rackID
	lt.state = LinkStateConnected
	lt.connectCount++
}

// RecordReconnect implements internal/rack.LinkRecorder.
func (lt *LinkTracker) RecordReconnect(rackID string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.rackID = rackID
	lt.state = LinkStateConnected
	lt.reconnectCount++
}

// RecordDropped implements internal/rack.LinkRecorder.
func (lt *LinkTracker) RecordDropped(rackID string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.rackID = rackID
	lt.state = LinkStateDisconnected
	lt.dropCount++
}

// RecordSend implements internal/rack.LinkRecorder.
func (lt *LinkTracker) RecordSend(rackID string, latencyMs int64) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.rackID = rackID
	lt.sendCount++
	lt.sendLatencyMs += (float64(latencyMs) - lt.sendLatencyMs) / float64(lt.sendCount)
}

// RecordSendError implements internal/rack.LinkRecorder.
func (lt *LinkTracker) RecordSendError(rackID string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.rackID = rackID
	lt.sendErrorCount++
}

// StabilityScore computes the link's stability in [0,100]. A link that
// has never dropped, never reconnected, and never failed a send scores
// 100; drops, reconnects, and send errors each discount the score by
// their own weight, multiplicatively, so a link degraded on every axis
// at once loses less than the sum of the individual penalties would
// take. Each factor is floored at 0, so the score reaches 0 when any
// single axis is bad enough.
func (lt *LinkTracker) StabilityScore() float64 {
	lt.mu.RLock()
	defer lt.mu.RUnlock()

	var dropRate, reconnectRate, sendErrorRate float64
	if lt.connectCount > 0 {
		dropRate = float64(lt.dropCount) / float64(lt.connectCount)
		reconnectRate = float64(lt.reconnectCount) / float64(lt.connectCount)
	}
	if lt.sendCount > 0 {
		sendErrorRate = float64(lt.sendErrorCount) / float64(lt.sendCount)
	}

	score := 100.0 * math.Max(0, 1-0.5*dropRate) * math.Max(0, 1-0.3*reconnectRate) * math.Max(0, 1-0.2*sendErrorRate)
	if score < 0 {
		score = 0
	}
	return score
}

// Connected reports whether the link is currently up.
func (lt *LinkTracker) Connected() bool {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	return lt.state == LinkStateConnected
}

// AvgSendLatencyMs returns the running average latency of successful
// report sends over this link, in milliseconds.
func (lt *LinkTracker) AvgSendLatencyMs() float64 {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	return lt.sendLatencyMs
}
