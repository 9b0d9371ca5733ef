package rack

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"netwatch/internal/protocol"
)

// connState is the DC reporter's connection state machine, per spec
// §4.3: Disconnected -> Connecting -> Connected -> (on error) Disconnected.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

const (
	dcConnectTimeout = 5 * time.Second
	dcSendTimeout    = 2 * time.Second
)

// LinkRecorder receives DC-link lifecycle events, for the ambient
// connection-stability metrics in internal/metrics. Optional: a nil
// recorder is never called.
type LinkRecorder interface {
	RecordCreated(rackID string)
	RecordReconnect(rackID string)
	RecordDropped(rackID string)
	RecordSend(rackID string, latencyMs int64)
	RecordSendError(rackID string)
}

// DCReporter owns the transient TCP connection from a Rack Controller
// to its DC Controller, and reconnects with capped exponential backoff
// and jitter when the connection drops. A report send that fails at
// the transport layer is simply dropped; the next analysis pass
// carries fresh truth, so nothing is queued or retried mid-flight.
type DCReporter struct {
	addr   string
	rackID string

	mu      sync.Mutex
	state   connState
	conn    net.Conn
	backoff *backoff.ExponentialBackOff

	nextAttemptAt time.Time
	link          LinkRecorder
	everConnected bool
}

// NewDCReporter creates a reporter targeting host:port, with the
// reconnect backoff spec requires: 1s initial, 30s cap, +-20% jitter.
func NewDCReporter(host string, port int, rackID string) *DCReporter {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 30 * time.Second
	b.RandomizationFactor = 0.2
	b.Multiplier = 2.0
	b.MaxElapsedTime = 0 // never give up; the caller controls cadence

	return &DCReporter{
		addr:    fmt.Sprintf("%s:%d", host, port),
		rackID:  rackID,
		state:   stateDisconnected,
		backoff: b,
	}
}

// SetLinkRecorder wires a connection-stability recorder. Must be
// called before the first Send to avoid racing with the connect path.
func (r *DCReporter) SetLinkRecorder(link LinkRecorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.link = link
}

// Send transmits one rack report. If disconnected, it attempts a
// single reconnect first (respecting the backoff schedule); if that
// also fails, or the backoff window hasn't elapsed yet, the report is
// dropped. Returns nil only on a successful write.
func (r *DCReporter) Send(report protocol.RackReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != stateConnected {
		if time.Now().Before(r.nextAttemptAt) {
			return fmt.Errorf("dc reporter: waiting for backoff window before reconnecting to %s", r.addr)
		}
		if err := r.connectLocked(); err != nil {
			r.scheduleRetryLocked()
			return fmt.Errorf("dc reporter: connect to %s failed: %w", r.addr, err)
		}
	}

	start := time.Now()
	if err := r.conn.SetWriteDeadline(start.Add(dcSendTimeout)); err != nil {
		r.resetLocked()
		return fmt.Errorf("dc reporter: set write deadline: %w", err)
	}

	payload := protocol.EncodeRackReport(report)
	if _, err := r.conn.Write(payload); err != nil {
		r.resetLocked()
		r.scheduleRetryLocked()
		if r.link != nil {
			r.link.RecordSendError(r.rackID)
			r.link.RecordDropped(r.rackID)
		}
		return fmt.Errorf("dc reporter: send to %s failed: %w", r.addr, err)
	}

	if r.link != nil {
		r.link.RecordSend(r.rackID, time.Since(start).Milliseconds())
	}

	return nil
}

func (r *DCReporter) connectLocked() error {
	r.state = stateConnecting
	conn, err := net.DialTimeout("tcp", r.addr, dcConnectTimeout)
	if err != nil {
		r.state = stateDisconnected
		return err
	}
	r.conn = conn
	r.state = stateConnected
	r.backoff.Reset()
	log.Printf("dc reporter: connected to %s", r.addr)
	if r.link != nil {
		if r.everConnected {
			r.link.RecordReconnect(r.rackID)
		} else {
			r.link.RecordCreated(r.rackID)
		}
	}
	r.everConnected = true
	return nil
}

func (r *DCReporter) resetLocked() {
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
	r.state = stateDisconnected
}

func (r *DCReporter) scheduleRetryLocked() {
	delay := r.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = r.backoff.MaxInterval
	}
	r.nextAttemptAt = time.Now().Add(delay)
}

// Close releases the underlying connection, if any.
func (r *DCReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	r.state = stateDisconnected
	return err
}
