package rack

import (
	"context"
	"math"
	"testing"
	"time"

	"netwatch/internal/protocol"
)

func datagram(rackID, serverID int, seq int64, now time.Time, wave float64) []byte {
	d := protocol.Datagram{
		RackID:     rackID,
		ServerID:   serverID,
		Seq:        seq,
		SentTS:     float64(now.UnixNano()) / 1e9,
		WaveSample: wave,
	}
	return protocol.EncodeDatagram(d)
}

func TestIngest_SequenceGap(t *testing.T) {
	// S2: seqs 0,1,2,5,6 -> received=5, lost=2.
	c := NewController(0, 20.0, nil)
	now := time.Now()
	for _, seq := range []int64{0, 1, 2, 5, 6} {
		c.Ingest(context.Background(), datagram(0, 3, seq, now, 0.5), now)
	}

	state := c.getOrCreateServer(3, now)
	received, lost := state.snapshotCounters()
	if received != 5 {
		t.Errorf("expected 5 received, got %d", received)
	}
	if lost != 2 {
		t.Errorf("expected 2 lost, got %d", lost)
	}
}

func TestIngest_OutOfOrderArrival(t *testing.T) {
	// S3: seqs 0,1,3,2,4 -> received=5, lost=1.
	c := NewController(0, 20.0, nil)
	now := time.Now()
	for _, seq := range []int64{0, 1, 3, 2, 4} {
		c.Ingest(context.Background(), datagram(0, 7, seq, now, 0.5), now)
	}

	state := c.getOrCreateServer(7, now)
	received, lost := state.snapshotCounters()
	if received != 5 {
		t.Errorf("expected 5 received, got %d", received)
	}
	if lost != 1 {
		t.Errorf("expected 1 lost, got %d", lost)
	}
}

func TestIngest_WrongRackDropped(t *testing.T) {
	// S4: datagram addressed to a different rack is dropped, no state created.
	c := NewController(0, 20.0, nil)
	now := time.Now()
	c.Ingest(context.Background(), datagram(1, 3, 0, now, 0.5), now)

	if c.ServerCount() != 0 {
		t.Errorf("expected no server state created for wrong-rack traffic, got %d", c.ServerCount())
	}
}

func TestIngest_MalformedDropped(t *testing.T) {
	c := NewController(0, 20.0, nil)
	now := time.Now()
	c.Ingest(context.Background(), []byte("garbage"), now)

	if c.DecodeFailures() != 1 {
		t.Errorf("expected 1 decode failure, got %d", c.DecodeFailures())
	}
	if c.ServerCount() != 0 {
		t.Errorf("expected no server state for malformed datagram")
	}
}

func TestRunAnalysisPass_NoDataYieldsFullHealth(t *testing.T) {
	c := NewController(0, 20.0, nil)
	snapshots := c.RunAnalysisPass(context.Background())
	if len(snapshots) != 0 {
		t.Errorf("expected no snapshots with no servers, got %d", len(snapshots))
	}
	if c.HealthScore() != 1.0 {
		t.Errorf("expected rack health 1.0 with no data, got %v", c.HealthScore())
	}
}

func TestRunAnalysisPass_CleanChannel(t *testing.T) {
	// S1-like: feed a clean sine for 200 samples at 20Hz for server 3, rack 0.
	c := NewController(0, 20.0, nil)
	base := time.Now()
	freq := 1.0 + 0.05*3

	for seq := int64(0); seq < 200; seq++ {
		tSec := float64(seq) / 20.0
		wave := sineSample(freq, tSec)
		now := base.Add(time.Duration(tSec * float64(time.Second)))
		c.Ingest(context.Background(), datagram(0, 3, seq, now, wave), now)
	}

	snapshots := c.RunAnalysisPass(context.Background())
	if len(snapshots) != 1 {
		t.Fatalf("expected 1 server snapshot, got %d", len(snapshots))
	}
	snap := snapshots[0]
	if !snap.HasFreshData {
		t.Fatal("expected fresh data after 200 samples")
	}
	if snap.SpectralError >= 0.1 {
		t.Errorf("expected spectral_error < 0.1 for clean channel, got %v", snap.SpectralError)
	}
	if snap.PacketsLost != 0 {
		t.Errorf("expected zero loss, got %d", snap.PacketsLost)
	}
	if c.HealthScore() < 0.9 {
		t.Errorf("expected rack health >= 0.9, got %v", c.HealthScore())
	}
}

func sineSample(freqHz, tSec float64) float64 {
	return math.Sin(2 * math.Pi * freqHz * tSec)
}
