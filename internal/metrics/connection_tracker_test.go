package metrics

import "testing"

func TestLinkTrackerStabilityScorePerfectLinkScoresMax(t *testing.T) {
	lt := NewLinkTracker()
	lt.RecordCreated("3")
	lt.RecordSend("3", 10)
	lt.RecordSend("3", 20)

	if got := lt.StabilityScore(); got != 100.0 {
		t.Fatalf("expected stability score 100 for a link with no drops/reconnects/errors, got %f", got)
	}
	if !lt.Connected() {
		t.Fatal("expected link to be connected after RecordCreated")
	}
}

func TestLinkTrackerStabilityScorePenalizesDropsReconnectsAndErrors(t *testing.T) {
	lt := NewLinkTracker()
	lt.RecordCreated("3")
	lt.RecordDropped("3")
	lt.RecordReconnect("3")
	lt.RecordSend("3", 10)
	lt.RecordSendError("3")

	score := lt.StabilityScore()
	if score <= 0 || score >= 100 {
		t.Fatalf("expected a degraded-but-bounded score in (0,100), got %f", score)
	}
	if !lt.Connected() {
		t.Fatal("expected link to be connected again after RecordReconnect")
	}
}

func TestLinkTrackerStabilityScoreNeverNegative(t *testing.T) {
	lt := NewLinkTracker()
	lt.RecordCreated("3")
	for i := 0; i < 10; i++ {
		lt.RecordDropped("3")
		lt.RecordReconnect("3")
		lt.RecordSendError("3")
	}

	if got := lt.StabilityScore(); got < 0 {
		t.Fatalf("expected stability score to clamp at 0, got %f", got)
	}
}

func TestLinkTrackerRecordDroppedMarksDisconnected(t *testing.T) {
	lt := NewLinkTracker()
	lt.RecordCreated("3")
	lt.RecordDropped("3")

	if lt.Connected() {
		t.Fatal("expected link to be disconnected after RecordDropped")
	}
}

func TestLinkTrackerAvgSendLatencyMsTracksRunningAverage(t *testing.T) {
	lt := NewLinkTracker()
	lt.RecordCreated("3")
	lt.RecordSend("3", 10)
	lt.RecordSend("3", 30)

	if got := lt.AvgSendLatencyMs(); got != 20.0 {
		t.Fatalf("expected running average latency 20ms, got %f", got)
	}
}
