package agent

import (
	"context"
	"math"
	"net"
	"testing"
	"time"

	"netwatch/internal/protocol"
)

func TestComputeFrequency(t *testing.T) {
	cases := []struct {
		rackID, serverID int
		want             float64
	}{
		{0, 0, 1.0},
		{1, 0, 2.0},
		{0, 3, 1.15},
		{2, 4, 3.2},
	}
	for _, c := range cases {
		got := ComputeFrequency(c.rackID, c.serverID)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("ComputeFrequency(%d,%d) = %v, want %v", c.rackID, c.serverID, got, c.want)
		}
	}
}

func TestGenerateSample_Bounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		v := GenerateSample(1.3, float64(i)*0.01, 2.0)
		if v < -2.0-1e-9 || v > 2.0+1e-9 {
			t.Fatalf("sample %v out of amplitude bounds", v)
		}
	}
}

func TestSender_SendTick_EncodesSequence(t *testing.T) {
	serverConn, clientConn := udpPipe(t)
	defer serverConn.Close()
	defer clientConn.Close()

	s := NewSender(0, 3, ComputeFrequency(0, 3), 1.0, 20.0, clientConn)

	now := time.Now()
	s.SendTick(now)
	s.SendTick(now.Add(50 * time.Millisecond))

	buf := make([]byte, 512)
	for _, wantSeq := range []int64{0, 1} {
		serverConn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := serverConn.Read(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		dg, err := protocol.DecodeDatagram(buf[:n])
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if dg.Seq != wantSeq {
			t.Errorf("expected seq %d, got %d", wantSeq, dg.Seq)
		}
		if dg.RackID != 0 || dg.ServerID != 3 {
			t.Errorf("unexpected rack/server id: %+v", dg)
		}
	}
}

func TestSender_SendTick_PhaseAnchoredToSampleIndex(t *testing.T) {
	// A late tick (simulating GC pause / scheduler jitter) must not
	// shift the sine phase: t is n/fs, not wall-clock elapsed time.
	serverConn, clientConn := udpPipe(t)
	defer serverConn.Close()
	defer clientConn.Close()

	freq := ComputeFrequency(0, 3)
	sampleRateHz := 20.0
	s := NewSender(0, 3, freq, 1.0, sampleRateHz, clientConn)

	now := time.Now()
	s.SendTick(now)
	s.SendTick(now.Add(5 * time.Second)) // way later than the 50ms tick period

	buf := make([]byte, 512)
	var waves []float64
	for range []int{0, 1} {
		serverConn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := serverConn.Read(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		dg, err := protocol.DecodeDatagram(buf[:n])
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		waves = append(waves, dg.WaveSample)
	}

	want := GenerateSample(freq, 1.0/sampleRateHz, 1.0)
	if math.Abs(waves[1]-want) > 1e-9 {
		t.Errorf("expected second sample anchored to n=1/fs=%.4f regardless of tick jitter, got %v want %v",
			1.0/sampleRateHz, waves[1], want)
	}
}

func TestResolveAndDial_PermanentFailureReturnsImmediately(t *testing.T) {
	_, err := ResolveAndDial(context.Background(), "this-host-name-does-not-exist.invalid", 9999, 5)
	if err == nil {
		t.Fatal("expected resolution failure for invalid hostname")
	}
}

func udpPipe(t *testing.T) (*net.UDPConn, *net.UDPConn) {
	t.Helper()
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	client, err := net.DialUDP("udp", nil, server.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return server, client
}
