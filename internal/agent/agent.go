// Package agent implements the Server Agent: a synthetic sensor that
// emits one sine-wave sample per tick over UDP to its Rack Controller.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"

	"netwatch/internal/protocol"
)

// ComputeFrequency returns the carrier frequency assigned to
// (rackID, serverID): base 1Hz per rack plus a 0.05Hz-per-server
// offset, per the GLOSSARY.
func ComputeFrequency(rackID, serverID int) float64 {
	return (1.0 + float64(rackID)) + 0.05*float64(serverID)
}

// GenerateSample returns one sine-wave sample A*sin(2*pi*f*t).
func GenerateSample(freqHz, tSec, amplitude float64) float64 {
	return amplitude * math.Sin(2*math.Pi*freqHz*tSec)
}

// Sender owns the UDP socket to a Rack Controller and the monotonic
// sequence counter for one (rack_id, server_id) pair.
type Sender struct {
	RackID, ServerID int
	FreqHz           float64
	Amplitude        float64
	SampleRateHz     float64

	conn *net.UDPConn
	seq  int64
}

// ResolveAndDial resolves host:port and opens the UDP socket, retrying
// the resolution up to maxRetries times with capped exponential
// backoff (200ms initial, 2s cap) per SPEC_FULL.md §4.5. A permanent
// resolution failure (bad hostname, not a transient DNS error) returns
// immediately without exhausting retries.
func ResolveAndDial(ctx context.Context, host string, port int, maxRetries int) (*net.UDPConn, error) {
	target := fmt.Sprintf("%s:%d", host, port)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	resolve := func() (*net.UDPAddr, error) {
		addr, err := net.ResolveUDPAddr("udp", target)
		if err != nil {
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) && !dnsErr.Temporary() {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return addr, nil
	}

	addr, err := backoff.Retry(ctx, resolve,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxRetries)),
	)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return conn, nil
}

// NewSender wraps an already-dialed UDP connection. sampleRateHz
// anchors the sine-wave phase to the sample index rather than wall
// time (see SendTick).
func NewSender(rackID, serverID int, freqHz, amplitude, sampleRateHz float64, conn *net.UDPConn) *Sender {
	return &Sender{
		RackID:       rackID,
		ServerID:     serverID,
		FreqHz:       freqHz,
		Amplitude:    amplitude,
		SampleRateHz: sampleRateHz,
		conn:         conn,
	}
}

// SendTick generates and sends one sample. Per SPEC_FULL.md §4.2, the
// sample's phase is t = n/fs, anchored to the monotonic sample index
// s.seq rather than wall-clock elapsed time: a sender clock drifting
// relative to wall time (GC pause, scheduler delay, a slow Write) must
// not corrupt the sampling grid the spectral analysis assumes. now is
// used only for the wire timestamp, which the Rack Controller uses for
// arrival-latency measurement, not for phase.
func (s *Sender) SendTick(now time.Time) {
	t := float64(s.seq) / s.SampleRateHz
	wave := GenerateSample(s.FreqHz, t, s.Amplitude)

	dg := protocol.Datagram{
		RackID:     s.RackID,
		ServerID:   s.ServerID,
		Seq:        s.seq,
		SentTS:     float64(now.UnixNano()) / 1e9,
		WaveSample: wave,
	}

	if _, err := s.conn.Write(protocol.EncodeDatagram(dg)); err != nil {
		log.Printf("agent rack=%d server=%d: dropping sample, send failed: %v", s.RackID, s.ServerID, err)
		s.seq++
		return
	}

	if s.seq%100 == 0 {
		log.Printf("agent rack=%d server=%d: sent seq=%d wave_sample=%.4f t=%.3f",
			s.RackID, s.ServerID, s.seq, wave, t)
	}
	s.seq++
}

// Close releases the underlying socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}

// Run ticks SendTick on a drift-free schedule (each tick fires at
// start + n*period, not period after the previous tick returned),
// until ctx is cancelled.
func (s *Sender) Run(ctx context.Context, period time.Duration) {
	next := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.SendTick(time.Now())

		next = next.Add(period)
		delay := time.Until(next)
		if delay < 0 {
			next = time.Now()
			delay = 0
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
