// Package protocol implements NetWatch's wire formats: the UDP sample
// datagram sent by each Server Agent, and the TCP rack report sent by
// each Rack Controller. Both use a compact, order-independent
// `key=value` token encoding (see SPEC_FULL.md §3.1) rather than JSON,
// to keep datagrams small and framing trivial.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Datagram is one sample record, Agent -> Rack Controller.
type Datagram struct {
	RackID     int
	ServerID   int
	Seq        int64
	SentTS     float64
	WaveSample float64
}

// EncodeDatagram serializes d as a single space-separated key=value
// line, without a trailing newline (UDP framing is per-datagram).
func EncodeDatagram(d Datagram) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "rack_id=%d server_id=%d seq=%d sent_ts=%s wave_sample=%s",
		d.RackID, d.ServerID, d.Seq,
		strconv.FormatFloat(d.SentTS, 'f', -1, 64),
		strconv.FormatFloat(d.WaveSample, 'f', -1, 64),
	)
	return []byte(sb.String())
}

// DecodeDatagram parses a datagram payload. It rejects the record if
// any required key is missing or fails to parse; unknown keys are
// ignored so the format can grow without breaking older readers.
func DecodeDatagram(payload []byte) (Datagram, error) {
	fields, err := parseKV(payload)
	if err != nil {
		return Datagram{}, err
	}

	var d Datagram
	var ok bool

	if d.RackID, ok, err = intField(fields, "rack_id"); err != nil {
		return Datagram{}, err
	} else if !ok {
		return Datagram{}, fmt.Errorf("datagram missing rack_id")
	}
	if d.ServerID, ok, err = intField(fields, "server_id"); err != nil {
		return Datagram{}, err
	} else if !ok {
		return Datagram{}, fmt.Errorf("datagram missing server_id")
	}
	seq, ok, err := int64Field(fields, "seq")
	if err != nil {
		return Datagram{}, err
	} else if !ok {
		return Datagram{}, fmt.Errorf("datagram missing seq")
	}
	d.Seq = seq

	if d.SentTS, ok, err = floatField(fields, "sent_ts"); err != nil {
		return Datagram{}, err
	} else if !ok {
		return Datagram{}, fmt.Errorf("datagram missing sent_ts")
	}
	if d.WaveSample, ok, err = floatField(fields, "wave_sample"); err != nil {
		return Datagram{}, err
	} else if !ok {
		return Datagram{}, fmt.Errorf("datagram missing wave_sample")
	}

	return d, nil
}

// RackReport is one aggregated health record, Rack Controller -> DC
// Controller.
type RackReport struct {
	RackID      int
	HealthScore float64
	ServerCount int
	Timestamp   float64
}

// EncodeRackReport serializes r as a single newline-terminated
// key=value line, matching the line-oriented TCP framing in spec §6.
func EncodeRackReport(r RackReport) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "rack_id=%d health_score=%s server_count=%d timestamp=%s\n",
		r.RackID,
		strconv.FormatFloat(r.HealthScore, 'f', -1, 64),
		r.ServerCount,
		strconv.FormatFloat(r.Timestamp, 'f', -1, 64),
	)
	return []byte(sb.String())
}

// DecodeRackReport parses one line (without its trailing newline) of
// the TCP report stream.
func DecodeRackReport(line []byte) (RackReport, error) {
	fields, err := parseKV(line)
	if err != nil {
		return RackReport{}, err
	}

	var r RackReport
	var ok bool

	if r.RackID, ok, err = intField(fields, "rack_id"); err != nil {
		return RackReport{}, err
	} else if !ok {
		return RackReport{}, fmt.Errorf("report missing rack_id")
	}
	if r.HealthScore, ok, err = floatField(fields, "health_score"); err != nil {
		return RackReport{}, err
	} else if !ok {
		return RackReport{}, fmt.Errorf("report missing health_score")
	}
	if r.ServerCount, ok, err = intField(fields, "server_count"); err != nil {
		return RackReport{}, err
	} else if !ok {
		return RackReport{}, fmt.Errorf("report missing server_count")
	}
	if r.Timestamp, ok, err = floatField(fields, "timestamp"); err != nil {
		return RackReport{}, err
	} else if !ok {
		return RackReport{}, fmt.Errorf("report missing timestamp")
	}

	return r, nil
}

func parseKV(payload []byte) (map[string]string, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return nil, fmt.Errorf("empty record")
	}

	fields := make(map[string]string)
	for _, tok := range strings.Fields(text) {
		key, value, found := strings.Cut(tok, "=")
		if !found {
			return nil, fmt.Errorf("malformed token %q: missing '='", tok)
		}
		fields[key] = value
	}
	return fields, nil
}

func intField(fields map[string]string, key string) (int, bool, error) {
	v, ok := fields[key]
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s: %q: %w", key, v, err)
	}
	return n, true, nil
}

func int64Field(fields map[string]string, key string) (int64, bool, error) {
	v, ok := fields[key]
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s: %q: %w", key, v, err)
	}
	return n, true, nil
}

func floatField(fields map[string]string, key string) (float64, bool, error) {
	v, ok := fields[key]
	if !ok {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid float for %s: %q: %w", key, v, err)
	}
	return f, true, nil
}
