// Package metrics hand-rolls Prometheus text exposition for NetWatch,
// following the same provider-driven Collector shape the rest of the
// stack uses: the exposition surface pulls a fresh snapshot from
// whichever providers are wired for this process (Rack Controller,
// DC Controller, or the ambient process-health sampler) rather than
// having callers push individual samples.
package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"netwatch/internal/dc"
	"netwatch/internal/health"
	"netwatch/internal/rack"
)

// RackProvider is the subset of internal/rack.Controller the Rack
// Controller's metrics surface needs.
type RackProvider interface {
	Snapshot() []rack.ServerSnapshot
	HealthScore() float64
	ServerCount() int
	DecodeFailures() int64
	LatencyBucketsFor(serverID int) (bounds []float64, cumulative []uint64, sum float64, count uint64, ok bool)
}

// DCProvider is the subset of internal/dc.Controller the DC
// Controller's metrics surface needs.
type DCProvider interface {
	Snapshot() []dc.RackSnapshot
	HealthScore() float64
}

// HealthProvider is the subset of internal/health.Sampler the ambient
// process-health gauges need.
type HealthProvider interface {
	Last() health.Sample
}

// LinkProvider is the subset of LinkTracker the Rack Controller's DC
// link stability gauges need.
type LinkProvider interface {
	StabilityScore() float64
	Connected() bool
	AvgSendLatencyMs() float64
}

// Collector exposes whichever of RackProvider, DCProvider, LinkProvider
// and HealthProvider are set for this process in Prometheus text
// format. A Rack Controller wires Rack+Link+Health; a DC Controller
// wires DC+Health.
type Collector struct {
	mu sync.RWMutex

	rack   RackProvider
	rackID int
	dc     DCProvider
	dcID   int
	link   LinkProvider
	health HealthProvider
}

// NewCollector creates an empty Collector; wire providers with the
// Set* methods before the first Expose call.
func NewCollector() *Collector {
	return &Collector{}
}

// SetRackProvider wires the Rack Controller's state and the rack_id
// label attached to every metric it publishes, per spec §6.
func (c *Collector) SetRackProvider(p RackProvider, rackID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rack = p
	c.rackID = rackID
}

// SetDCProvider wires the DC Controller's state and the dc_id label
// attached to netwatch_dc_health_score, per spec §6.
func (c *Collector) SetDCProvider(p DCProvider, dcID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dc = p
	c.dcID = dcID
}

// SetLinkProvider wires the Rack Controller's DC-link stability
// tracker and the rack_id label attached to its gauges.
func (c *Collector) SetLinkProvider(p LinkProvider, rackID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.link = p
	c.rackID = rackID
}

func (c *Collector) SetHealthProvider(p HealthProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health = p
}

// Expose renders the current state of every wired provider as
// Prometheus text exposition format.
func (c *Collector) Expose() string {
	c.mu.RLock()
	rack, rackID, dc, dcID, link, health := c.rack, c.rackID, c.dc, c.dcID, c.link, c.health
	c.mu.RUnlock()

	var sb strings.Builder
	if rack != nil {
		writeRackMetrics(&sb, rack, rackID)
	}
	if dc != nil {
		writeDCMetrics(&sb, dc, dcID)
	}
	if link != nil {
		writeLinkMetrics(&sb, link, rackID)
	}
	if health != nil {
		writeHealthMetrics(&sb, health)
	}
	return sb.String()
}

func writeRackMetrics(sb *strings.Builder, p RackProvider, rackID int) {
	snapshot := p.Snapshot()
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ServerID < snapshot[j].ServerID })

	sb.WriteString("# HELP netwatch_server_spectral_error Fraction of spectral power outside the expected carrier bin\n")
	sb.WriteString("# TYPE netwatch_server_spectral_error gauge\n")
	for _, s := range snapshot {
		if !s.HasFreshData {
			continue
		}
		fmt.Fprintf(sb, "netwatch_server_spectral_error{rack_id=\"%d\",server_id=\"%d\"} %s\n", rackID, s.ServerID, formatFloat(s.SpectralError))
	}

	sb.WriteString("# HELP netwatch_server_snr_db Signal-to-noise ratio of the dominant carrier, in decibels\n")
	sb.WriteString("# TYPE netwatch_server_snr_db gauge\n")
	for _, s := range snapshot {
		if !s.HasFreshData {
			continue
		}
		fmt.Fprintf(sb, "netwatch_server_snr_db{rack_id=\"%d\",server_id=\"%d\"} %s\n", rackID, s.ServerID, formatFloat(s.SNRdB))
	}

	sb.WriteString("# HELP netwatch_packets_received_total Cumulative datagrams accepted per server\n")
	sb.WriteString("# TYPE netwatch_packets_received_total counter\n")
	for _, s := range snapshot {
		fmt.Fprintf(sb, "netwatch_packets_received_total{rack_id=\"%d\",server_id=\"%d\"} %d\n", rackID, s.ServerID, s.PacketsReceived)
	}

	sb.WriteString("# HELP netwatch_packets_lost_total Cumulative forward sequence gaps detected per server\n")
	sb.WriteString("# TYPE netwatch_packets_lost_total counter\n")
	for _, s := range snapshot {
		fmt.Fprintf(sb, "netwatch_packets_lost_total{rack_id=\"%d\",server_id=\"%d\"} %d\n", rackID, s.ServerID, s.PacketsLost)
	}

	sb.WriteString("# HELP netwatch_latency_ms Arrival latency of samples, in milliseconds\n")
	sb.WriteString("# TYPE netwatch_latency_ms histogram\n")
	for _, s := range snapshot {
		bounds, cumulative, sum, count, ok := p.LatencyBucketsFor(s.ServerID)
		if !ok {
			continue
		}
		for i, bound := range bounds {
			fmt.Fprintf(sb, "netwatch_latency_ms_bucket{rack_id=\"%d\",server_id=\"%d\",le=\"%s\"} %d\n",
				rackID, s.ServerID, formatFloat(bound), cumulative[i])
		}
		fmt.Fprintf(sb, "netwatch_latency_ms_bucket{rack_id=\"%d\",server_id=\"%d\",le=\"+Inf\"} %d\n", rackID, s.ServerID, cumulative[len(cumulative)-1])
		fmt.Fprintf(sb, "netwatch_latency_ms_sum{rack_id=\"%d\",server_id=\"%d\"} %s\n", rackID, s.ServerID, formatFloat(sum))
		fmt.Fprintf(sb, "netwatch_latency_ms_count{rack_id=\"%d\",server_id=\"%d\"} %d\n", rackID, s.ServerID, count)
	}

	sb.WriteString("# HELP netwatch_rack_health_score Aggregate rack health score in [0,1]\n")
	sb.WriteString("# TYPE netwatch_rack_health_score gauge\n")
	fmt.Fprintf(sb, "netwatch_rack_health_score{rack_id=\"%d\"} %s\n", rackID, formatFloat(p.HealthScore()))

	sb.WriteString("# HELP netwatch_rack_server_count Number of servers with observed state\n")
	sb.WriteString("# TYPE netwatch_rack_server_count gauge\n")
	fmt.Fprintf(sb, "netwatch_rack_server_count{rack_id=\"%d\"} %d\n", rackID, p.ServerCount())

	sb.WriteString("# HELP netwatch_decode_failures_total Malformed datagrams dropped at decode time\n")
	sb.WriteString("# TYPE netwatch_decode_failures_total counter\n")
	fmt.Fprintf(sb, "netwatch_decode_failures_total{rack_id=\"%d\"} %d\n", rackID, p.DecodeFailures())
}

func writeDCMetrics(sb *strings.Builder, p DCProvider, dcID int) {
	snapshot := p.Snapshot()
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].RackID < snapshot[j].RackID })

	sb.WriteString("# HELP netwatch_rack_health_score Last-known health score reported by each rack, republished by the DC Controller\n")
	sb.WriteString("# TYPE netwatch_rack_health_score gauge\n")
	for _, r := range snapshot {
		fmt.Fprintf(sb, "netwatch_rack_health_score{rack_id=\"%d\"} %s\n", r.RackID, formatFloat(r.HealthScore))
	}

	sb.WriteString("# HELP netwatch_rack_report_fresh 1 if the rack's last report is within the staleness window\n")
	sb.WriteString("# TYPE netwatch_rack_report_fresh gauge\n")
	for _, r := range snapshot {
		fresh := 0
		if r.Fresh {
			fresh = 1
		}
		fmt.Fprintf(sb, "netwatch_rack_report_fresh{rack_id=\"%d\"} %d\n", r.RackID, fresh)
	}

	sb.WriteString("# HELP netwatch_dc_health_score Aggregate datacenter health score in [0,1]\n")
	sb.WriteString("# TYPE netwatch_dc_health_score gauge\n")
	fmt.Fprintf(sb, "netwatch_dc_health_score{dc_id=\"%d\"} %s\n", dcID, formatFloat(p.HealthScore()))
}

func writeLinkMetrics(sb *strings.Builder, p LinkProvider, rackID int) {
	sb.WriteString("# HELP netwatch_dc_link_stability_score Stability of this rack's TCP link to its DC Controller, in [0,100]\n")
	sb.WriteString("# TYPE netwatch_dc_link_stability_score gauge\n")
	fmt.Fprintf(sb, "netwatch_dc_link_stability_score{rack_id=\"%d\"} %s\n", rackID, formatFloat(p.StabilityScore()))

	sb.WriteString("# HELP netwatch_dc_link_connected 1 if this rack currently has a live TCP link to its DC Controller\n")
	sb.WriteString("# TYPE netwatch_dc_link_connected gauge\n")
	connected := 0
	if p.Connected() {
		connected = 1
	}
	fmt.Fprintf(sb, "netwatch_dc_link_connected{rack_id=\"%d\"} %d\n", rackID, connected)

	sb.WriteString("# HELP netwatch_dc_link_send_latency_ms Running average latency of report sends over this rack's DC link\n")
	sb.WriteString("# TYPE netwatch_dc_link_send_latency_ms gauge\n")
	fmt.Fprintf(sb, "netwatch_dc_link_send_latency_ms{rack_id=\"%d\"} %s\n", rackID, formatFloat(p.AvgSendLatencyMs()))
}

func writeHealthMetrics(sb *strings.Builder, p HealthProvider) {
	sample := p.Last()

	sb.WriteString("# HELP netwatch_process_cpu_percent This process's own CPU usage percentage\n")
	sb.WriteString("# TYPE netwatch_process_cpu_percent gauge\n")
	fmt.Fprintf(sb, "netwatch_process_cpu_percent %s\n", formatFloat(sample.CPUPercent))

	sb.WriteString("# HELP netwatch_process_rss_bytes This process's own resident set size, in bytes\n")
	sb.WriteString("# TYPE netwatch_process_rss_bytes gauge\n")
	fmt.Fprintf(sb, "netwatch_process_rss_bytes %d\n", sample.RSSBytes)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
