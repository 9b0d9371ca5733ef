// Command rackctl runs a NetWatch Rack Controller: it ingests UDP
// sample datagrams from Server Agents, runs periodic spectral
// analysis, and reports rack health to a DC Controller over TCP.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"netwatch/internal/config"
	"netwatch/internal/health"
	"netwatch/internal/metrics"
	"netwatch/internal/protocol"
	"netwatch/internal/rack"
	"netwatch/internal/telemetry"
)

func main() {
	cfg, err := config.RackConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rackctl: configuration error: %v\n", err)
		os.Exit(1)
	}

	instanceID := uuid.NewString()
	log.Printf("rackctl: starting instance=%s rack_id=%d udp_port=%d dc=%s:%d",
		instanceID, cfg.RackID, cfg.UDPListenPort, cfg.DCHost, cfg.DCPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracer, err := telemetry.NewTracer(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		Component:    "rack",
		InstanceID:   instanceID,
		ExporterType: exporterTypeFor(cfg.OTelEnabled, cfg.OTLPEndpoint),
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
	})
	if err != nil {
		log.Printf("rackctl: tracing disabled, exporter construction failed: %v", err)
		tracer = telemetry.NoopTracer()
	}
	defer tracer.Shutdown(context.Background())

	meter, err := telemetry.NewMeter(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		Component:    "rack",
		InstanceID:   instanceID,
		ExporterType: exporterTypeFor(cfg.OTelEnabled, cfg.OTLPEndpoint),
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
	})
	if err != nil {
		log.Printf("rackctl: otel metrics disabled, exporter construction failed: %v", err)
		meter = telemetry.NoopMeter()
	}
	defer meter.Shutdown(context.Background())

	controller := rack.NewController(cfg.RackID, cfg.SampleRateHz, tracer)

	linkTracker := metrics.NewLinkTracker()
	reporter := rack.NewDCReporter(cfg.DCHost, cfg.DCPort, strconv.Itoa(cfg.RackID))
	reporter.SetLinkRecorder(linkTracker)
	defer reporter.Close()

	collector := metrics.NewCollector()
	collector.SetRackProvider(controller, cfg.RackID)
	collector.SetLinkProvider(linkTracker, cfg.RackID)

	sampler, err := health.NewSampler()
	if err != nil {
		log.Printf("rackctl: process health sampling unavailable: %v", err)
	} else {
		collector.SetHealthProvider(sampler)
		if err := meter.RegisterProcessHealthGauges(sampler); err != nil {
			log.Printf("rackctl: otel process-health gauges not registered: %v", err)
		}
		go runHealthSampler(ctx, sampler, time.Duration(cfg.HealthSampleIntervalSec)*time.Second)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.UDPListenPort})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rackctl: could not bind UDP port %d: %v\n", cfg.UDPListenPort, err)
		os.Exit(2)
	}
	go runIngestLoop(ctx, conn, controller)

	go runAnalysisLoop(ctx, controller, reporter, linkTracker, cfg)

	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:      metricsHandler(collector),
		ReadTimeout:  time.Duration(cfg.MetricsReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.MetricsReadTimeoutSec) * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("rackctl: metrics server error: %v", err)
		}
	}()
	log.Printf("rackctl: metrics exposed on :%d/metrics", cfg.MetricsPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Printf("rackctl: shutting down instance=%s", instanceID)
	cancel()
	conn.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("rackctl: metrics server shutdown error: %v", err)
	}
	log.Printf("rackctl: stopped instance=%s", instanceID)
}

func exporterTypeFor(enabled bool, otlpEndpoint string) telemetry.ExporterType {
	if !enabled {
		return telemetry.ExporterNone
	}
	if otlpEndpoint != "" {
		return telemetry.ExporterOTLPGRPC
	}
	return telemetry.ExporterStdout
}

func runIngestLoop(ctx context.Context, conn *net.UDPConn, controller *rack.Controller) {
	buf := make([]byte, 1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		controller.Ingest(ctx, payload, time.Now())
	}
}

func runAnalysisLoop(ctx context.Context, controller *rack.Controller, reporter *rack.DCReporter, linkTracker *metrics.LinkTracker, cfg config.RackConfig) {
	ticker := time.NewTicker(time.Duration(cfg.AnalysisIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			controller.RunAnalysisPass(ctx)

			report := rackReportFrom(controller, cfg.RackID)
			if err := reporter.Send(report); err != nil {
				log.Printf("rackctl: report send failed: %v", err)
			}

			log.Printf("rackctl: rack_id=%d health=%.3f servers=%d dc_link_stability=%.1f",
				cfg.RackID, controller.HealthScore(), controller.ServerCount(), linkTracker.StabilityScore())
		}
	}
}

func rackReportFrom(controller *rack.Controller, rackID int) protocol.RackReport {
	return protocol.RackReport{
		RackID:      rackID,
		HealthScore: controller.HealthScore(),
		ServerCount: controller.ServerCount(),
		Timestamp:   float64(time.Now().UnixNano()) / 1e9,
	}
}

func runHealthSampler(ctx context.Context, sampler *health.Sampler, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sampler.Refresh()
		}
	}
}

func metricsHandler(collector *metrics.Collector) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write([]byte(collector.Expose()))
	})
	return mux
}
