// Command dcctl runs a NetWatch DC Controller: it accepts rack health
// reports over TCP, aggregates them into a datacenter-wide score, and
// logs periodic summaries.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"netwatch/internal/config"
	"netwatch/internal/dc"
	"netwatch/internal/health"
	"netwatch/internal/metrics"
	"netwatch/internal/telemetry"
)

func main() {
	cfg, err := config.DCConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dcctl: configuration error: %v\n", err)
		os.Exit(1)
	}

	instanceID := uuid.NewString()
	log.Printf("dcctl: starting instance=%s dc_id=%d tcp_port=%d",
		instanceID, cfg.DCID, cfg.TCPListenPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracer, err := telemetry.NewTracer(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		Component:    "dc",
		InstanceID:   instanceID,
		ExporterType: exporterTypeFor(cfg.OTelEnabled, cfg.OTLPEndpoint),
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
	})
	if err != nil {
		log.Printf("dcctl: tracing disabled, exporter construction failed: %v", err)
		tracer = telemetry.NoopTracer()
	}
	defer tracer.Shutdown(context.Background())

	meter, err := telemetry.NewMeter(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		Component:    "dc",
		InstanceID:   instanceID,
		ExporterType: exporterTypeFor(cfg.OTelEnabled, cfg.OTLPEndpoint),
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
	})
	if err != nil {
		log.Printf("dcctl: otel metrics disabled, exporter construction failed: %v", err)
		meter = telemetry.NoopMeter()
	}
	defer meter.Shutdown(context.Background())

	controller := dc.NewController(cfg.DCID, tracer)

	collector := metrics.NewCollector()
	collector.SetDCProvider(controller, cfg.DCID)

	sampler, err := health.NewSampler()
	if err != nil {
		log.Printf("dcctl: process health sampling unavailable: %v", err)
	} else {
		collector.SetHealthProvider(sampler)
		if err := meter.RegisterProcessHealthGauges(sampler); err != nil {
			log.Printf("dcctl: otel process-health gauges not registered: %v", err)
		}
		go runHealthSampler(ctx, sampler, time.Duration(cfg.HealthSampleIntervalSec)*time.Second)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.TCPListenPort))
	if err != nil {
		fmt.Fprintf(os.Stderr, "dcctl: could not bind TCP port %d: %v\n", cfg.TCPListenPort, err)
		os.Exit(2)
	}
	go runAcceptLoop(ctx, listener, controller)

	go runSummaryLoop(ctx, controller, time.Duration(cfg.SummaryIntervalSec)*time.Second)

	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:      metricsHandler(collector),
		ReadTimeout:  time.Duration(cfg.MetricsReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.MetricsReadTimeoutSec) * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("dcctl: metrics server error: %v", err)
		}
	}()
	log.Printf("dcctl: metrics exposed on :%d/metrics", cfg.MetricsPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Printf("dcctl: shutting down instance=%s", instanceID)
	cancel()
	listener.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("dcctl: metrics server shutdown error: %v", err)
	}
	log.Printf("dcctl: stopped instance=%s", instanceID)
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

func runAcceptLoop(ctx context.Context, listener net.Listener, controller *dc.Controller) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("dcctl: accept error: %v", err)
			continue
		}
		go controller.HandleConnection(ctx, conn)
	}
}

func runSummaryLoop(ctx context.Context, controller *dc.Controller, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			controller.LogSummary()
		}
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
