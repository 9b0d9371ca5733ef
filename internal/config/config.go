// Package config loads NetWatch process configuration from environment
// variables, following the env-var contract in the spec: each tier
// reads only the variables it needs and fails fast on a missing
// required value rather than guessing a default.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Default tuning values shared across tiers.
const (
	DefaultSampleRateHz         = 20.0
	DefaultAnalysisIntervalSec  = 5
	DefaultDCSummaryIntervalSec = 10
	DefaultHealthSampleSec      = 15
	DefaultAgentResolveRetries  = 5
	DefaultMetricsReadTimeout   = 5
	DefaultAmplitude            = 1.0
	DefaultUDPBasePort          = 9999
	DefaultMetricsBasePortRack  = 8000
	DefaultMetricsPortDC        = 8100
	DefaultDCHost               = "localhost"
	DefaultDCPort               = 9990
	DefaultRackControllerHost   = "localhost"
)

func getenvStr(name, def string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return def
}

func getenvInt(name string, def int) (int, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %q: %w", name, v, err)
	}
	return n, nil
}

func getenvFloat(name string, def float64) (float64, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float for %s: %q: %w", name, v, err)
	}
	return f, nil
}

func getenvBool(name string, def bool) (bool, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid bool for %s: %q: %w", name, v, err)
	}
	return b, nil
}

func requireInt(name string) (int, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %q: %w", name, v, err)
	}
	return n, nil
}

// AgentConfig configures the Server Agent process.
type AgentConfig struct {
	RackID              int
	ServerID            int
	RackControllerHost  string
	RackControllerPort  int
	SampleRateHz        float64
	Amplitude           float64
	ResolveRetries      int
	OTelEnabled         bool
}

// AgentConfigFromEnv loads AgentConfig from the environment, per spec §6.
func AgentConfigFromEnv() (AgentConfig, error) {
	var cfg AgentConfig
	var err error

	if cfg.RackID, err = requireInt("RACK_ID"); err != nil {
		return cfg, err
	}
	if cfg.ServerID, err = requireInt("SERVER_ID"); err != nil {
		return cfg, err
	}
	cfg.RackControllerHost = getenvStr("RACK_CONTROLLER_HOST", DefaultRackControllerHost)
	if cfg.RackControllerPort, err = requireInt("RACK_CONTROLLER_PORT"); err != nil {
		return cfg, err
	}
	if cfg.SampleRateHz, err = getenvFloat("SAMPLE_RATE_HZ", DefaultSampleRateHz); err != nil {
		return cfg, err
	}
	if cfg.Amplitude, err = getenvFloat("AMPLITUDE", DefaultAmplitude); err != nil {
		return cfg, err
	}
	if cfg.ResolveRetries, err = getenvInt("AGENT_RESOLVE_RETRIES", DefaultAgentResolveRetries); err != nil {
		return cfg, err
	}
	if cfg.OTelEnabled, err = getenvBool("NETWATCH_OTEL_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.RackID < 0 || cfg.ServerID < 0 {
		return cfg, fmt.Errorf("RACK_ID and SERVER_ID must be non-negative")
	}
	return cfg, nil
}

// ExpectedFrequency returns the carrier frequency assigned to this
// (rack_id, server_id) pair, per the GLOSSARY definition.
func (c AgentConfig) ExpectedFrequency() float64 {
	return (1.0 + float64(c.RackID)) + 0.05*float64(c.ServerID)
}

// RackConfig configures the Rack Controller process.
type RackConfig struct {
	RackID                int
	UDPListenPort         int
	MetricsPort           int
	DCHost                string
	DCPort                int
	SampleRateHz          float64
	AnalysisIntervalSec   int
	HealthSampleIntervalSec int
	MetricsReadTimeoutSec int
	OTelEnabled           bool
	OTLPEndpoint          string
	OTLPInsecure          bool
}

// RackConfigFromEnv loads RackConfig from the environment, per spec §6.
func RackConfigFromEnv() (RackConfig, error) {
	var cfg RackConfig
	var err error

	if cfg.RackID, err = requireInt("RACK_ID"); err != nil {
		return cfg, err
	}
	if cfg.UDPListenPort, err = getenvInt("UDP_LISTEN_PORT", DefaultUDPBasePort+cfg.RackID); err != nil {
		return cfg, err
	}
	if cfg.MetricsPort, err = getenvInt("METRICS_PORT", DefaultMetricsBasePortRack+cfg.RackID); err != nil {
		return cfg, err
	}

	dcHostPort := getenvStr("DC_HOST", "")
	if dcHostPort == "" {
		cfg.DCHost = DefaultDCHost
	} else {
		cfg.DCHost = dcHostPort
	}
	if cfg.DCPort, err = getenvInt("DC_PORT", DefaultDCPort); err != nil {
		return cfg, err
	}
	if cfg.SampleRateHz, err = getenvFloat("SAMPLE_RATE_HZ", DefaultSampleRateHz); err != nil {
		return cfg, err
	}
	if cfg.AnalysisIntervalSec, err = getenvInt("ANALYSIS_INTERVAL_SEC", DefaultAnalysisIntervalSec); err != nil {
		return cfg, err
	}
	if cfg.HealthSampleIntervalSec, err = getenvInt("HEALTH_SAMPLE_INTERVAL_SEC", DefaultHealthSampleSec); err != nil {
		return cfg, err
	}
	if cfg.MetricsReadTimeoutSec, err = getenvInt("METRICS_READ_TIMEOUT_SEC", DefaultMetricsReadTimeout); err != nil {
		return cfg, err
	}
	if cfg.OTelEnabled, err = getenvBool("NETWATCH_OTEL_ENABLED", false); err != nil {
		return cfg, err
	}
	cfg.OTLPEndpoint = getenvStr("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if cfg.OTLPInsecure, err = getenvBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return cfg, err
	}
	if cfg.RackID < 0 {
		return cfg, fmt.Errorf("RACK_ID must be non-negative")
	}
	return cfg, nil
}

// DCConfig configures the DC Controller process.
type DCConfig struct {
	DCID                    int
	TCPListenPort           int
	MetricsPort             int
	SummaryIntervalSec      int
	HealthSampleIntervalSec int
	MetricsReadTimeoutSec   int
	OTelEnabled             bool
	OTLPEndpoint            string
	OTLPInsecure            bool
}

// DCConfigFromEnv loads DCConfig from the environment, per spec §6.
func DCConfigFromEnv() (DCConfig, error) {
	var cfg DCConfig
	var err error

	if cfg.DCID, err = getenvInt("DC_ID", 0); err != nil {
		return cfg, err
	}
	if cfg.TCPListenPort, err = getenvInt("TCP_LISTEN_PORT", DefaultDCPort); err != nil {
		return cfg, err
	}
	if cfg.MetricsPort, err = getenvInt("METRICS_PORT", DefaultMetricsPortDC); err != nil {
		return cfg, err
	}
	if cfg.SummaryIntervalSec, err = getenvInt("DC_SUMMARY_INTERVAL_SEC", DefaultDCSummaryIntervalSec); err != nil {
		return cfg, err
	}
	if cfg.HealthSampleIntervalSec, err = getenvInt("HEALTH_SAMPLE_INTERVAL_SEC", DefaultHealthSampleSec); err != nil {
		return cfg, err
	}
	if cfg.MetricsReadTimeoutSec, err = getenvInt("METRICS_READ_TIMEOUT_SEC", DefaultMetricsReadTimeout); err != nil {
		return cfg, err
	}
	if cfg.OTelEnabled, err = getenvBool("NETWATCH_OTEL_ENABLED", false); err != nil {
		return cfg, err
	}
	cfg.OTLPEndpoint = getenvStr("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if cfg.OTLPInsecure, err = getenvBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return cfg, err
	}
	return cfg, nil
}
