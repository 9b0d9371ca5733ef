package config

import "testing"

func TestAgentConfigFromEnv_Required(t *testing.T) {
	t.Setenv("RACK_ID", "2")
	t.Setenv("SERVER_ID", "3")
	t.Setenv("RACK_CONTROLLER_PORT", "9999")

	cfg, err := AgentConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RackID != 2 || cfg.ServerID != 3 {
		t.Fatalf("unexpected ids: %+v", cfg)
	}
	if cfg.RackControllerHost != DefaultRackControllerHost {
		t.Errorf("expected default host, got %q", cfg.RackControllerHost)
	}
	if got, want := cfg.ExpectedFrequency(), 3.0+0.05*3; got != want {
		t.Errorf("ExpectedFrequency() = %v, want %v", got, want)
	}
}

func TestAgentConfigFromEnv_MissingRequired(t *testing.T) {
	t.Setenv("RACK_ID", "")
	t.Setenv("SERVER_ID", "")
	t.Setenv("RACK_CONTROLLER_PORT", "")

	if _, err := AgentConfigFromEnv(); err == nil {
		t.Fatal("expected error for missing RACK_ID")
	}
}

func TestRackConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("RACK_ID", "1")
	t.Setenv("UDP_LISTEN_PORT", "")
	t.Setenv("METRICS_PORT", "")

	cfg, err := RackConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UDPListenPort != DefaultUDPBasePort+1 {
		t.Errorf("expected derived UDP port %d, got %d", DefaultUDPBasePort+1, cfg.UDPListenPort)
	}
	if cfg.MetricsPort != DefaultMetricsBasePortRack+1 {
		t.Errorf("expected derived metrics port %d, got %d", DefaultMetricsBasePortRack+1, cfg.MetricsPort)
	}
	if cfg.DCHost != DefaultDCHost || cfg.DCPort != DefaultDCPort {
		t.Errorf("unexpected DC target: %s:%d", cfg.DCHost, cfg.DCPort)
	}
}

func TestDCConfigFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"DC_ID", "TCP_LISTEN_PORT", "METRICS_PORT", "DC_SUMMARY_INTERVAL_SEC"} {
		t.Setenv(k, "")
	}
	cfg, err := DCConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MetricsPort != DefaultMetricsPortDC {
		t.Errorf("expected default DC metrics port %d, got %d", DefaultMetricsPortDC, cfg.MetricsPort)
	}
	if cfg.SummaryIntervalSec != DefaultDCSummaryIntervalSec {
		t.Errorf("expected default summary interval %d, got %d", DefaultDCSummaryIntervalSec, cfg.SummaryIntervalSec)
	}
}

func TestRequireIntInvalid(t *testing.T) {
	t.Setenv("RACK_ID", "not-a-number")
	t.Setenv("SERVER_ID", "1")
	t.Setenv("RACK_CONTROLLER_PORT", "9999")

	if _, err := AgentConfigFromEnv(); err == nil {
		t.Fatal("expected error for non-numeric RACK_ID")
	}
}
