package config

import "testing"

func TestGatewayConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg GatewayConfig
	cfg.SetDefaults()

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 8787 {
		t.Errorf("Server.Port = %d, want 8787", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("Server.LogLevel = %q, want %q", cfg.Server.LogLevel, "info")
	}
	if cfg.Ledger.Dir != "./ledger" {
		t.Errorf("Ledger.Dir = %q, want %q", cfg.Ledger.Dir, "./ledger")
	}
	if cfg.Evolution.Delivery != "in_band" {
		t.Errorf("Evolution.Delivery = %q, want %q", cfg.Evolution.Delivery, "in_band")
	}
	if cfg.Gates.AutoApproveRiskThreshold != "low" {
		t.Errorf("Gates.AutoApproveRiskThreshold = %q, want %q", cfg.Gates.AutoApproveRiskThreshold, "low")
	}
	if cfg.Gates.PromptTimeoutSeconds != 300 {
		t.Errorf("Gates.PromptTimeoutSeconds = %d, want 300", cfg.Gates.PromptTimeoutSeconds)
	}
}

func TestGatewayConfig_SetDefaults_PreservesExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := GatewayConfig{Server: ServerConfig{Host: "0.0.0.0", Port: 9000}}
	cfg.SetDefaults()

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host overwritten: got %q", cfg.Server.Host)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port overwritten: got %d", cfg.Server.Port)
	}
}

func TestGatewayConfig_SetDevDefaults_NoopWhenDisabled(t *testing.T) {
	t.Parallel()

	var cfg GatewayConfig
	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel changed without DevMode: got %q", cfg.Server.LogLevel)
	}
}

func TestGatewayConfig_SetDevDefaults_RelaxesGates(t *testing.T) {
	t.Parallel()

	cfg := GatewayConfig{DevMode: true}
	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug in dev mode", cfg.Server.LogLevel)
	}
	if cfg.Gates.AutoApproveRiskThreshold != "high" {
		t.Errorf("AutoApproveRiskThreshold = %q, want high in dev mode", cfg.Gates.AutoApproveRiskThreshold)
	}
}
