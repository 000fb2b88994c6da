// Package config provides configuration loading for the gateway.
package config

// ServerConfig controls the HTTP façade the "serve" command exposes.
type ServerConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	// StateDir, if set, turns on the durable SQLite session index
	// (internal/adapter/outbound/statestore) at <StateDir>/sessions.db so a
	// restarted serve process can still answer GET /sessions/index for
	// sessions that predate the crash. Leave unset to disable it entirely.
	StateDir string `mapstructure:"state_dir,omitempty"`
}

// LedgerConfig controls where the evidence ledger writes its per-session
// JSONL files.
type LedgerConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// PolicyConfig names the capability policy document new sessions load.
type PolicyConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// BackendConfig launches one MCP backend behind the proxy's virtual server.
// Validation requires Command or HTTP. The proxy starts every backend as a
// subprocess from Command and speaks MCP over its stdio pipes; it does not
// read HTTP, and there is no SSE transport to a remote MCP server.
type BackendConfig struct {
	Name    string   `mapstructure:"name" validate:"required"`
	Command string   `mapstructure:"command" validate:"required_without=HTTP"`
	Args    []string `mapstructure:"args,omitempty"`
	HTTP    string   `mapstructure:"http" validate:"required_without=Command,omitempty,url"`
}

// EvolutionConfig controls whether the Evolution Subsystem proposes policy
// widenings for denied actions and how it delivers those suggestions.
type EvolutionConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Delivery string `mapstructure:"delivery" validate:"omitempty,oneof=in_band out_of_band"`
}

// GateManagerConfig controls approval-gate resolution defaults.
type GateManagerConfig struct {
	AutoApproveRiskThreshold string `mapstructure:"auto_approve_risk_threshold" validate:"omitempty,oneof=low medium high critical"`
	WebhookSecretHash        string `mapstructure:"webhook_secret_hash,omitempty"`
	PromptTimeoutSeconds     int    `mapstructure:"prompt_timeout_seconds" validate:"omitempty,min=1"`
}

// GatewayConfig is the gateway's fully resolved configuration: the typed
// result of layering a YAML file under environment variables bound with
// the GATEWAY_ prefix, the way internal/config/loader.go does it.
type GatewayConfig struct {
	Server    ServerConfig      `mapstructure:"server"`
	Ledger    LedgerConfig      `mapstructure:"ledger" validate:"required"`
	Policy    PolicyConfig      `mapstructure:"policy" validate:"required"`
	Backends  []BackendConfig   `mapstructure:"backends" validate:"omitempty,dive"`
	Evolution EvolutionConfig   `mapstructure:"evolution"`
	Gates     GateManagerConfig `mapstructure:"gates"`
	DevMode   bool              `mapstructure:"dev_mode"`
}

// SetDefaults fills in optional fields Viper left unset. Mirrors the
// teacher's SetDefaults pattern: only fields the zero value cannot
// represent unambiguously get a default here; everything else is left
// to the validator's "required" tags to catch.
func (c *GatewayConfig) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8787
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Ledger.Dir == "" {
		c.Ledger.Dir = "./ledger"
	}
	if c.Evolution.Delivery == "" {
		c.Evolution.Delivery = "in_band"
	}
	if c.Gates.AutoApproveRiskThreshold == "" {
		c.Gates.AutoApproveRiskThreshold = "low"
	}
	if c.Gates.PromptTimeoutSeconds == 0 {
		c.Gates.PromptTimeoutSeconds = 300
	}
}

// SetDevDefaults applies permissive overrides suitable for local
// experimentation, analogous to the teacher's SetDevDefaults. It runs
// after SetDefaults and before Validate.
func (c *GatewayConfig) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Server.LogLevel == "info" {
		c.Server.LogLevel = "debug"
	}
	if c.Gates.AutoApproveRiskThreshold == "low" {
		c.Gates.AutoApproveRiskThreshold = "high"
	}
}
