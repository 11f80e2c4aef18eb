package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App: AppConfig{Env: "local", Port: 8080, ServerURL: "https://bridge.example.com"},
		Daily: DailyConfig{APIKey: "dk"},
		Plivo: PlivoConfig{AuthID: "pid", AuthToken: "ptok", PhoneNumber: "+15550000000"},
		Agent: AgentConfig{Command: "voice-agent"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_AppliesDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Daily.APIURL != defaultDailyAPIURL {
		t.Fatalf("expected default daily url, got %q", c.Daily.APIURL)
	}
	if c.Plivo.APIURL != defaultPlivoAPIURL {
		t.Fatalf("expected default plivo url, got %q", c.Plivo.APIURL)
	}
	if c.Agent.ReadyTimeoutInbound != 2*time.Second || c.Agent.ReadyTimeoutOutbound != 5*time.Second {
		t.Fatalf("unexpected readiness defaults: %v %v", c.Agent.ReadyTimeoutInbound, c.Agent.ReadyTimeoutOutbound)
	}
	if c.App.UpstreamTimeout != 15*time.Second {
		t.Fatalf("unexpected upstream timeout default: %v", c.App.UpstreamTimeout)
	}
}

func TestValidate_RejectsRelativeServerURL(t *testing.T) {
	c := validConfig()
	c.App.ServerURL = "bridge.example.com"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for relative SERVER_URL")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8000")
	t.Setenv("SERVER_URL", "https://bridge.example.com/")
	t.Setenv("DAILY_API_KEY", "dk")
	t.Setenv("PLIVO_AUTH_ID", "pid")
	t.Setenv("PLIVO_AUTH_TOKEN", "ptok")
	t.Setenv("PLIVO_PHONE_NUMBER", "+15550000000")
	t.Setenv("AGENT_COMMAND", "voice-agent")
	t.Setenv("AGENT_READY_TIMEOUT_OUTBOUND", "7s")

	c, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.App.ServerURL != "https://bridge.example.com" {
		t.Fatalf("expected trailing slash stripped, got %q", c.App.ServerURL)
	}
	if c.Agent.ReadyTimeoutOutbound != 7*time.Second {
		t.Fatalf("expected 7s, got %v", c.Agent.ReadyTimeoutOutbound)
	}
	if c.CallbackURL("/call-answered") != "https://bridge.example.com/call-answered" {
		t.Fatalf("unexpected callback url %q", c.CallbackURL("/call-answered"))
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8000")
	t.Setenv("SERVER_URL", "https://bridge.example.com")
	t.Setenv("DAILY_API_KEY", "dk")
	t.Setenv("PLIVO_AUTH_ID", "pid")
	t.Setenv("PLIVO_AUTH_TOKEN", "ptok")
	t.Setenv("PLIVO_PHONE_NUMBER", "+15550000000")
	t.Setenv("AGENT_COMMAND", "voice-agent")
	t.Setenv("UPSTREAM_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}
