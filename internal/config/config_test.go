package config

import (
	"testing"
	"time"

	"otp/internal/domain"
)

func TestParseProviders(t *testing.T) {
	got, err := parseProviders("twilio,sms,1,log; vonage,sms|email,2,webhook,https://hooks.local/send ;smtp,email,1,log")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 providers, got %d", len(got))
	}

	if got[0].Name != "twilio" || got[0].DisplayName != "Twilio" || got[0].Kind != "log" || got[0].Priority != 1 {
		t.Errorf("twilio parsed wrong: %+v", got[0])
	}
	if got[1].Kind != "webhook" || got[1].URL != "https://hooks.local/send" {
		t.Errorf("vonage parsed wrong: %+v", got[1])
	}
	if len(got[1].Channels) != 2 || got[1].Channels[0] != domain.ChannelSMS || got[1].Channels[1] != domain.ChannelEmail {
		t.Errorf("multi-channel parsed wrong: %v", got[1].Channels)
	}
}

func TestParseProvidersErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"too few fields", "twilio,sms,1"},
		{"duplicate name", "twilio,sms,1,log;twilio,sms,2,log"},
		{"empty name", ",sms,1,log"},
		{"bad channel", "twilio,fax,1,log"},
		{"bad priority", "twilio,sms,high,log"},
		{"unknown kind", "twilio,sms,1,carrier"},
		{"webhook without url", "hooks,sms,1,webhook"},
	}
	for _, tc := range cases {
		if _, err := parseProviders(tc.raw); err == nil {
			t.Errorf("%s: expected error for %q", tc.name, tc.raw)
		}
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Environment:       "dev",
		CodeLength:        6,
		MaxVerifyAttempts: 5,
		FailureThreshold:  3,
		RateLimitMax:      5,
		Providers:         []ProviderConfig{{Name: "twilio"}},
	}
	if err := base.validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"code too short", func(c *Config) { c.CodeLength = 3 }},
		{"code too long", func(c *Config) { c.CodeLength = 11 }},
		{"zero attempts", func(c *Config) { c.MaxVerifyAttempts = 0 }},
		{"zero threshold", func(c *Config) { c.FailureThreshold = 0 }},
		{"zero rate limit", func(c *Config) { c.RateLimitMax = 0 }},
		{"no providers", func(c *Config) { c.Providers = nil }},
		{"no auth outside dev", func(c *Config) { c.Environment = "production" }},
	}
	for _, tc := range cases {
		cfg := base
		tc.mutate(&cfg)
		if err := cfg.validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CodeLength != 6 || cfg.CodeTTL != 5*time.Minute || cfg.MaxVerifyAttempts != 5 {
		t.Fatalf("unexpected otp defaults: %+v", cfg)
	}
	if cfg.RateLimitWindow != 10*time.Minute || cfg.RateLimitMax != 5 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg)
	}
	if len(cfg.Providers) != 3 {
		t.Fatalf("expected 3 default providers, got %+v", cfg.Providers)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OTP_CODE_LENGTH", "8")
	t.Setenv("OTP_CODE_TTL", "2m")
	t.Setenv("PROVIDERS", "dev,sms|email,1,log")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CodeLength != 8 || cfg.CodeTTL != 2*time.Minute {
		t.Fatalf("env overrides ignored: %+v", cfg)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].Name != "dev" {
		t.Fatalf("providers override ignored: %+v", cfg.Providers)
	}
}

func TestInvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("OTP_CODE_LENGTH", "lots")
	t.Setenv("OTP_CODE_TTL", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CodeLength != 6 || cfg.CodeTTL != 5*time.Minute {
		t.Fatalf("expected defaults on unparsable env: %+v", cfg)
	}
}
