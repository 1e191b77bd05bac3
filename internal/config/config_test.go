package config

import (
	"testing"
	"time"
)

func devConfig() *Config {
	return &Config{
		Env:            "development",
		DatabaseURL:    "postgres://localhost/caregrid",
		AuthSigningKey: "dev-secret",
		GrantCacheTTL:  30 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

func TestValidate_DevWithSigningKey(t *testing.T) {
	if err := devConfig().Validate(); err != nil {
		t.Errorf("dev config should validate: %v", err)
	}
}

func TestValidate_DevWithoutAnyAuth(t *testing.T) {
	cfg := devConfig()
	cfg.AuthSigningKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("config with no auth source must be rejected")
	}
}

func TestValidate_ProductionRequiresJWKS(t *testing.T) {
	cfg := devConfig()
	cfg.Env = "production"
	cfg.AuthSigningKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("production without AUTH_JWKS_URL must be rejected")
	}

	cfg.AuthJWKSURL = "https://idp.example.com/jwks"
	cfg.AuthIssuer = "https://idp.example.com"
	if err := cfg.Validate(); err != nil {
		t.Errorf("production with JWKS should validate: %v", err)
	}
}

func TestValidate_ProductionRejectsSharedSecret(t *testing.T) {
	cfg := devConfig()
	cfg.Env = "production"
	cfg.AuthJWKSURL = "https://idp.example.com/jwks"
	cfg.AuthIssuer = "https://idp.example.com"
	cfg.AuthSigningKey = "dev-secret"
	if err := cfg.Validate(); err == nil {
		t.Error("production with a shared signing key must be rejected")
	}
}

func TestValidate_GrantCacheTTLBounds(t *testing.T) {
	cfg := devConfig()
	cfg.GrantCacheTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero grant cache TTL must be rejected")
	}

	cfg.GrantCacheTTL = time.Hour
	if err := cfg.Validate(); err == nil {
		t.Error("hour-long grant cache TTL must be rejected")
	}
}

func TestEnvPredicates(t *testing.T) {
	cfg := devConfig()
	if !cfg.IsDev() || cfg.IsProduction() {
		t.Error("ENV=development misreported")
	}
	cfg.Env = "production"
	if cfg.IsDev() || !cfg.IsProduction() {
		t.Error("ENV=production misreported")
	}
}
