package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadWith_Defaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET": testSecret,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8080" || cfg.StoreDriver != StoreMongo || cfg.Mail.Driver != MailLog {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Auth.LockoutThreshold != 5 || cfg.Auth.LockoutDuration != 30*time.Minute {
		t.Errorf("unexpected lockout defaults: %+v", cfg.Auth)
	}
	if cfg.Auth.ResetTokenTTL != 30*time.Minute || cfg.Auth.SessionTTL != 24*time.Hour {
		t.Errorf("unexpected ttl defaults: %+v", cfg.Auth)
	}
	if cfg.Auth.BcryptCost != 10 || cfg.Events.Workers != 4 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.IsProduction() {
		t.Error("development is not production")
	}
}

func TestLoadWith_Overrides(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":             testSecret,
		"ENV":                    "Production",
		"STORE_DRIVER":           "memory",
		"AUTH_LOCKOUT_THRESHOLD": "3",
		"AUTH_LOCKOUT_DURATION":  "15m",
		"MAIL_DRIVER":            "smtp",
		"MAIL_HOST":              "smtp.example.com",
		"MAIL_PORT":              "2525",
		"LOG_PRETTY":             "true",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !cfg.IsProduction() {
		t.Error("expected production")
	}
	if cfg.StoreDriver != StoreMemory || cfg.Auth.LockoutThreshold != 3 || cfg.Auth.LockoutDuration != 15*time.Minute {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Mail.Port != 2525 || !cfg.Log.Pretty {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestLoadWith_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "missing secret",
			env:  map[string]string{},
			want: "JWT_SECRET",
		},
		{
			name: "short secret",
			env:  map[string]string{"JWT_SECRET": "short"},
			want: "JWT_SECRET",
		},
		{
			name: "bcrypt cost too low",
			env:  map[string]string{"JWT_SECRET": testSecret, "AUTH_BCRYPT_COST": "4"},
			want: "AUTH_BCRYPT_COST",
		},
		{
			name: "unknown store",
			env:  map[string]string{"JWT_SECRET": testSecret, "STORE_DRIVER": "postgres"},
			want: "STORE_DRIVER",
		},
		{
			name: "smtp without host",
			env:  map[string]string{"JWT_SECRET": testSecret, "MAIL_DRIVER": "smtp"},
			want: "MAIL_HOST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWith(context.Background(), envconfig.MapLookuper(tt.env))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadWith_MalformedDuration(t *testing.T) {
	_, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":       testSecret,
		"AUTH_SESSION_TTL": "forever",
	}))
	if err == nil {
		t.Fatal("expected parse error")
	}
}
