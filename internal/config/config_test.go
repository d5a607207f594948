package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected http addr %s", cfg.HTTPAddr)
	}
	if cfg.LockTokenTTL != 24*time.Hour {
		t.Fatalf("unexpected lock token ttl %s", cfg.LockTokenTTL)
	}
	if cfg.LinkTokenTTL != time.Hour {
		t.Fatalf("unexpected link token ttl %s", cfg.LinkTokenTTL)
	}
}

func TestGetenvDurationSeconds(t *testing.T) {
	t.Setenv("EXPIRE_JOB_INTERVAL_SECONDS", "90")
	if got := getenvDuration("EXPIRE_JOB_INTERVAL", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
}

func TestLocation(t *testing.T) {
	cfg := Config{Timezone: "Asia/Seoul"}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("location error: %v", err)
	}
	if loc.String() != "Asia/Seoul" {
		t.Fatalf("unexpected location %s", loc)
	}
}
