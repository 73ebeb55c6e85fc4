package main

import (
	"strings"
	"testing"
	"time"
)

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/clinic")
	for _, k := range []string{"SWEEP_AT", "SWEEP_TIMEZONE", "PORT", "GRPC_PORT", "TX_TIMEOUT", "JWT_SECRET", "JWKS_URL"} {
		t.Setenv(k, "")
	}
	s, err := loadSettings()
	if err != nil {
		t.Fatalf("loadSettings failed: %v", err)
	}
	if s.port != "8083" || s.grpcPort != "9093" || s.sweepAt != 5 || s.sweepZone != time.UTC || s.txTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if err := s.requireAuth(); err == nil {
		t.Fatal("serve needs a JWT secret or JWKS url")
	}
}

func TestLoadSettingsReportsEveryProblem(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SWEEP_AT", "25:00")
	t.Setenv("SWEEP_TIMEZONE", "Nowhere/Special")
	t.Setenv("TX_TIMEOUT", "-1s")
	_, err := loadSettings()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"DATABASE_URL", "SWEEP_AT", "SWEEP_TIMEZONE", "TX_TIMEOUT"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}
