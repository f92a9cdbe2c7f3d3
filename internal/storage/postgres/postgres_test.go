package postgres

import (
	"os"
	"testing"
)

func TestRecordRequiresRun(t *testing.T) {
	c := &Client{scenario: "test"}
	if err := c.Record(0, "dam", []string{"inflow"}, []float64{1}); err == nil {
		t.Error("expected error when no run is in progress")
	}
}

func TestGetEnvDefault(t *testing.T) {
	const key = "HYDRONET_TEST_PG_ENV"
	os.Unsetenv(key)
	if got := getEnv(key, "fallback"); got != "fallback" {
		t.Errorf("got %q, want fallback", got)
	}

	os.Setenv(key, "set")
	defer os.Unsetenv(key)
	if got := getEnv(key, "fallback"); got != "set" {
		t.Errorf("got %q, want set", got)
	}
}

func TestErrorLoggedFlag(t *testing.T) {
	c := &Client{scenario: "test"}
	if c.HasLoggedError() {
		t.Error("fresh client should not have logged an error")
	}
	c.MarkErrorLogged()
	if !c.HasLoggedError() {
		t.Error("expected the logged-error flag to stick")
	}
}
