package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, key := range []string{"CONFIG_PATH", "COLLECTOR_URL", "RPC_TIMEOUT_SEC", "FIREWORKS_BALANCE_TTL_SEC", "AUTH_REQUIRED_PHRASES"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.ConfigPath != DefaultConfigPath {
		t.Errorf("ConfigPath = %q", cfg.ConfigPath)
	}
	if cfg.RPCTimeout != 10*time.Second {
		t.Errorf("RPCTimeout = %v", cfg.RPCTimeout)
	}
	if cfg.FireworksBalanceTTL != 300*time.Second {
		t.Errorf("FireworksBalanceTTL = %v", cfg.FireworksBalanceTTL)
	}
	if cfg.AuthPhrases != nil {
		t.Errorf("AuthPhrases = %v, want nil", cfg.AuthPhrases)
	}
	if got := cfg.CollectorBaseURL(); got != "http://collector:8080" {
		t.Errorf("CollectorBaseURL() = %q", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{value: "", want: time.Minute},
		{value: "15", want: 15 * time.Second},
		{value: "2.5", want: 2500 * time.Millisecond},
		{value: "0", want: 0},
		{value: "-1", want: -time.Second},
		{value: "90s", want: 90 * time.Second},
		{value: "soon", want: time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_DURATION_SEC", tt.value)
			if got := getEnvDuration("TEST_DURATION_SEC", time.Minute); got != tt.want {
				t.Fatalf("getEnvDuration(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestCollectorBaseURL(t *testing.T) {
	tests := map[string]string{
		"http://collector:8080/ingest":  "http://collector:8080",
		"http://collector:8080/ingest/": "http://collector:8080",
		"http://collector:8080/":        "http://collector:8080",
		"https://status.example/api":    "https://status.example/api",
	}
	for in, want := range tests {
		cfg := &Config{CollectorURL: in}
		if got := cfg.CollectorBaseURL(); got != want {
			t.Errorf("CollectorBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", " sign in again, ,unauthorized ")
	got := getEnvList("TEST_LIST")
	if len(got) != 2 || got[0] != "sign in again" || got[1] != "unauthorized" {
		t.Fatalf("getEnvList() = %#v", got)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
