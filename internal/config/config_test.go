package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate gives the test a clean home and clears every recognized key so
// the developer's real environment can't leak in.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		KeyTopic, KeyURL, KeyToken, KeyUsername, KeyPassword,
		KeyEnabled, KeyTimeoutSec, KeyDryRun, KeyLogLevel,
		KeySequenceID, KeyEnvPath, KeyConfigPath,
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return home
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	t.Setenv(KeyTopic, "alerts")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Topic != "alerts" {
		t.Fatalf("Topic = %q", s.Topic)
	}
	if s.URL != DefaultURL {
		t.Fatalf("URL = %q, want %q", s.URL, DefaultURL)
	}
	if s.Timeout != DefaultTimeout {
		t.Fatalf("Timeout = %v, want %v", s.Timeout, DefaultTimeout)
	}
	if s.DryRun || s.GateOverride != nil || s.ForcedSequenceID != "" {
		t.Fatalf("unexpected non-defaults: %+v", s)
	}
	if s.AuthMode() != "none" {
		t.Fatalf("AuthMode = %q, want none", s.AuthMode())
	}
}

func TestLoadMissingTopic(t *testing.T) {
	isolate(t)
	_, err := Load()
	if !errors.Is(err, ErrMissingTopic) {
		t.Fatalf("err = %v, want ErrMissingTopic", err)
	}
}

func TestLoadAuthConflict(t *testing.T) {
	isolate(t)
	t.Setenv(KeyTopic, "alerts")
	t.Setenv(KeyToken, "tk_secret")
	t.Setenv(KeyUsername, "me")
	t.Setenv(KeyPassword, "pw")

	_, err := Load()
	if !errors.Is(err, ErrAuthConflict) {
		t.Fatalf("err = %v, want ErrAuthConflict", err)
	}
}

func TestLayeredPrecedence(t *testing.T) {
	home := isolate(t)

	// Config file: lowest priority.
	cfgDir := filepath.Join(home, ".tiny-ntfy-mcp")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	cfgJSON := `{"NTFY_TOPIC":"from-config","NTFY_URL":"https://config.example","NTFY_TOKEN":"from-config"}`
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte(cfgJSON), 0o600); err != nil {
		t.Fatal(err)
	}

	// Env file: middle priority.
	envFile := "# comment\nexport NTFY_URL='https://envfile.example'\nNTFY_TOKEN=\"from-envfile\"\n"
	if err := os.WriteFile(filepath.Join(home, ".env"), []byte(envFile), 0o600); err != nil {
		t.Fatal(err)
	}

	// Process env: highest priority.
	t.Setenv(KeyToken, "from-env")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Topic != "from-config" {
		t.Fatalf("Topic = %q, want from-config", s.Topic)
	}
	if s.URL != "https://envfile.example" {
		t.Fatalf("URL = %q, want env file value", s.URL)
	}
	if s.Token != "from-env" {
		t.Fatalf("Token = %q, want process env value", s.Token)
	}
}

func TestYAMLConfigFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "cfg.yaml")
	yml := "NTFY_TOPIC: builds\nNTFY_MCP_DRY_RUN: true\nNTFY_MCP_TIMEOUT_SEC: 0.5\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(KeyConfigPath, path)

	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Topic != "builds" {
		t.Fatalf("Topic = %q", s.Topic)
	}
	if !s.DryRun {
		t.Fatal("DryRun should be true")
	}
	if s.Timeout != 500*time.Millisecond {
		t.Fatalf("Timeout = %v, want 500ms", s.Timeout)
	}
}

func TestGateOverrideParsing(t *testing.T) {
	tests := []struct {
		raw  string
		want *bool
	}{
		{raw: "1", want: boolPtr(true)},
		{raw: "true", want: boolPtr(true)},
		{raw: "on", want: boolPtr(true)},
		{raw: "0", want: boolPtr(false)},
		{raw: "no", want: boolPtr(false)},
		{raw: "maybe", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			isolate(t)
			t.Setenv(KeyTopic, "alerts")
			t.Setenv(KeyEnabled, tt.raw)
			s, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			switch {
			case tt.want == nil:
				if s.GateOverride != nil {
					t.Fatalf("GateOverride = %v, want nil", *s.GateOverride)
				}
			case s.GateOverride == nil:
				t.Fatal("GateOverride is nil")
			case *s.GateOverride != *tt.want:
				t.Fatalf("GateOverride = %v, want %v", *s.GateOverride, *tt.want)
			}
		})
	}
}

func TestEndpoint(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		url   string
		topic string
		arg   string
		want  string
	}{
		{name: "plain", url: "https://ntfy.sh", topic: "t", want: "https://ntfy.sh/t"},
		{name: "trailing slash", url: "https://ntfy.example/", topic: "t", want: "https://ntfy.example/t"},
		{name: "scheme defaulted", url: "ntfy.example", topic: "t", want: "https://ntfy.example/t"},
		{name: "topic slash trimmed", url: "https://ntfy.sh", topic: "/t", want: "https://ntfy.sh/t"},
		{name: "override topic", url: "https://ntfy.sh", topic: "t", arg: "other", want: "https://ntfy.sh/other"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := &Snapshot{URL: tt.url, Topic: tt.topic}
			if got := s.Endpoint(tt.arg); got != tt.want {
				t.Fatalf("Endpoint = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedact(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{in: "", want: ""},
		{in: "abc", want: "***"},
		{in: "supersecret", want: "*******cret"},
	}
	for _, tt := range tests {
		if got := Redact(tt.in); got != tt.want {
			t.Fatalf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func boolPtr(v bool) *bool { return &v }
