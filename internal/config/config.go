// Package config resolves the process configuration once at startup.
//
// Sources are layered with fixed precedence: process environment, then the
// env file (~/.env by default), then the config file (JSON or YAML). The
// result is an immutable Snapshot; nothing re-resolves per call.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Recognized keys. The config file uses the same names as the environment.
const (
	KeyTopic      = "NTFY_TOPIC"
	KeyURL        = "NTFY_URL"
	KeyToken      = "NTFY_TOKEN"
	KeyUsername   = "NTFY_USERNAME"
	KeyPassword   = "NTFY_PASSWORD"
	KeyEnabled    = "NTFY_MCP_ENABLED"
	KeyTimeoutSec = "NTFY_MCP_TIMEOUT_SEC"
	KeyDryRun     = "NTFY_MCP_DRY_RUN"
	KeyLogLevel   = "NTFY_MCP_LOG_LEVEL"
	KeySequenceID = "NTFY_MCP_SEQUENCE_ID"
	KeyEnvPath    = "NTFY_MCP_ENV_PATH"
	KeyConfigPath = "NTFY_MCP_CONFIG_PATH"
)

const (
	DefaultURL     = "https://ntfy.sh"
	DefaultTimeout = 2 * time.Second
)

var (
	ErrMissingTopic = errors.New("config: " + KeyTopic + " is required")
	ErrAuthConflict = errors.New("config: " + KeyToken + " and " + KeyUsername + "/" + KeyPassword + " are mutually exclusive")
)

// Snapshot is the resolved process configuration.
// It is never mutated after Load; concurrent reads need no synchronization.
type Snapshot struct {
	URL      string
	Topic    string
	Token    string
	Username string
	Password string
	Timeout  time.Duration
	DryRun   bool
	LogLevel string

	// GateOverride pins the publish gate for the process lifetime when non-nil.
	GateOverride *bool

	// ForcedSequenceID replaces minted sequence tokens when set.
	ForcedSequenceID string
}

// Load resolves a Snapshot from the layered sources.
// A missing topic or conflicting auth settings are fatal.
func Load() (*Snapshot, error) {
	envFile := loadEnvFile(pathFromEnv(KeyEnvPath, defaultEnvPath()))
	cfgFile, err := loadConfigFile(pathFromEnv(KeyConfigPath, defaultConfigPath()))
	if err != nil {
		return nil, err
	}

	get := func(key string) string {
		// Precedence: process env > env file > config file.
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		if v, ok := envFile[key]; ok {
			return v
		}
		return cfgFile[key]
	}

	topic := strings.TrimSpace(get(KeyTopic))
	if topic == "" {
		return nil, ErrMissingTopic
	}

	s := &Snapshot{
		URL:              stringOr(get(KeyURL), DefaultURL),
		Topic:            topic,
		Token:            strings.TrimSpace(get(KeyToken)),
		Username:         strings.TrimSpace(get(KeyUsername)),
		Password:         get(KeyPassword),
		Timeout:          timeoutFrom(get(KeyTimeoutSec)),
		DryRun:           boolFrom(get(KeyDryRun), false),
		LogLevel:         strings.TrimSpace(get(KeyLogLevel)),
		ForcedSequenceID: strings.TrimSpace(get(KeySequenceID)),
	}
	if s.Token != "" && (s.Username != "" || s.Password != "") {
		return nil, ErrAuthConflict
	}
	if v := ParseBool(get(KeyEnabled)); v != nil {
		s.GateOverride = v
	}
	return s, nil
}

// Endpoint returns the publish URL for the given topic, falling back to the
// configured topic when empty. Scheme defaults to https.
func (s *Snapshot) Endpoint(topic string) string {
	base := strings.TrimRight(strings.TrimSpace(s.URL), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	t := strings.TrimSpace(topic)
	if t == "" {
		t = s.Topic
	}
	return base + "/" + strings.TrimLeft(t, "/")
}

// AuthMode reports which auth variant the snapshot carries: token, basic or none.
func (s *Snapshot) AuthMode() string {
	switch {
	case s.Token != "":
		return "token"
	case s.Username != "" && s.Password != "":
		return "basic"
	default:
		return "none"
	}
}

// WithTopic returns a copy of the snapshot targeting another topic.
// Used for per-call topic overrides; the original snapshot is untouched.
func (s *Snapshot) WithTopic(topic string) *Snapshot {
	cp := *s
	cp.Topic = topic
	return &cp
}

// ParseBool parses common truthy/falsy spellings; nil means unrecognized.
func ParseBool(raw string) *bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "t", "yes", "y", "on":
		v := true
		return &v
	case "0", "false", "f", "no", "n", "off":
		v := false
		return &v
	}
	return nil
}

// Redact masks all but the last few characters of a secret-ish value.
func Redact(v string) string {
	const keepEnd = 4
	if v == "" {
		return ""
	}
	if len(v) <= keepEnd {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", len(v)-keepEnd) + v[len(v)-keepEnd:]
}

func stringOr(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}

func boolFrom(raw string, def bool) bool {
	if v := ParseBool(raw); v != nil {
		return *v
	}
	return def
}

func timeoutFrom(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultTimeout
	}
	sec, err := strconv.ParseFloat(raw, 64)
	if err != nil || sec <= 0 {
		return DefaultTimeout
	}
	return time.Duration(sec * float64(time.Second))
}

func pathFromEnv(key, def string) string {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		return expandHome(raw)
	}
	return def
}

func defaultEnvPath() string {
	return filepath.Join(homeDir(), ".env")
}

func defaultConfigPath() string {
	return filepath.Join(homeDir(), ".tiny-ntfy-mcp", "config.json")
}

func homeDir() string {
	h, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return h
}

func expandHome(p string) string {
	if p == "~" {
		return homeDir()
	}
	if strings.HasPrefix(p, "~"+string(os.PathSeparator)) {
		return filepath.Join(homeDir(), p[2:])
	}
	return p
}
