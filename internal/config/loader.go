package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/voxhire/voxhire/pkg/realtime"
)

// Defaults applied by [Load] before validation. The turn-detection values
// come from tuning the two interview flavours: the pre-screen favours a
// responsive conversation, the technical interview tolerates longer thinking
// pauses before the agent moves on.
const (
	DefaultListenAddr = ":8080"

	defaultTechnicalBudgetSeconds = 1800
)

func defaultPreScreenProfile() InterviewProfile {
	return InterviewProfile{
		Voice: "ash",
		TurnDetection: realtime.TurnDetection{
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 800,
		},
	}
}

func defaultTechnicalProfile() InterviewProfile {
	return InterviewProfile{
		Voice:         "ash",
		BudgetSeconds: defaultTechnicalBudgetSeconds,
		TurnDetection: realtime.TurnDetection{
			Threshold:         0.7,
			PrefixPaddingMs:   500,
			SilenceDurationMs: 1200,
		},
	}
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// environment overrides, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Realtime.Transport == "" {
		cfg.Realtime.Transport = TransportWebRTC
	}
	if cfg.Realtime.TranscriptionModel == "" {
		cfg.Realtime.TranscriptionModel = "whisper-1"
	}

	if isZeroProfile(cfg.Interviews.PreScreen) {
		cfg.Interviews.PreScreen = defaultPreScreenProfile()
	}
	if isZeroProfile(cfg.Interviews.Technical) {
		cfg.Interviews.Technical = defaultTechnicalProfile()
	}
}

func isZeroProfile(p InterviewProfile) bool {
	return p == InterviewProfile{}
}

// applyEnvOverrides lets secrets stay out of the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOXHIRE_BACKEND_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("VOXHIRE_POSTGRES_DSN"); v != "" {
		cfg.Store.PostgresDSN = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url is required"))
	}

	if !cfg.Realtime.Transport.IsValid() {
		errs = append(errs, fmt.Errorf("realtime.transport %q is invalid; valid values: webrtc, websocket", cfg.Realtime.Transport))
	}

	validateProfile(&errs, "pre_screen", cfg.Interviews.PreScreen)
	validateProfile(&errs, "technical", cfg.Interviews.Technical)

	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; completed scripts will only be held in memory")
	}

	return errors.Join(errs...)
}

func validateProfile(errs *[]error, name string, p InterviewProfile) {
	td := p.TurnDetection
	if td.Threshold < 0 || td.Threshold > 1 {
		*errs = append(*errs, fmt.Errorf("interviews.%s.turn_detection.threshold %v is outside [0, 1]", name, td.Threshold))
	}
	if td.PrefixPaddingMs < 0 {
		*errs = append(*errs, fmt.Errorf("interviews.%s.turn_detection.prefix_padding_ms must not be negative", name))
	}
	if td.SilenceDurationMs < 0 {
		*errs = append(*errs, fmt.Errorf("interviews.%s.turn_detection.silence_duration_ms must not be negative", name))
	}
	if p.BudgetSeconds < 0 {
		*errs = append(*errs, fmt.Errorf("interviews.%s.budget_seconds must not be negative", name))
	}
	if p.BudgetSeconds > 0 && p.BudgetSeconds < 60 {
		slog.Warn("interview budget is suspiciously short",
			"interview_type", name,
			"budget_seconds", p.BudgetSeconds)
	}
}
