// Package config provides the configuration schema and loader for the
// VoxHire interview service.
package config

import (
	"github.com/voxhire/voxhire/pkg/realtime"
)

// LogLevel controls log verbosity for the VoxHire server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Transport selects how the realtime session reaches the provider.
type Transport string

const (
	// TransportWebRTC negotiates a WebRTC media connection with a control
	// data channel.
	TransportWebRTC Transport = "webrtc"

	// TransportWebSocket streams audio in-band over a WebSocket, used as the
	// fallback when WebRTC is unavailable.
	TransportWebSocket Transport = "websocket"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportWebRTC || t == TransportWebSocket
}

// Config is the root configuration structure for VoxHire.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Store      StoreConfig      `yaml:"store"`
	Interviews InterviewsConfig `yaml:"interviews"`
}

// ServerConfig holds network and logging settings for the VoxHire server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins lists the browser origins permitted by CORS. Empty
	// allows any origin, which is only sensible in development.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// BackendConfig locates the external recruiting backend that mints ephemeral
// realtime credentials and holds the question sets.
type BackendConfig struct {
	// BaseURL is the backend's root URL.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates this service to the backend. Overridable via the
	// VOXHIRE_BACKEND_API_KEY environment variable so it can stay out of the
	// config file.
	APIKey string `yaml:"api_key"`
}

// RealtimeConfig selects the realtime provider endpoint and transport.
type RealtimeConfig struct {
	// Transport chooses webrtc or the websocket fallback.
	Transport Transport `yaml:"transport"`

	// ProviderURL overrides the provider's signaling/WebSocket endpoint.
	// Leave empty to use the built-in default.
	ProviderURL string `yaml:"provider_url"`

	// Model selects the realtime model (e.g., "gpt-realtime").
	Model string `yaml:"model"`

	// TranscriptionModel selects the input-transcription model
	// (e.g., "whisper-1").
	TranscriptionModel string `yaml:"transcription_model"`

	// Language hints the transcription language (BCP-47, e.g. "en").
	Language string `yaml:"language"`

	// AudioSource is the path of the PCM16 capture stream (a FIFO written by
	// the capture front-end). Empty reads from stdin.
	AudioSource string `yaml:"audio_source"`
}

// StoreConfig configures artifact persistence.
type StoreConfig struct {
	// PostgresDSN is the connection string for the script store. Empty
	// selects the in-memory store (development only). Overridable via the
	// VOXHIRE_POSTGRES_DSN environment variable.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// InterviewsConfig holds the per-type interview profiles.
type InterviewsConfig struct {
	PreScreen InterviewProfile `yaml:"pre_screen"`
	Technical InterviewProfile `yaml:"technical"`

	// Vocabulary lists domain terms (candidate name, company, product names)
	// that the transcript corrector may substitute for phonetically similar
	// misrecognitions.
	Vocabulary []string `yaml:"vocabulary"`
}

// InterviewProfile tunes one interview type. Turn-detection sensitivity
// directly affects when the agent considers the candidate finished, and with
// that the question/answer pairing, so it is deliberately configurable.
type InterviewProfile struct {
	// Voice is the agent voice/persona identifier.
	Voice string `yaml:"voice"`

	// BudgetSeconds bounds the interview; zero means untimed.
	BudgetSeconds int `yaml:"budget_seconds"`

	// TurnDetection holds the voice-activity threshold, pre-speech padding
	// and post-speech silence duration.
	TurnDetection realtime.TurnDetection `yaml:"turn_detection"`
}
