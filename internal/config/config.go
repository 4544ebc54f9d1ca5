package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"

	CacheNone   = ""
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type BackendConfig struct {
	Kind                  string `toml:"kind"`
	Endpoint              string `toml:"endpoint"`
	Model                 string `toml:"model"`
	APIKey                string `toml:"api_key"`
	KeepAlive             string `toml:"keep_alive"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
	ReadTimeoutSeconds    int    `toml:"read_timeout_seconds"`
}

func (c BackendConfig) KeepAliveDuration() time.Duration {
	d, err := time.ParseDuration(c.KeepAlive)
	if err != nil {
		return 0
	}
	return d
}

type KnowledgeConfig struct {
	Enabled               bool   `toml:"enabled"`
	Endpoint              string `toml:"endpoint"`
	Limit                 int    `toml:"limit"`
	Online                bool   `toml:"online"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
	ReadTimeoutSeconds    int    `toml:"read_timeout_seconds"`
	Cache                 string `toml:"cache"`
	RedisAddr             string `toml:"redis_addr"`
	CacheTTLSeconds       int    `toml:"cache_ttl_seconds"`
}

type GuardConfig struct {
	Enabled           bool     `toml:"enabled"`
	RedactPII         bool     `toml:"redact_pii"`
	InjectionPatterns []string `toml:"injection_patterns,omitempty"`
	PIIPatterns       []string `toml:"pii_patterns,omitempty"`
	BlocklistPatterns []string `toml:"blocklist_patterns,omitempty"`
}

type BudgetConfig struct {
	CharsPerToken      float64 `toml:"chars_per_token"`
	RequestOverhead    int     `toml:"request_overhead"`
	MessageOverhead    int     `toml:"message_overhead"`
	FixedHeadroom      int     `toml:"fixed_headroom"`
	RatioHeadroom      float64 `toml:"ratio_headroom"`
	TailKeep           int     `toml:"tail_keep"`
	NearLimitThreshold float64 `toml:"near_limit_threshold"`
}

type StreamConfig struct {
	ArtifactMarkers []string `toml:"artifact_markers,omitempty"`
	NoiseTokens     []string `toml:"noise_tokens,omitempty"`
}

type AuditConfig struct {
	Enabled   bool   `toml:"enabled"`
	Directory string `toml:"directory"`
}

type DebugConfig struct {
	LogRequests   bool   `toml:"log_requests"`
	LogResponses  bool   `toml:"log_responses"`
	LogDirectory  string `toml:"log_directory"`
	ValidateRoles bool   `toml:"validate_roles"`
}

type Config struct {
	DataDir        string          `toml:"data_dir"`
	PersonasDir    string          `toml:"personas_dir"`
	DefaultPersona string          `toml:"default_persona"`
	HTTPBind       string          `toml:"http_bind"`
	GRPCBind       string          `toml:"grpc_bind"`
	Backend        BackendConfig   `toml:"backend"`
	Knowledge      KnowledgeConfig `toml:"knowledge"`
	Guard          GuardConfig     `toml:"guard"`
	Budget         BudgetConfig    `toml:"budget"`
	Stream         StreamConfig    `toml:"stream"`
	Audit          AuditConfig     `toml:"audit"`
	Debug          DebugConfig     `toml:"debug"`
}

func Default() Config {
	dataDir := defaultDataDir()
	return Config{
		DataDir:        dataDir,
		PersonasDir:    filepath.Join(dataDir, "personas"),
		DefaultPersona: "sage",
		HTTPBind:       "127.0.0.1:8000",
		GRPCBind:       "127.0.0.1:50051",
		Backend: BackendConfig{
			Kind:                  BackendOllama,
			Endpoint:              "http://127.0.0.1:11434",
			Model:                 "llama3.1:8b",
			KeepAlive:             "5m",
			ConnectTimeoutSeconds: 5,
			ReadTimeoutSeconds:    300,
		},
		Knowledge: KnowledgeConfig{
			Enabled:               false,
			Endpoint:              "http://127.0.0.1:8010/snippet",
			Limit:                 600,
			Online:                true,
			ConnectTimeoutSeconds: 3,
			ReadTimeoutSeconds:    10,
			Cache:                 CacheMemory,
			RedisAddr:             "127.0.0.1:6379",
			CacheTTLSeconds:       3600,
		},
		Guard: GuardConfig{
			Enabled:   true,
			RedactPII: true,
		},
		Budget: BudgetConfig{
			CharsPerToken:      3.25,
			RequestOverhead:    3,
			MessageOverhead:    4,
			FixedHeadroom:      64,
			RatioHeadroom:      0.2,
			TailKeep:           2,
			NearLimitThreshold: 0.75,
		},
		Audit: AuditConfig{
			Enabled:   true,
			Directory: filepath.Join(dataDir, "audit"),
		},
		Debug: DebugConfig{
			LogDirectory:  filepath.Join(dataDir, "debug"),
			ValidateRoles: true,
		},
	}
}

func LoadOrCreate(path string) (Config, error) {
	config := Default()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return config, fmt.Errorf("create config dir: %w", err)
			}

			configData, err := toml.Marshal(config)
			if err != nil {
				return config, fmt.Errorf("marshal default config: %w", err)
			}

			if err := os.WriteFile(path, configData, 0o644); err != nil {
				return config, fmt.Errorf("write default config: %w", err)
			}

			return config, nil
		}

		return config, err
	}

	configData, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(configData, &config); err != nil {
		return config, fmt.Errorf("parse config %s: %w", path, err)
	}

	config.DataDir = expandPath(config.DataDir)
	config.PersonasDir = expandPath(config.PersonasDir)
	config.Audit.Directory = expandPath(config.Audit.Directory)
	config.Debug.LogDirectory = expandPath(config.Debug.LogDirectory)
	config.Backend.Endpoint = strings.TrimRight(strings.TrimSpace(config.Backend.Endpoint), "/")
	config.Knowledge.Endpoint = strings.TrimRight(strings.TrimSpace(config.Knowledge.Endpoint), "/")

	if config.PersonasDir == "" {
		config.PersonasDir = filepath.Join(config.DataDir, "personas")
	}

	if err := config.Validate(); err != nil {
		return config, err
	}

	return config, nil
}

// Validate reports operator errors that would otherwise surface mid-conversation.
func (c Config) Validate() error {
	if c.Backend.Endpoint == "" {
		return errors.New("backend.endpoint is required")
	}

	switch c.Backend.Kind {
	case BackendOllama, BackendOpenAI:
	default:
		return fmt.Errorf("backend.kind must be %q or %q, got %q", BackendOllama, BackendOpenAI, c.Backend.Kind)
	}

	if c.Knowledge.Enabled && c.Knowledge.Endpoint == "" {
		return errors.New("knowledge.endpoint is required when knowledge is enabled")
	}

	switch c.Knowledge.Cache {
	case CacheNone, CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("knowledge.cache must be empty, %q or %q, got %q", CacheMemory, CacheRedis, c.Knowledge.Cache)
	}

	if c.Budget.CharsPerToken <= 0 {
		return &OptionRangeError{Param: "budget.chars_per_token", Value: c.Budget.CharsPerToken, Min: 0.1, Max: 100}
	}

	if c.Budget.RatioHeadroom < 0 || c.Budget.RatioHeadroom >= 1 {
		return &OptionRangeError{Param: "budget.ratio_headroom", Value: c.Budget.RatioHeadroom, Min: 0, Max: 1}
	}

	if c.Budget.NearLimitThreshold <= 0 || c.Budget.NearLimitThreshold > 1 {
		return &OptionRangeError{Param: "budget.near_limit_threshold", Value: c.Budget.NearLimitThreshold, Min: 0, Max: 1}
	}

	if c.Budget.TailKeep < 0 {
		return fmt.Errorf("budget.tail_keep must be non-negative, got %d", c.Budget.TailKeep)
	}

	return nil
}

type OptionRangeError struct {
	Param string
	Value float64
	Min   float64
	Max   float64
}

func (e *OptionRangeError) Error() string {
	return fmt.Sprintf("%s value %.2f is out of range [%.1f, %.1f]", e.Param, e.Value, e.Min, e.Max)
}

func defaultDataDir() string {
	homeDir, _ := os.UserHomeDir()

	if homeDir == "" {
		return ".chorus"
	}

	return filepath.Join(homeDir, ".chorus")
}

func expandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()

		if homeDir != "" {
			trimmed := strings.TrimPrefix(path, "~")
			trimmed = strings.TrimPrefix(trimmed, string(os.PathSeparator))

			return filepath.Join(homeDir, trimmed)
		}
	}

	return path
}
