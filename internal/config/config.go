package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for echobot.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Server    ServerConfig    `json:"server"`
	Poe       PoeConfig       `json:"poe"`
	Bots      BotsConfig      `json:"bots"`
	Providers ProvidersConfig `json:"providers"`
	Channels  ChannelsConfig  `json:"channels"`
	Journal   JournalConfig   `json:"journal"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel"`              // debug | info | warn | error
	LogFile               string `json:"logFile"`               // optional log file path
	EnvFile               string `json:"envFile"`               // optional .env file loaded before secrets are read
	MaxConcurrentMessages int    `json:"maxConcurrentMessages"` // Telegram updates handled at once
}

// ServerConfig configures the HTTP endpoint the chat platform posts to.
type ServerConfig struct {
	Host              string `json:"host"`
	Port              int    `json:"port"`
	EchoPath          string `json:"echoPath"`
	StegoEnabled      bool   `json:"stegoEnabled"`
	StegoPath         string `json:"stegoPath"`
	AccessKeyEnv      string `json:"accessKeyEnv"`      // env var holding the echo bot access key
	StegoAccessKeyEnv string `json:"stegoAccessKeyEnv"` // env var holding the stego bot access key
}

// PoeConfig points at the platform APIs used for chained bot calls and
// attachment uploads.
type PoeConfig struct {
	APIBase        string `json:"apiBase"`
	AttachmentURL  string `json:"attachmentUrl"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// BotsConfig names the bots this bot calls.
type BotsConfig struct {
	Default  string `json:"default"`  // passthrough target
	Rewriter string `json:"rewriter"` // first /enhance step
	Executor string `json:"executor"` // second /enhance step
	Mojo     string `json:"mojo"`
}

type ProvidersConfig struct {
	Stability StabilityConfig `json:"stability"`
	Fireworks FireworksConfig `json:"fireworks"`
}

type StabilityConfig struct {
	APIBase        string `json:"apiBase"`
	APIKeyEnv      string `json:"apiKeyEnv"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type FireworksConfig struct {
	APIBase        string `json:"apiBase"`
	Model          string `json:"model"`
	APIKeyEnv      string `json:"apiKeyEnv"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled      bool           `json:"enabled"`
	Token        string         `json:"token"`
	AllowFrom    FlexStringList `json:"allowFrom"`
	Bot          string         `json:"bot"`          // echo | stego
	AccessKeyEnv string         `json:"accessKeyEnv"` // platform key used for chained calls
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// JournalConfig configures the SQLite request journal.
type JournalConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

// MetricsConfig configures the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.echobot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".echobot"
	}
	return filepath.Join(home, ".echobot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	if isYAML(path) {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.General.EnvFile = ExpandPath(cfg.General.EnvFile)
	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// yamlToJSON re-encodes a YAML document as JSON so a single set of struct
// tags serves both formats.
func yamlToJSON(data []byte) ([]byte, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep the reference visible so Validate can flag it
		}
		return val
	})
}

// Save writes cfg to path, as YAML when the extension asks for it.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	if isYAML(path) {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
		if data, err = yaml.Marshal(m); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.EchoPath, "/") {
		errs = append(errs, "server.echoPath must start with /")
	}
	if cfg.Server.AccessKeyEnv == "" {
		errs = append(errs, "server.accessKeyEnv is required")
	}
	if cfg.Server.StegoEnabled {
		if !strings.HasPrefix(cfg.Server.StegoPath, "/") {
			errs = append(errs, "server.stegoPath must start with /")
		}
		if cfg.Server.StegoPath == cfg.Server.EchoPath {
			errs = append(errs, "server.stegoPath must differ from server.echoPath")
		}
		if cfg.Server.StegoAccessKeyEnv == "" {
			errs = append(errs, "server.stegoAccessKeyEnv is required when stego is enabled")
		}
	}

	if cfg.Poe.APIBase == "" {
		errs = append(errs, "poe.apiBase is required")
	}
	if cfg.Poe.AttachmentURL == "" {
		errs = append(errs, "poe.attachmentUrl is required")
	}
	if cfg.Poe.TimeoutSeconds < 1 {
		errs = append(errs, "poe.timeoutSeconds must be >= 1")
	}

	for name, bot := range map[string]string{
		"bots.default":  cfg.Bots.Default,
		"bots.rewriter": cfg.Bots.Rewriter,
		"bots.executor": cfg.Bots.Executor,
		"bots.mojo":     cfg.Bots.Mojo,
	} {
		if strings.TrimSpace(bot) == "" {
			errs = append(errs, name+" must not be empty")
		}
	}

	if cfg.Providers.Stability.APIBase == "" {
		errs = append(errs, "providers.stability.apiBase is required")
	}
	if cfg.Providers.Stability.TimeoutSeconds < 1 {
		errs = append(errs, "providers.stability.timeoutSeconds must be >= 1")
	}
	if cfg.Providers.Fireworks.APIBase == "" || cfg.Providers.Fireworks.Model == "" {
		errs = append(errs, "providers.fireworks.apiBase and providers.fireworks.model are required")
	}
	if cfg.Providers.Fireworks.TimeoutSeconds < 1 {
		errs = append(errs, "providers.fireworks.timeoutSeconds must be >= 1")
	}

	tg := cfg.Channels.Telegram
	if tg.Enabled {
		if tg.Token == "" || envVarPattern.MatchString(tg.Token) {
			errs = append(errs, "channels.telegram.token is required when telegram is enabled")
		}
		switch tg.Bot {
		case "echo", "stego":
		default:
			errs = append(errs, "channels.telegram.bot must be one of: echo, stego")
		}
	}

	if cfg.Journal.Enabled && cfg.Journal.DBPath == "" {
		errs = append(errs, "journal.dbPath is required when the journal is enabled")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
