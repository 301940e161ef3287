package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Transports the assistant can listen on.
const (
	TransportDiscord  = "discord"
	TransportTelegram = "telegram"
	TransportCLI      = "cli"
)

// ErrMissing wraps every missing required value.
var ErrMissing = errors.New("missing required configuration")

// Config is the root configuration. Secrets normally come from the
// environment; everything else may also be set in an optional YAML file.
type Config struct {
	Transport string         `yaml:"transport"`
	OpenAI    OpenAIConfig   `yaml:"openai"`
	Discord   DiscordConfig  `yaml:"discord"`
	Telegram  TelegramConfig `yaml:"telegram"`
	// AllowedUsers is the comma-separated allow-list of author identifiers.
	AllowedUsers string        `yaml:"allowedUsers"`
	Policy       PolicyConfig  `yaml:"policy"`
	Log          LogConfig     `yaml:"log"`
	Metrics      MetricsConfig `yaml:"metrics"`
}

type OpenAIConfig struct {
	Token   string        `yaml:"token"`
	BaseURL string        `yaml:"baseUrl,omitempty"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"` // bound on one completion call
}

type DiscordConfig struct {
	Token string `yaml:"token"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
}

// PolicyConfig selects the message-gating variant.
type PolicyConfig struct {
	DirectOnly        bool `yaml:"directOnly"`
	StopAfterGuidance bool `yaml:"stopAfterGuidance"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"` // text | json
	LokiURL string `yaml:"lokiUrl,omitempty"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"` // empty = no /metrics listener
}

// Load reads the effective configuration with Read and validates it.
func Load(path string, dotenvFiles ...string) (*Config, error) {
	cfg, err := Read(path, dotenvFiles...)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read builds the effective configuration without validating it: defaults,
// then the YAML file at path (skipped when empty), then the environment.
// Dotenv files are merged into the environment first without overriding
// it; missing ones are ignored.
func Read(path string, dotenvFiles ...string) (*Config, error) {
	cfg := Defaults()

	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("cannot load env file %s: %w", f, err)
		}
	}

	if path != "" {
		path = ExpandPath(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
		data = []byte(ExpandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overlays environment values on cfg. lookup is usually os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	var errs []error
	boolean := func(dst *bool, key string) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}

	str(&cfg.Transport, "SNOTRA_TRANSPORT")
	str(&cfg.OpenAI.Token, "OPENAI_TOKEN")
	str(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	str(&cfg.OpenAI.Model, "OPENAI_MODEL")
	str(&cfg.Discord.Token, "DISCORD_TOKEN")
	str(&cfg.Telegram.Token, "TELEGRAM_TOKEN")
	str(&cfg.AllowedUsers, "DISCORD_ALLOWED_USERNAMES", "ALLOWED_USERNAMES")
	str(&cfg.Log.Level, "LOG_LEVEL")
	str(&cfg.Log.Format, "LOG_FORMAT")
	str(&cfg.Log.LokiURL, "LOKI_URL")
	str(&cfg.Metrics.Addr, "METRICS_ADDR")
	boolean(&cfg.Policy.DirectOnly, "SNOTRA_DIRECT_ONLY")
	boolean(&cfg.Policy.StopAfterGuidance, "SNOTRA_STOP_AFTER_GUIDANCE")

	if v, ok := lookup("LLM_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("LLM_TIMEOUT: %w", err))
		} else {
			cfg.OpenAI.Timeout = d
		}
	}

	return errors.Join(errs...)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// ${VAR} without default is left as is.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if val, ok := os.LookupEnv(groups[1]); ok && val != "" {
			return val
		}
		if hasDefault {
			return groups[2]
		}
		return match
	})
}

// Validate reports every missing or invalid value at once. Each missing
// required value wraps ErrMissing.
func Validate(cfg *Config) error {
	var errs []error
	missing := func(key, hint string) {
		errs = append(errs, fmt.Errorf("%w: %s env var%s", ErrMissing, key, hint))
	}

	if err := ValidateLLM(cfg); err != nil {
		errs = append(errs, err)
	}
	switch cfg.Transport {
	case TransportDiscord:
		if cfg.Discord.Token == "" {
			missing("DISCORD_TOKEN", "")
		}
	case TransportTelegram:
		if cfg.Telegram.Token == "" {
			missing("TELEGRAM_TOKEN", "")
		}
	case TransportCLI:
	default:
		errs = append(errs, fmt.Errorf("transport must be one of: discord, telegram, cli (got %q)", cfg.Transport))
	}
	if cfg.AllowedUsers == "" {
		missing("DISCORD_ALLOWED_USERNAMES", " (comma-separated)")
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json (got %q)", cfg.Log.Format))
	}

	return errors.Join(errs...)
}

// ValidateLLM checks only what a language model call needs. One-shot
// commands that never open a chat transport use it instead of Validate.
func ValidateLLM(cfg *Config) error {
	var errs []error
	if cfg.OpenAI.Token == "" {
		errs = append(errs, fmt.Errorf("%w: OPENAI_TOKEN env var", ErrMissing))
	}
	if cfg.OpenAI.Timeout <= 0 {
		errs = append(errs, errors.New("openai.timeout must be positive"))
	}
	return errors.Join(errs...)
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
