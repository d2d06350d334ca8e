package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/genai"
)

// Config is the daemon configuration after defaulting and validation.
type Config struct {
	Servers               []domain.ServerConfig
	GenAI                 genai.Config
	Hooks                 HooksConfig
	Store                 StoreConfig
	Observability         ObservabilityConfig
	HealthIntervalSeconds int
}

type HooksConfig struct {
	// Path of the hook rules file. Empty disables hooks.
	Path  string
	Watch bool
}

type StoreConfig struct {
	Path string
}

type ObservabilityConfig struct {
	ListenAddress string
}

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("config")}
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("healthIntervalSeconds", domain.DefaultHealthIntervalSeconds)
	v.SetDefault("observability.listenAddress", domain.DefaultStatusListenAddress)
	v.SetDefault("store.path", domain.DefaultStorePath)
	v.SetDefault("hooks.watch", true)
	v.SetDefault("genai.provider", "openai")
	return v
}

type rawConfig struct {
	Servers               []rawServerConfig `mapstructure:"servers"`
	GenAI                 genai.Config      `mapstructure:"genai"`
	Hooks                 rawHooksConfig    `mapstructure:"hooks"`
	Store                 rawStoreConfig    `mapstructure:"store"`
	Observability         rawObservability  `mapstructure:"observability"`
	HealthIntervalSeconds int               `mapstructure:"healthIntervalSeconds"`
}

type rawServerConfig struct {
	Name           string            `mapstructure:"name"`
	Cmd            []string          `mapstructure:"cmd"`
	Env            map[string]string `mapstructure:"env"`
	Cwd            string            `mapstructure:"cwd"`
	TimeoutSeconds int               `mapstructure:"timeoutSeconds"`
	MaxRetries     int               `mapstructure:"maxRetries"`
	HealthMethod   string            `mapstructure:"healthMethod"`
	Disabled       bool              `mapstructure:"disabled"`
}

type rawHooksConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

type rawStoreConfig struct {
	Path string `mapstructure:"path"`
}

type rawObservability struct {
	ListenAddress string `mapstructure:"listenAddress"`
}

// Load reads, env-expands, decodes and validates the config file. All
// validation problems are reported together.
func (l *Loader) Load(ctx context.Context, path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	expanded, missing, err := expandEnv(data)
	if err != nil {
		return Config{}, err
	}
	if len(missing) > 0 {
		l.logger.Warn("missing environment variables in config",
			zap.String("path", path),
			zap.Strings("missing", missing),
		)
	}

	v := newConfigViper()
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg, validationErrors := normalize(raw)
	if len(validationErrors) > 0 {
		return Config{}, errors.New(strings.Join(validationErrors, "; "))
	}
	return cfg, ctx.Err()
}

func normalize(raw rawConfig) (Config, []string) {
	var errs []string
	cfg := Config{
		GenAI: raw.GenAI,
		Hooks: HooksConfig{
			Path:  strings.TrimSpace(raw.Hooks.Path),
			Watch: raw.Hooks.Watch,
		},
		Store: StoreConfig{Path: strings.TrimSpace(raw.Store.Path)},
		Observability: ObservabilityConfig{
			ListenAddress: strings.TrimSpace(raw.Observability.ListenAddress),
		},
		HealthIntervalSeconds: raw.HealthIntervalSeconds,
	}

	if cfg.HealthIntervalSeconds <= 0 {
		errs = append(errs, "healthIntervalSeconds must be positive")
	}
	if cfg.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}
	if cfg.Observability.ListenAddress == "" {
		errs = append(errs, "observability.listenAddress is required")
	}
	switch cfg.GenAI.Provider {
	case "", "openai":
	default:
		errs = append(errs, fmt.Sprintf("genai.provider %q is not supported", cfg.GenAI.Provider))
	}

	nameSeen := make(map[string]struct{})
	for i, raw := range raw.Servers {
		server := normalizeServer(raw)
		if server.Name == "" {
			errs = append(errs, fmt.Sprintf("servers[%d]: name is required", i))
			continue
		}
		if _, exists := nameSeen[server.Name]; exists {
			errs = append(errs, fmt.Sprintf("servers[%d]: duplicate name %q", i, server.Name))
			continue
		}
		nameSeen[server.Name] = struct{}{}
		if !server.Disabled && len(server.Cmd) == 0 {
			errs = append(errs, fmt.Sprintf("servers[%d]: cmd is required", i))
			continue
		}
		if server.TimeoutSeconds < 0 {
			errs = append(errs, fmt.Sprintf("servers[%d]: timeoutSeconds must not be negative", i))
		}
		if server.MaxRetries < 0 {
			errs = append(errs, fmt.Sprintf("servers[%d]: maxRetries must not be negative", i))
		}
		cfg.Servers = append(cfg.Servers, server)
	}

	return cfg, errs
}

func normalizeServer(raw rawServerConfig) domain.ServerConfig {
	return domain.ServerConfig{
		Name:           strings.TrimSpace(raw.Name),
		Cmd:            raw.Cmd,
		Env:            raw.Env,
		Cwd:            raw.Cwd,
		TimeoutSeconds: raw.TimeoutSeconds,
		MaxRetries:     raw.MaxRetries,
		HealthMethod:   strings.TrimSpace(raw.HealthMethod),
		Disabled:       raw.Disabled,
	}
}
