// Package app wires the daemon together and owns its lifecycle.
package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/config"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/hooks"
)

type App struct {
	logger *zap.Logger
}

type ServeConfig struct {
	ConfigPath string
}

// RunConfig drives a one-shot pipeline run against the built-in simulation
// providers: no config file, no child processes, no model credentials.
type RunConfig struct {
	Input domain.PipelineInput
}

type ValidateConfig struct {
	ConfigPath string
}

func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{logger: logger.Named("app")}
}

// Validate checks the config file and, when one is referenced, the hook
// rules file, without starting anything.
func (a *App) Validate(ctx context.Context, cfg ValidateConfig) error {
	loader := config.NewLoader(a.logger)
	conf, err := loader.Load(ctx, cfg.ConfigPath)
	if err != nil {
		return err
	}

	rules := 0
	if conf.Hooks.Path != "" {
		loaded, err := hooks.LoadRules(conf.Hooks.Path)
		if err != nil {
			return err
		}
		rules = len(loaded)
	}

	a.logger.Info("configuration validated",
		zap.String("config", cfg.ConfigPath),
		zap.Int("servers", len(conf.Servers)),
		zap.Int("hooks", rules),
	)
	return nil
}
