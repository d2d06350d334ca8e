package hooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/capability"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/telemetry"
)

const defaultShellTimeout = 10 * time.Second

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Dispatcher fires hook rules for pipeline lifecycle events. Hooks are a
// side channel: failures are logged and never propagate back into the
// pipeline.
type Dispatcher struct {
	rules        *Rules
	caller       capability.Caller
	logger       *zap.Logger
	shellTimeout time.Duration
}

type DispatcherOptions struct {
	Caller       capability.Caller
	Logger       *zap.Logger
	ShellTimeout time.Duration
}

func NewDispatcher(rules *Rules, opts DispatcherOptions) *Dispatcher {
	if rules == nil {
		rules = NewRules(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	shellTimeout := opts.ShellTimeout
	if shellTimeout <= 0 {
		shellTimeout = defaultShellTimeout
	}
	return &Dispatcher{
		rules:        rules,
		caller:       opts.Caller,
		logger:       logger.Named("hooks"),
		shellTimeout: shellTimeout,
	}
}

func (d *Dispatcher) Rules() *Rules {
	return d.rules
}

// Trigger runs every enabled rule bound to event, sequentially in file
// order. Each rule is independent; one failing rule does not stop the rest.
func (d *Dispatcher) Trigger(ctx context.Context, event string, fields map[string]string) {
	for _, rule := range d.rules.Snapshot() {
		if !rule.Enabled || rule.Event != event {
			continue
		}
		if err := d.fire(ctx, rule, fields); err != nil {
			d.logger.Warn("hook failed",
				telemetry.EventField(telemetry.EventHookFailure),
				telemetry.HookField(rule.Name),
				zap.String("trigger", event),
				telemetry.ErrorField(err),
			)
			continue
		}
		d.logger.Debug("hook fired",
			telemetry.EventField(telemetry.EventHookFired),
			telemetry.HookField(rule.Name),
			zap.String("trigger", event),
		)
	}
}

func (d *Dispatcher) fire(ctx context.Context, rule domain.HookRule, fields map[string]string) error {
	cfg := renderConfig(rule.Config, fields)
	switch rule.Action {
	case domain.ActionNotify:
		return d.notify(rule, cfg)
	case domain.ActionShell:
		return d.runShell(ctx, cfg, fields)
	case domain.ActionCapability:
		return d.callCapability(ctx, cfg)
	default:
		return fmt.Errorf("unknown hook action %q", rule.Action)
	}
}

func (d *Dispatcher) notify(rule domain.HookRule, cfg map[string]string) error {
	message := strings.TrimSpace(cfg["message"])
	if message == "" {
		return errors.New("notify hook requires a message")
	}
	d.logger.Info(message, telemetry.HookField(rule.Name))
	return nil
}

func (d *Dispatcher) runShell(ctx context.Context, cfg map[string]string, fields map[string]string) error {
	command := strings.TrimSpace(cfg["command"])
	if command == "" {
		return errors.New("shell hook requires a command")
	}
	runCtx, cancel := context.WithTimeout(ctx, d.shellTimeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Env = append(os.Environ(), hookEnv(fields)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("run command: %w: %s", err, msg)
		}
		return fmt.Errorf("run command: %w", err)
	}
	return nil
}

func (d *Dispatcher) callCapability(ctx context.Context, cfg map[string]string) error {
	if d.caller == nil {
		return errors.New("no capability caller configured")
	}
	params := make(map[string]string, len(cfg))
	for key, value := range cfg {
		if key == "server" || key == "method" {
			continue
		}
		params[key] = value
	}
	result := d.caller.Call(ctx, cfg["server"], cfg["method"], params)
	if result.Err != nil {
		return result.Err
	}
	return nil
}

// hookEnv exposes the event context to shell hooks as HOOK_* variables.
func hookEnv(fields map[string]string) []string {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, key := range keys {
		name := "HOOK_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		env = append(env, name+"="+fields[key])
	}
	return env
}

func renderConfig(cfg map[string]string, fields map[string]string) map[string]string {
	out := make(map[string]string, len(cfg))
	for key, value := range cfg {
		out[key] = Render(value, fields)
	}
	return out
}

// Render substitutes {{field}} placeholders from the event context. Unknown
// placeholders are left intact so misconfigured rules stay visible in the
// output they produce.
func Render(template string, fields map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := strings.TrimSpace(strings.Trim(match, "{}"))
		if value, ok := fields[key]; ok {
			return value
		}
		return match
	})
}
