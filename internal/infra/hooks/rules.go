package hooks

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	hookNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

	knownEvents = map[string]struct{}{
		domain.HookJobStarted:     {},
		domain.HookJobCompleted:   {},
		domain.HookJobFailed:      {},
		domain.HookStageValidated: {},
	}
)

// validatorInstance configures and returns the shared validator for hook rules.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("hook_name", func(fl validator.FieldLevel) bool {
			return hookNamePattern.MatchString(fl.Field().String())
		})

		validateInst = v
	})
	return validateInst
}

type rulesFile struct {
	Hooks []rawRule `yaml:"hooks"`
}

type rawRule struct {
	Name    string            `yaml:"name"`
	Event   string            `yaml:"event"`
	Action  string            `yaml:"action"`
	Config  map[string]string `yaml:"config"`
	Enabled *bool             `yaml:"enabled"`
}

// LoadRules reads and validates a hook rules file.
func LoadRules(path string) ([]domain.HookRule, error) {
	if path == "" {
		return nil, errors.New("hooks path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hooks: %w", err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes a hook rules document. Rules without an explicit
// enabled flag default to enabled. All validation errors are reported in
// one pass so a broken file can be fixed in a single round.
func ParseRules(data []byte) ([]domain.HookRule, error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse hooks: %w", err)
	}

	rules := make([]domain.HookRule, 0, len(file.Hooks))
	var validationErrors []string
	nameSeen := make(map[string]struct{})
	for i, raw := range file.Hooks {
		rule := normalizeRule(raw)
		if _, exists := nameSeen[rule.Name]; exists {
			validationErrors = append(validationErrors, fmt.Sprintf("hooks[%d]: duplicate name %q", i, rule.Name))
		} else if rule.Name != "" {
			nameSeen[rule.Name] = struct{}{}
		}
		if errs := validateRule(rule, i); len(errs) > 0 {
			validationErrors = append(validationErrors, errs...)
			continue
		}
		rules = append(rules, rule)
	}
	if len(validationErrors) > 0 {
		return nil, errors.New(strings.Join(validationErrors, "; "))
	}
	return rules, nil
}

func normalizeRule(raw rawRule) domain.HookRule {
	rule := domain.HookRule{
		Name:    strings.TrimSpace(raw.Name),
		Event:   strings.TrimSpace(raw.Event),
		Action:  domain.HookAction(strings.ToLower(strings.TrimSpace(raw.Action))),
		Config:  raw.Config,
		Enabled: true,
	}
	if raw.Enabled != nil {
		rule.Enabled = *raw.Enabled
	}
	return rule
}

func validateRule(rule domain.HookRule, index int) []string {
	var errs []string
	if err := validatorInstance().Struct(rule); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = append(errs, fmt.Sprintf("hooks[%d]: field %s fails rule %q", index, fe.Field(), fe.Tag()))
			}
		} else {
			errs = append(errs, fmt.Sprintf("hooks[%d]: %v", index, err))
		}
	}
	if rule.Event != "" {
		if _, ok := knownEvents[rule.Event]; !ok {
			errs = append(errs, fmt.Sprintf("hooks[%d]: unknown event %q", index, rule.Event))
		}
	}
	for _, key := range requiredConfigKeys(rule.Action) {
		if strings.TrimSpace(rule.Config[key]) == "" {
			errs = append(errs, fmt.Sprintf("hooks[%d]: action %s requires config key %q", index, rule.Action, key))
		}
	}
	return errs
}

func requiredConfigKeys(action domain.HookAction) []string {
	switch action {
	case domain.ActionCapability:
		return []string{"server", "method"}
	case domain.ActionNotify:
		return []string{"message"}
	case domain.ActionShell:
		return []string{"command"}
	default:
		return nil
	}
}

// Rules holds the live rule set shared between the dispatcher and the file
// watcher. Replace swaps the whole set; per-rule toggles survive only until
// the next replace.
type Rules struct {
	mu    sync.RWMutex
	rules []domain.HookRule
}

func NewRules(rules []domain.HookRule) *Rules {
	r := &Rules{}
	r.Replace(rules)
	return r
}

func (r *Rules) Replace(rules []domain.HookRule) {
	copied := make([]domain.HookRule, len(rules))
	copy(copied, rules)
	r.mu.Lock()
	r.rules = copied
	r.mu.Unlock()
}

// Snapshot returns the rules in file order.
func (r *Rules) Snapshot() []domain.HookRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.HookRule, len(r.rules))
	copy(out, r.rules)
	return out
}

func (r *Rules) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].Name == name {
			r.rules[i].Enabled = enabled
			return nil
		}
	}
	return domain.E(domain.CodeNotFound, "hooks.set_enabled", fmt.Sprintf("no hook rule named %q", name), nil)
}
