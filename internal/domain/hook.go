package domain

// Lifecycle events hooks can bind to.
const (
	HookJobStarted     = "job.started"
	HookJobCompleted   = "job.completed"
	HookJobFailed      = "job.failed"
	HookStageValidated = "stage.validated"
)

type HookAction string

const (
	ActionCapability HookAction = "capability"
	ActionNotify     HookAction = "notify"
	ActionShell      HookAction = "shell"
)

// HookRule binds one lifecycle event to one best-effort side action. Config
// values may carry {{field}} placeholders rendered from the job context at
// trigger time. Hooks never affect pipeline correctness.
type HookRule struct {
	Name    string            `json:"name" yaml:"name" validate:"required,hook_name"`
	Event   string            `json:"event" yaml:"event" validate:"required"`
	Action  HookAction        `json:"action" yaml:"action" validate:"required,oneof=capability notify shell"`
	Config  map[string]string `json:"config" yaml:"config" validate:"required"`
	Enabled bool              `json:"enabled" yaml:"enabled"`
}
