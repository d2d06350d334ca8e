package telemetry

import (
	"time"

	"go.uber.org/zap"
)

// Shared structured-logging field names. Keeping them in one place makes
// log queries stable across packages.
const (
	FieldEvent    = "event"
	FieldServer   = "server"
	FieldJob      = "job"
	FieldStage    = "stage"
	FieldMethod   = "method"
	FieldAttempt  = "attempt"
	FieldState    = "state"
	FieldStatus   = "status"
	FieldHook     = "hook"
	FieldDuration = "duration"
	FieldError    = "error"
)

// Event values used with FieldEvent.
const (
	EventConnectAttempt     = "connect_attempt"
	EventConnectSuccess     = "connect_success"
	EventConnectFailure     = "connect_failure"
	EventDisconnect         = "disconnect"
	EventReconnect          = "reconnect"
	EventCallRetry          = "call_retry"
	EventCallFailure        = "call_failure"
	EventHealthCheckFailure = "health_check_failure"
	EventStateChange        = "state_change"

	EventJobCreate    = "job_create"
	EventJobComplete  = "job_complete"
	EventJobFailure   = "job_failure"
	EventJobCancel    = "job_cancel"
	EventStageStart   = "stage_start"
	EventStageSuccess = "stage_success"
	EventStageFailure = "stage_failure"

	EventHookFired    = "hook_fired"
	EventHookFailure  = "hook_failure"
	EventHooksReload  = "hooks_reload"
	EventDroppedEvent = "dropped_event"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func ServerField(name string) zap.Field {
	return zap.String(FieldServer, name)
}

func JobField(id string) zap.Field {
	return zap.String(FieldJob, id)
}

func StageField(stage string) zap.Field {
	return zap.String(FieldStage, stage)
}

func MethodField(method string) zap.Field {
	return zap.String(FieldMethod, method)
}

func AttemptField(attempt int) zap.Field {
	return zap.Int(FieldAttempt, attempt)
}

func StateField(state string) zap.Field {
	return zap.String(FieldState, state)
}

func StatusField(status string) zap.Field {
	return zap.String(FieldStatus, status)
}

func HookField(name string) zap.Field {
	return zap.String(FieldHook, name)
}

func DurationField(d time.Duration) zap.Field {
	return zap.Duration(FieldDuration, d)
}

func ErrorField(err error) zap.Field {
	return zap.Error(err)
}
