package domain

const (
	DefaultCallTimeoutSeconds    = 30
	DefaultMaxRetries            = 3
	DefaultHealthIntervalSeconds = 30
	DefaultHealthMethod          = "ping"

	DefaultStatusListenAddress = "127.0.0.1:8710"
	DefaultStorePath           = "resurrector.db"

	// DefaultEventBuffer is the per-subscriber channel depth on the progress
	// bus. A subscriber that falls further behind loses events and must
	// resync through the status read path.
	DefaultEventBuffer = 16
)
