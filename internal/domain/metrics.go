package domain

import "time"

// Metrics receives observations from the capability and pipeline layers.
// Implementations must be safe for concurrent use.
type Metrics interface {
	ObserveCall(server, method string, duration time.Duration, err error)
	ObserveCallRetry(server string)
	ObserveStage(stage Stage, duration time.Duration, err error)
	ObserveJob(status JobStatus)
	SetServerHealth(server string, healthy bool)
	SetConnectedServers(count int)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) ObserveCall(string, string, time.Duration, error) {}
func (NopMetrics) ObserveCallRetry(string)                          {}
func (NopMetrics) ObserveStage(Stage, time.Duration, error)         {}
func (NopMetrics) ObserveJob(JobStatus)                             {}
func (NopMetrics) SetServerHealth(string, bool)                     {}
func (NopMetrics) SetConnectedServers(int)                          {}

var _ Metrics = NopMetrics{}
