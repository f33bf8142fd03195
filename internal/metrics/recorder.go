package metrics

import "time"

// Recorder receives reconciliation telemetry. Implementations must be safe
// for concurrent use and must never fail a deployment because a metric could
// not be written.
type Recorder interface {
	// RecordDeployment counts one finished deployment attempt for an
	// application, by terminal status.
	RecordDeployment(app, status string, duration time.Duration)

	// RecordGitOperation counts one git command (clone, pull, fetch).
	RecordGitOperation(operation, status string, duration time.Duration)

	// RecordHealthCheck counts one container probe, by probe status.
	RecordHealthCheck(container, status string, duration time.Duration)

	// SetActiveContainers tracks how many containers are currently running.
	SetActiveContainers(count int)
}

// Nop discards all telemetry.
type Nop struct{}

func (Nop) RecordDeployment(string, string, time.Duration)   {}
func (Nop) RecordGitOperation(string, string, time.Duration) {}
func (Nop) RecordHealthCheck(string, string, time.Duration)  {}
func (Nop) SetActiveContainers(int)                          {}

// Multi fans out to several recorders, typically Prometheus plus InfluxDB.
type Multi []Recorder

func (m Multi) RecordDeployment(app, status string, duration time.Duration) {
	for _, r := range m {
		r.RecordDeployment(app, status, duration)
	}
}

func (m Multi) RecordGitOperation(operation, status string, duration time.Duration) {
	for _, r := range m {
		r.RecordGitOperation(operation, status, duration)
	}
}

func (m Multi) RecordHealthCheck(container, status string, duration time.Duration) {
	for _, r := range m {
		r.RecordHealthCheck(container, status, duration)
	}
}

func (m Multi) SetActiveContainers(count int) {
	for _, r := range m {
		r.SetActiveContainers(count)
	}
}
