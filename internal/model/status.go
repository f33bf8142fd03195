package model

// Deployment statuses. A deployment opens as in_progress and is closed
// exactly once as success or failed; terminal statuses are never left.
const (
	DeploymentInProgress = "in_progress"
	DeploymentSuccess    = "success"
	DeploymentFailed     = "failed"
)

// Service states.
const (
	ServiceDeployed  = "deployed"
	ServiceStarting  = "starting"
	ServiceRunning   = "running"
	ServiceUnhealthy = "unhealthy"
	ServiceUnstable  = "unstable"
	ServiceFailed    = "failed"
	ServiceStopping  = "stopping"
	ServiceStopped   = "stopped"
	ServiceError     = "error"
	ServiceUnknown   = "unknown"
)

// Overall application statuses derived from service states, unresolved
// errors, and the last deployment outcome.
const (
	AppHealthy          = "healthy"
	AppUnhealthy        = "unhealthy"
	AppError            = "error"
	AppDeploymentFailed = "deployment_failed"
	AppNoServices       = "no_services"
	AppNotFound         = "not_found"
)

// CommitLocal is the commit hash recorded for applications deployed from a
// local directory without source control.
const CommitLocal = "local"

// IsTerminalDeploymentStatus reports whether a deployment status may not be
// changed again.
func IsTerminalDeploymentStatus(status string) bool {
	return status == DeploymentSuccess || status == DeploymentFailed
}
