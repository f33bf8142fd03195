package model

// AppStatusSummary is the read-only projection served by the status surface
// and the CLI.
type AppStatusSummary struct {
	AppName        string            `json:"app_name"`
	Description    string            `json:"description"`
	LastUpdated    string            `json:"last_updated"`
	Services       map[string]string `json:"services"`
	ServiceCount   int               `json:"service_count"`
	StateCounts    map[string]int    `json:"state_counts"`
	ErrorCount     int               `json:"error_count"`
	OverallStatus  string            `json:"overall_status"`
	LastDeployment *Deployment       `json:"last_deployment,omitempty"`
}

// DeriveOverallStatus ranks the signals a summary carries: unresolved errors
// and failed services dominate, then unhealthy services, then a failed last
// deployment, then the empty-app case.
func DeriveOverallStatus(stateCounts map[string]int, errorCount int, lastDeployment *Deployment, serviceCount int) string {
	switch {
	case errorCount > 0:
		return AppError
	case stateCounts[ServiceError] > 0 || stateCounts[ServiceFailed] > 0:
		return AppError
	case stateCounts[ServiceUnhealthy] > 0 || stateCounts[ServiceUnstable] > 0:
		return AppUnhealthy
	case lastDeployment != nil && lastDeployment.Status == DeploymentFailed:
		return AppDeploymentFailed
	case serviceCount == 0:
		return AppNoServices
	default:
		return AppHealthy
	}
}
