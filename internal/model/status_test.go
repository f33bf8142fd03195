package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminalDeploymentStatus(t *testing.T) {
	assert.True(t, IsTerminalDeploymentStatus(DeploymentSuccess))
	assert.True(t, IsTerminalDeploymentStatus(DeploymentFailed))
	assert.False(t, IsTerminalDeploymentStatus(DeploymentInProgress))
	assert.False(t, IsTerminalDeploymentStatus(""))
}

func TestDeriveOverallStatus(t *testing.T) {
	failedDep := &Deployment{Status: DeploymentFailed}
	okDep := &Deployment{Status: DeploymentSuccess}

	tests := []struct {
		name         string
		stateCounts  map[string]int
		errorCount   int
		lastDep      *Deployment
		serviceCount int
		want         string
	}{
		{"unresolved errors win", map[string]int{ServiceRunning: 2}, 1, okDep, 2, AppError},
		{"failed service", map[string]int{ServiceFailed: 1}, 0, okDep, 1, AppError},
		{"error service", map[string]int{ServiceError: 1}, 0, okDep, 1, AppError},
		{"unhealthy service", map[string]int{ServiceUnhealthy: 1}, 0, okDep, 1, AppUnhealthy},
		{"unstable service", map[string]int{ServiceUnstable: 1}, 0, okDep, 1, AppUnhealthy},
		{"failed deployment", map[string]int{ServiceRunning: 1}, 0, failedDep, 1, AppDeploymentFailed},
		{"no services", map[string]int{}, 0, okDep, 0, AppNoServices},
		{"healthy", map[string]int{ServiceRunning: 3}, 0, okDep, 3, AppHealthy},
		{"no deployment yet", map[string]int{ServiceRunning: 1}, 0, nil, 1, AppHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveOverallStatus(tt.stateCounts, tt.errorCount, tt.lastDep, tt.serviceCount)
			assert.Equal(t, tt.want, got)
		})
	}
}
