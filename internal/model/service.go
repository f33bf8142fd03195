package model

import "time"

// Service is keyed by (app_name, service_name). DeploymentID is set only by
// reconciliation; operator-triggered start/stop/restart writes leave it
// untouched.
type Service struct {
	AppName      string    `json:"app_name" db:"app_name"`
	ServiceName  string    `json:"service_name" db:"service_name"`
	State        string    `json:"state" db:"state"`
	ContainerID  *string   `json:"container_id,omitempty" db:"container_id"`
	DeploymentID *string   `json:"deployment_id,omitempty" db:"deployment_id"`
	LastUpdated  time.Time `json:"last_updated" db:"last_updated"`
}
