package model

import (
	"encoding/json"
	"time"
)

type HealthCheck struct {
	ID          string          `json:"id" db:"id"`
	AppName     string          `json:"app_name" db:"app_name"`
	ServiceName string          `json:"service_name" db:"service_name"`
	Status      string          `json:"status" db:"status"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
	Details     json.RawMessage `json:"details,omitempty" db:"details"`
}
