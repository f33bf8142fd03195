package model

import "time"

// ErrorRecord is an append-only error log entry. A nil ServiceName means the
// error is application-level.
type ErrorRecord struct {
	ID           string    `json:"id" db:"id"`
	AppName      string    `json:"app_name" db:"app_name"`
	ServiceName  *string   `json:"service_name,omitempty" db:"service_name"`
	ErrorMessage string    `json:"error_message" db:"error_message"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	Resolved     bool      `json:"resolved" db:"resolved"`
}
