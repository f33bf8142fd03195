package model

import "time"

type Deployment struct {
	ID           string    `json:"id" db:"id"`
	AppName      string    `json:"app_name" db:"app_name"`
	CommitHash   string    `json:"commit_hash" db:"commit_hash"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	Status       string    `json:"status" db:"status"`
	ErrorMessage *string   `json:"error_message,omitempty" db:"error_message"`
}
