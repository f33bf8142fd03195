package model

import "time"

type Application struct {
	AppName     string    `json:"app_name" db:"app_name"`
	Description string    `json:"description" db:"description"`
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
	Enabled     bool      `json:"enabled" db:"enabled"`
}
