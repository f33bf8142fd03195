package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/edvin/quadops/internal/model"
)

// AddHealthCheck appends a health check record. A record for a service the
// store has never seen creates that service in the unknown state first so the
// composite foreign key holds.
func (s *Store) AddHealthCheck(ctx context.Context, appName, serviceName, status string, details json.RawMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin health check: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM services WHERE app_name = ? AND service_name = ?`,
		appName, serviceName).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("look up service %s/%s: %w", appName, serviceName, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn().
			Str("app", appName).
			Str("service", serviceName).
			Msg("health check for unknown service, creating placeholder")
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO applications (app_name, description, last_updated, enabled)
			 VALUES (?, '', ?, 1)
			 ON CONFLICT(app_name) DO NOTHING`,
			appName, nowString(),
		); err != nil {
			return fmt.Errorf("ensure application %s: %w", appName, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO services (app_name, service_name, state, container_id, deployment_id, last_updated)
			 VALUES (?, ?, ?, NULL, NULL, ?)`,
			appName, serviceName, model.ServiceUnknown, nowString(),
		); err != nil {
			return fmt.Errorf("create placeholder service %s/%s: %w", appName, serviceName, err)
		}
	}

	var detailsCol any
	if len(details) > 0 {
		detailsCol = string(details)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO health_checks (id, app_name, service_name, status, timestamp, details)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), appName, serviceName, status, nowString(), detailsCol,
	); err != nil {
		return fmt.Errorf("add health check for %s/%s: %w", appName, serviceName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit health check: %w", err)
	}
	return nil
}

// HealthHistory returns the most recent health checks for a service, newest
// first.
func (s *Store) HealthHistory(ctx context.Context, appName, serviceName string, limit int) ([]model.HealthCheck, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, app_name, service_name, status, timestamp, details
		 FROM health_checks
		 WHERE app_name = ? AND service_name = ?
		 ORDER BY timestamp DESC LIMIT ?`,
		appName, serviceName, limit)
	if err != nil {
		return nil, fmt.Errorf("health history for %s/%s: %w", appName, serviceName, err)
	}
	defer rows.Close()

	var checks []model.HealthCheck
	for rows.Next() {
		var hc model.HealthCheck
		var timestamp string
		var details *string
		if err := rows.Scan(&hc.ID, &hc.AppName, &hc.ServiceName, &hc.Status, &timestamp, &details); err != nil {
			return nil, fmt.Errorf("scan health check: %w", err)
		}
		if hc.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		if details != nil {
			hc.Details = json.RawMessage(*details)
		}
		checks = append(checks, hc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate health checks: %w", err)
	}
	return checks, nil
}
