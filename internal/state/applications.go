package state

import (
	"context"
	"fmt"

	"github.com/edvin/quadops/internal/model"
)

// RegisterApplication upserts an application row. Called at the start of
// every reconciliation attempt; the enabled flag of an existing row is left
// alone so an operator disable survives reconciliation.
func (s *Store) RegisterApplication(ctx context.Context, appName, description string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO applications (app_name, description, last_updated, enabled)
		 VALUES (?, ?, ?, 1)
		 ON CONFLICT(app_name) DO UPDATE SET description = excluded.description, last_updated = excluded.last_updated`,
		appName, description, nowString(),
	)
	if err != nil {
		return fmt.Errorf("register application %s: %w", appName, err)
	}
	return nil
}

// SetApplicationEnabled flips the enabled flag for an application.
func (s *Store) SetApplicationEnabled(ctx context.Context, appName string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE applications SET enabled = ?, last_updated = ? WHERE app_name = ?`,
		enabled, nowString(), appName,
	)
	if err != nil {
		return fmt.Errorf("set application %s enabled: %w", appName, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("application %s: %w", appName, ErrNotFound)
	}
	return nil
}

// ListApplications returns all registered applications.
func (s *Store) ListApplications(ctx context.Context) ([]model.Application, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT app_name, description, last_updated, enabled FROM applications ORDER BY app_name`)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []model.Application
	for rows.Next() {
		var a model.Application
		var lastUpdated string
		if err := rows.Scan(&a.AppName, &a.Description, &lastUpdated, &a.Enabled); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		if a.LastUpdated, err = parseTime(lastUpdated); err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return apps, nil
}

// GetApplication returns a single application row.
func (s *Store) GetApplication(ctx context.Context, appName string) (*model.Application, error) {
	var a model.Application
	var lastUpdated string
	err := s.db.QueryRowContext(ctx,
		`SELECT app_name, description, last_updated, enabled FROM applications WHERE app_name = ?`,
		appName,
	).Scan(&a.AppName, &a.Description, &lastUpdated, &a.Enabled)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("get application %s", appName))
	}
	if a.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return nil, err
	}
	return &a, nil
}
