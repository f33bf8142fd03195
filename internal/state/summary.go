package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/edvin/quadops/internal/model"
)

// AppStatusSummary assembles the per-application projection the status
// surface serves: services and their states, state counts, unresolved error
// count, last deployment, and the derived overall status.
func (s *Store) AppStatusSummary(ctx context.Context, appName string) (*model.AppStatusSummary, error) {
	app, err := s.GetApplication(ctx, appName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &model.AppStatusSummary{AppName: appName, OverallStatus: model.AppNotFound}, nil
		}
		return nil, err
	}

	services, err := s.AppServiceStates(ctx, appName)
	if err != nil {
		return nil, err
	}

	stateCounts := make(map[string]int)
	for _, state := range services {
		stateCounts[state]++
	}

	var errorCount int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM error_log WHERE app_name = ? AND resolved = 0`,
		appName).Scan(&errorCount); err != nil {
		return nil, fmt.Errorf("count unresolved errors for %s: %w", appName, err)
	}

	lastDeployment, err := s.LastDeployment(ctx, appName)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return &model.AppStatusSummary{
		AppName:        app.AppName,
		Description:    app.Description,
		LastUpdated:    formatTime(app.LastUpdated),
		Services:       services,
		ServiceCount:   len(services),
		StateCounts:    stateCounts,
		ErrorCount:     errorCount,
		OverallStatus:  model.DeriveOverallStatus(stateCounts, errorCount, lastDeployment, len(services)),
		LastDeployment: lastDeployment,
	}, nil
}

// AllApplicationStatuses returns the summary for every enabled application.
func (s *Store) AllApplicationStatuses(ctx context.Context) (map[string]*model.AppStatusSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT app_name FROM applications WHERE enabled = 1 ORDER BY app_name`)
	if err != nil {
		return nil, fmt.Errorf("list enabled applications: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan application name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate application names: %w", err)
	}

	statuses := make(map[string]*model.AppStatusSummary, len(names))
	for _, name := range names {
		summary, err := s.AppStatusSummary(ctx, name)
		if err != nil {
			return nil, err
		}
		statuses[name] = summary
	}
	return statuses, nil
}
