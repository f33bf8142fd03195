package state

import (
	"context"
	"fmt"

	"github.com/edvin/quadops/internal/model"
)

// ServiceUpdate describes one service state write. Nil DeploymentID and
// ContainerID leave the stored values untouched; operator-triggered writes
// pass nil DeploymentID by design.
type ServiceUpdate struct {
	AppName      string
	ServiceName  string
	State        string
	DeploymentID *string
	ContainerID  *string
}

// UpsertService inserts or updates a service row. When a deployment ID is
// given it must belong to the same application as the service.
func (s *Store) UpsertService(ctx context.Context, u ServiceUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin service update: %w", err)
	}
	defer tx.Rollback()

	if u.DeploymentID != nil {
		var owner string
		err := tx.QueryRowContext(ctx,
			`SELECT app_name FROM deployments WHERE id = ?`, *u.DeploymentID).Scan(&owner)
		if err != nil {
			return wrapNotFound(err, fmt.Sprintf("deployment %s", *u.DeploymentID))
		}
		if owner != u.AppName {
			return fmt.Errorf("deployment %s belongs to %s, not %s", *u.DeploymentID, owner, u.AppName)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO services (app_name, service_name, state, container_id, deployment_id, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(app_name, service_name) DO UPDATE SET
		   state = excluded.state,
		   container_id = COALESCE(excluded.container_id, services.container_id),
		   deployment_id = COALESCE(excluded.deployment_id, services.deployment_id),
		   last_updated = excluded.last_updated`,
		u.AppName, u.ServiceName, u.State, u.ContainerID, u.DeploymentID, nowString(),
	); err != nil {
		return fmt.Errorf("upsert service %s/%s: %w", u.AppName, u.ServiceName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit service update: %w", err)
	}

	s.logger.Debug().
		Str("app", u.AppName).
		Str("service", u.ServiceName).
		Str("state", u.State).
		Msg("service state updated")
	return nil
}

// GetService returns one service row.
func (s *Store) GetService(ctx context.Context, appName, serviceName string) (*model.Service, error) {
	var svc model.Service
	var lastUpdated string
	err := s.db.QueryRowContext(ctx,
		`SELECT app_name, service_name, state, container_id, deployment_id, last_updated
		 FROM services WHERE app_name = ? AND service_name = ?`,
		appName, serviceName,
	).Scan(&svc.AppName, &svc.ServiceName, &svc.State, &svc.ContainerID, &svc.DeploymentID, &lastUpdated)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("get service %s/%s", appName, serviceName))
	}
	if svc.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return nil, err
	}
	return &svc, nil
}

// AppServiceStates returns service name to state for one application.
func (s *Store) AppServiceStates(ctx context.Context, appName string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT service_name, state FROM services WHERE app_name = ?`, appName)
	if err != nil {
		return nil, fmt.Errorf("services for %s: %w", appName, err)
	}
	defer rows.Close()

	states := make(map[string]string)
	for rows.Next() {
		var name, state string
		if err := rows.Scan(&name, &state); err != nil {
			return nil, fmt.Errorf("scan service state: %w", err)
		}
		states[name] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service states: %w", err)
	}
	return states, nil
}

// ServicesInState lists services filtered by application and/or state; empty
// filters match everything. Newest first.
func (s *Store) ServicesInState(ctx context.Context, appName, stateFilter string) ([]model.Service, error) {
	query := `SELECT app_name, service_name, state, container_id, deployment_id, last_updated FROM services`
	var args []any
	var where []string
	if appName != "" {
		where = append(where, "app_name = ?")
		args = append(args, appName)
	}
	if stateFilter != "" {
		where = append(where, "state = ?")
		args = append(args, stateFilter)
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY last_updated DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var svc model.Service
		var lastUpdated string
		if err := rows.Scan(&svc.AppName, &svc.ServiceName, &svc.State, &svc.ContainerID, &svc.DeploymentID, &lastUpdated); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		if svc.LastUpdated, err = parseTime(lastUpdated); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	return services, nil
}

// CountServicesInState returns the number of services currently in a state,
// across all applications. Feeds the active-service gauge.
func (s *Store) CountServicesInState(ctx context.Context, stateFilter string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM services WHERE state = ?`, stateFilter).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count services in state %s: %w", stateFilter, err)
	}
	return count, nil
}
