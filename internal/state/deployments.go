package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/edvin/quadops/internal/model"
)

// StartDeployment opens a new in_progress deployment for an application and
// returns its ID. The application row is created if it does not exist yet so
// the foreign key always holds.
func (s *Store) StartDeployment(ctx context.Context, appName, commitHash string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin start deployment: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO applications (app_name, description, last_updated, enabled)
		 VALUES (?, '', ?, 1)
		 ON CONFLICT(app_name) DO UPDATE SET last_updated = excluded.last_updated`,
		appName, nowString(),
	); err != nil {
		return "", fmt.Errorf("ensure application %s: %w", appName, err)
	}

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO deployments (id, app_name, commit_hash, timestamp, status, error_message)
		 VALUES (?, ?, ?, ?, ?, NULL)`,
		id, appName, commitHash, nowString(), model.DeploymentInProgress,
	); err != nil {
		return "", fmt.Errorf("start deployment for %s: %w", appName, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit start deployment: %w", err)
	}

	s.logger.Info().
		Str("app", appName).
		Str("deployment_id", id).
		Str("commit", commitHash).
		Msg("deployment started")
	return id, nil
}

// FinishDeployment closes a deployment exactly once. Terminal statuses are
// never overwritten: finishing an already-closed deployment returns
// ErrDeploymentClosed.
func (s *Store) FinishDeployment(ctx context.Context, deploymentID, status string, errorMessage string) error {
	if !model.IsTerminalDeploymentStatus(status) {
		return fmt.Errorf("finish deployment %s: status %q is not terminal", deploymentID, status)
	}

	var errMsg any
	if errorMessage != "" {
		errMsg = errorMessage
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE deployments SET status = ?, error_message = ?, timestamp = ?
		 WHERE id = ? AND status = ?`,
		status, errMsg, nowString(), deploymentID, model.DeploymentInProgress,
	)
	if err != nil {
		return fmt.Errorf("finish deployment %s: %w", deploymentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var existing string
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM deployments WHERE id = ?`, deploymentID).Scan(&existing)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("deployment %s: %w", deploymentID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("finish deployment %s: %w", deploymentID, err)
		}
		return fmt.Errorf("deployment %s is %s: %w", deploymentID, existing, ErrDeploymentClosed)
	}

	s.logger.Info().
		Str("deployment_id", deploymentID).
		Str("status", status).
		Msg("deployment finished")
	return nil
}

// RecordDeployment inserts an already-terminal deployment row. Used by the
// reconciliation guard when a failure happens before a deployment was opened.
func (s *Store) RecordDeployment(ctx context.Context, appName, commitHash, status string, errorMessage string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin record deployment: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO applications (app_name, description, last_updated, enabled)
		 VALUES (?, '', ?, 1)
		 ON CONFLICT(app_name) DO UPDATE SET last_updated = excluded.last_updated`,
		appName, nowString(),
	); err != nil {
		return "", fmt.Errorf("ensure application %s: %w", appName, err)
	}

	var errMsg any
	if errorMessage != "" {
		errMsg = errorMessage
	}

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO deployments (id, app_name, commit_hash, timestamp, status, error_message)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, appName, commitHash, nowString(), status, errMsg,
	); err != nil {
		return "", fmt.Errorf("record deployment for %s: %w", appName, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit record deployment: %w", err)
	}
	return id, nil
}

// DeploymentHistory returns the most recent deployments, newest first. An
// empty appName returns history across all applications.
func (s *Store) DeploymentHistory(ctx context.Context, appName string, limit int) ([]model.Deployment, error) {
	query := `SELECT id, app_name, commit_hash, timestamp, status, error_message FROM deployments`
	args := []any{}
	if appName != "" {
		query += ` WHERE app_name = ?`
		args = append(args, appName)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("deployment history: %w", err)
	}
	defer rows.Close()

	var deployments []model.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		deployments = append(deployments, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployments: %w", err)
	}
	return deployments, nil
}

// LastDeployment returns the most recent deployment for an application, or
// ErrNotFound when the application has never been deployed.
func (s *Store) LastDeployment(ctx context.Context, appName string) (*model.Deployment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, app_name, commit_hash, timestamp, status, error_message
		 FROM deployments WHERE app_name = ?
		 ORDER BY timestamp DESC LIMIT 1`, appName)
	d, err := scanDeployment(row)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("last deployment for %s", appName))
	}
	return d, nil
}

// LastSuccessfulDeployment returns the most recent successful deployment for
// an application.
func (s *Store) LastSuccessfulDeployment(ctx context.Context, appName string) (*model.Deployment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, app_name, commit_hash, timestamp, status, error_message
		 FROM deployments WHERE app_name = ? AND status = ?
		 ORDER BY timestamp DESC LIMIT 1`, appName, model.DeploymentSuccess)
	d, err := scanDeployment(row)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("last successful deployment for %s", appName))
	}
	return d, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployment(r rowScanner) (*model.Deployment, error) {
	var d model.Deployment
	var timestamp string
	if err := r.Scan(&d.ID, &d.AppName, &d.CommitHash, &timestamp, &d.Status, &d.ErrorMessage); err != nil {
		return nil, err
	}
	var err error
	if d.Timestamp, err = parseTime(timestamp); err != nil {
		return nil, err
	}
	return &d, nil
}
