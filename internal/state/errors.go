package state

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/edvin/quadops/internal/model"
)

// RecordError appends an error record. A nil serviceName records an
// application-level error.
func (s *Store) RecordError(ctx context.Context, appName string, serviceName *string, errorMessage string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin error record: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO applications (app_name, description, last_updated, enabled)
		 VALUES (?, '', ?, 1)
		 ON CONFLICT(app_name) DO NOTHING`,
		appName, nowString(),
	); err != nil {
		return fmt.Errorf("ensure application %s: %w", appName, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO error_log (id, app_name, service_name, error_message, timestamp, resolved)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		uuid.NewString(), appName, serviceName, errorMessage, nowString(),
	); err != nil {
		return fmt.Errorf("record error for %s: %w", appName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit error record: %w", err)
	}

	evt := s.logger.Warn().Str("app", appName)
	if serviceName != nil {
		evt = evt.Str("service", *serviceName)
	}
	evt.Str("error_message", errorMessage).Msg("error recorded")
	return nil
}

// LastError returns the most recent error for an application (serviceName
// nil) or for a specific service.
func (s *Store) LastError(ctx context.Context, appName string, serviceName *string) (*model.ErrorRecord, error) {
	query := `SELECT id, app_name, service_name, error_message, timestamp, resolved
	          FROM error_log WHERE app_name = ?`
	args := []any{appName}
	if serviceName != nil {
		query += ` AND service_name = ?`
		args = append(args, *serviceName)
	} else {
		query += ` AND service_name IS NULL`
	}
	query += ` ORDER BY timestamp DESC LIMIT 1`

	var rec model.ErrorRecord
	var timestamp string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&rec.ID, &rec.AppName, &rec.ServiceName, &rec.ErrorMessage, &timestamp, &rec.Resolved)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("last error for %s", appName))
	}
	if rec.Timestamp, err = parseTime(timestamp); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UnresolvedErrors lists unresolved errors for an application, newest first.
func (s *Store) UnresolvedErrors(ctx context.Context, appName string, limit int) ([]model.ErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, app_name, service_name, error_message, timestamp, resolved
		 FROM error_log
		 WHERE app_name = ? AND resolved = 0
		 ORDER BY timestamp DESC LIMIT ?`,
		appName, limit)
	if err != nil {
		return nil, fmt.Errorf("unresolved errors for %s: %w", appName, err)
	}
	defer rows.Close()

	var records []model.ErrorRecord
	for rows.Next() {
		var rec model.ErrorRecord
		var timestamp string
		if err := rows.Scan(&rec.ID, &rec.AppName, &rec.ServiceName, &rec.ErrorMessage, &timestamp, &rec.Resolved); err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		if rec.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error records: %w", err)
	}
	return records, nil
}

// ResolveError marks one error record resolved.
func (s *Store) ResolveError(ctx context.Context, errorID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE error_log SET resolved = 1 WHERE id = ?`, errorID)
	if err != nil {
		return fmt.Errorf("resolve error %s: %w", errorID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("error %s: %w", errorID, ErrNotFound)
	}
	return nil
}
