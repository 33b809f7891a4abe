package db

import (
	"context"
	"fmt"
	"time"
)

// Alert levels.
const (
	AlertInfo    = "info"
	AlertWarning = "warning"
	AlertError   = "error"
)

// Alert represents an alert record.
type Alert struct {
	ID        int       `json:"id"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// AlertStore records operational incidents (protocol violations, tick
// overruns) for operators to review.
type AlertStore struct {
	db *Database
}

var alertMigrations = []Migration{
	{Version: 1, Name: "create alerts", SQL: `
		CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			acknowledged INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(type);
		CREATE INDEX IF NOT EXISTS idx_alerts_acknowledged ON alerts(acknowledged);`},
}

// NewAlertStore creates the alerts schema if needed.
func NewAlertStore(database *Database) (*AlertStore, error) {
	if err := database.Migrate(context.Background(), "alerts", alertMigrations); err != nil {
		return nil, fmt.Errorf("failed to migrate alerts database: %w", err)
	}
	return &AlertStore{db: database}, nil
}

// CreateAlert creates a new alert record.
func (as *AlertStore) CreateAlert(ctx context.Context, alertType, level, message string) error {
	_, err := as.db.ExecContext(ctx,
		"INSERT INTO alerts (type, level, message, created_at) VALUES (?, ?, ?, ?)",
		alertType, level, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// GetUnacknowledgedAlerts returns up to limit unacknowledged alerts, newest first.
func (as *AlertStore) GetUnacknowledgedAlerts(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := as.db.QueryContext(ctx,
		"SELECT id, type, level, message, created_at FROM alerts WHERE acknowledged = 0 ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.Type, &a.Level, &a.Message, &a.CreatedAt); err != nil {
			continue
		}
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// AcknowledgeAlert marks an alert as acknowledged.
func (as *AlertStore) AcknowledgeAlert(ctx context.Context, alertID int) error {
	res, err := as.db.ExecContext(ctx, "UPDATE alerts SET acknowledged = 1 WHERE id = ?", alertID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert %d: %w", alertID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %d not found", alertID)
	}
	return nil
}

// CleanOldAlerts removes acknowledged alerts older than the specified days.
func (as *AlertStore) CleanOldAlerts(ctx context.Context, days int) (int64, error) {
	res, err := as.db.ExecContext(ctx,
		"DELETE FROM alerts WHERE acknowledged = 1 AND created_at < ?",
		time.Now().UTC().AddDate(0, 0, -days))
	if err != nil {
		return 0, fmt.Errorf("failed to clean alerts: %w", err)
	}
	return res.RowsAffected()
}
