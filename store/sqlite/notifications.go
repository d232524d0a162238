package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/lead-engine/leads"
)

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// Notification is a stored follow-up alert.
type Notification struct {
	ID        string
	LeadID    string
	Type      leads.AlertType
	Title     string
	Message   string
	Read      bool
	CreatedAt time.Time
}

// SaveAlerts stores alerts raised at one instant and returns the rows written.
func (s *Store) SaveAlerts(ctx context.Context, alerts []leads.Alert, at time.Time) ([]Notification, error) {
	if len(alerts) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := make([]Notification, 0, len(alerts))
	err := s.inTx(ctx, func(sqlTx *sql.Tx) error {
		for _, a := range alerts {
			n := Notification{
				ID:        uuid.NewString(),
				LeadID:    a.LeadID,
				Type:      a.Type,
				Title:     a.Title,
				Message:   a.Message,
				CreatedAt: at,
			}
			_, err := sqlTx.ExecContext(ctx, `INSERT INTO notifications
				(id, lead_id, title, message, alert_type, read, created_at)
				VALUES (?, ?, ?, ?, ?, FALSE, ?)`,
				n.ID, n.LeadID, n.Title, n.Message, string(n.Type), formatTime(n.CreatedAt),
			)
			if err != nil {
				return fmt.Errorf("failed to save notification: %w", err)
			}
			saved = append(saved, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// ListNotifications returns notifications newest first.
func (s *Store) ListNotifications(ctx context.Context, unreadOnly bool, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, lead_id, title, message, alert_type, read, created_at FROM notifications"
	if unreadOnly {
		query += " WHERE read = FALSE"
	}
	query += " ORDER BY created_at DESC LIMIT ?"

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		var (
			n         Notification
			alertType string
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.LeadID, &n.Title, &n.Message, &alertType, &n.Read, &createdAt); err != nil {
			return nil, err
		}
		n.Type = leads.AlertType(alertType)
		n.CreatedAt = parseTime(createdAt)
		result = append(result, n)
	}
	return result, rows.Err()
}

// MarkNotificationRead flags a notification as read.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE notifications SET read = TRUE WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark notification: %w", err)
	}
	return requireAffected(res, "notification", id)
}

// LastAlerts returns, per lead and alert type, when the latest alert was
// raised.
func (s *Store) LastAlerts(ctx context.Context) (map[leads.AlertKey]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT lead_id, alert_type, MAX(created_at) FROM notifications GROUP BY lead_id, alert_type")
	if err != nil {
		return nil, fmt.Errorf("failed to load last alerts: %w", err)
	}
	defer rows.Close()

	last := make(map[leads.AlertKey]time.Time)
	for rows.Next() {
		var (
			leadID    string
			alertType string
			createdAt string
		)
		if err := rows.Scan(&leadID, &alertType, &createdAt); err != nil {
			return nil, err
		}
		last[leads.AlertKey{LeadID: leadID, Type: leads.AlertType(alertType)}] = parseTime(createdAt)
	}
	return last, rows.Err()
}
