// Package notify turns freshly synced snapshots into expiry notifications,
// e.g. training certificates or medical checkups that are about to lapse.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// ExpiringRecord is a record whose expiry falls inside the watch window.
type ExpiringRecord struct {
	RecordID  string    `json:"recordId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Notification summarizes one snapshot of one domain.
type Notification struct {
	Domain       string           `json:"domain"`
	Field        string           `json:"field"`
	GeneratedAt  time.Time        `json:"generatedAt"`
	Window       time.Duration    `json:"window"`
	Expiring     []ExpiringRecord `json:"expiring"`
	ExpiredCount int              `json:"expiredCount"`
}

// Empty reports whether there is nothing to tell anyone.
func (n Notification) Empty() bool {
	return len(n.Expiring) == 0 && n.ExpiredCount == 0
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier
func (l LogNotifier) Notify(ctx context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ids := make([]string, 0, len(n.Expiring))
	for _, r := range n.Expiring {
		ids = append(ids, r.RecordID)
	}
	logger.WarnContext(ctx, "Records approaching expiry",
		"domain", n.Domain,
		"field", n.Field,
		"window", n.Window,
		"expiring", len(n.Expiring),
		"expired", n.ExpiredCount,
		"record_ids", ids)
	return nil
}
