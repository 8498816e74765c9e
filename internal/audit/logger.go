package audit

import (
	"context"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	appCtx "github.com/baechuer/artfront/services/visitor-state/internal/pkg/context"
	"github.com/rs/zerolog"
)

// Logger provides structured audit logging for membership changes
type Logger struct {
	log zerolog.Logger
}

// New creates a new audit logger
func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

// Toggled logs a membership flip on either path
func (l *Logger) Toggled(ctx context.Context, id domain.Identity, kind domain.ListKind, itemID string, active bool) {
	l.withIdentity(l.log.Info(), id).
		Str("action", "list_toggled").
		Str("kind", string(kind)).
		Str("item_id", itemID).
		Bool("active", active).
		Str("trace_id", getTraceID(ctx)).
		Msg("List item toggled")
}

// Cleared logs a soft-clear of a whole list
func (l *Logger) Cleared(ctx context.Context, id domain.Identity, kind domain.ListKind) {
	l.withIdentity(l.log.Info(), id).
		Str("action", "list_cleared").
		Str("kind", string(kind)).
		Str("trace_id", getTraceID(ctx)).
		Msg("List cleared")
}

// Merged logs a guest list folded into an account
func (l *Logger) Merged(ctx context.Context, id domain.Identity, kind domain.ListKind, activated int) {
	l.withIdentity(l.log.Info(), id).
		Str("action", "list_merged").
		Str("kind", string(kind)).
		Int("activated", activated).
		Str("trace_id", getTraceID(ctx)).
		Msg("Guest list merged into account")
}

// NotificationClaimed logs an abandoned-cart pair handed out by a scan
func (l *Logger) NotificationClaimed(ctx context.Context, n domain.PendingNotification) {
	l.log.Info().
		Str("action", "notification_claimed").
		Str("device_id", n.DeviceID).
		Str("item_id", n.ItemID).
		Str("trace_id", getTraceID(ctx)).
		Msg("Abandoned-cart notification claimed")
}

// NotificationMarked logs last_notified_at being stamped
func (l *Logger) NotificationMarked(ctx context.Context, n domain.PendingNotification) {
	l.log.Info().
		Str("action", "notification_marked").
		Str("device_id", n.DeviceID).
		Str("item_id", n.ItemID).
		Str("trace_id", getTraceID(ctx)).
		Msg("Abandoned-cart notification marked")
}

func (l *Logger) withIdentity(e *zerolog.Event, id domain.Identity) *zerolog.Event {
	if id.Authenticated() {
		return e.Str("path", "user").Str("user_id", id.UserID.String())
	}
	return e.Str("path", "guest").Str("device_id", id.DeviceID)
}

func getTraceID(ctx context.Context) string {
	if rid := appCtx.GetRequestID(ctx); rid != "" {
		return rid
	}
	return "unknown"
}
