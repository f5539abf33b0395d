package impl

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"otp/internal/domain"
	"otp/internal/events"
	"otp/internal/store"
)

// GormAuditSink persists audit events on a detached goroutine so the
// hot path never waits on the audit table.
type GormAuditSink struct {
	store *store.Store
}

func NewGormAuditSink(st *store.Store) *GormAuditSink {
	return &GormAuditSink{store: st}
}

func (s *GormAuditSink) Record(_ context.Context, ev events.AuditEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var md []byte
		if ev.Metadata != nil {
			md, _ = json.Marshal(ev.Metadata)
		}
		at := ev.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		entry := &domain.AuditLog{
			UserID:    ev.UserID,
			Action:    ev.Action,
			Success:   ev.Success,
			Metadata:  md,
			CreatedAt: at,
		}
		if err := s.store.Audit().Append(ctx, entry); err != nil {
			slog.Warn("audit append failed", "action", ev.Action, "error", err)
		}
	}()
}
