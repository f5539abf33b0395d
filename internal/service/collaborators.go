package service

import (
	"context"

	"otp/internal/domain"
	"otp/internal/events"
)

// UserDirectory is the identity collaborator owned by the surrounding
// system. The engine only needs one question answered: does this
// contact belong to this user on this channel.
type UserDirectory interface {
	OwnsContact(ctx context.Context, userID domain.UserID, channel domain.Channel, contactValue string) (bool, error)
}

// AuditSink records boundary events fire-and-forget. Implementations
// must never block the caller on sink latency.
type AuditSink interface {
	Record(ctx context.Context, ev events.AuditEvent)
}
