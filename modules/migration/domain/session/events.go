package session

import (
	"time"

	"github.com/google/uuid"
)

type CreatedEvent struct {
	TenantID  uuid.UUID
	SessionID uuid.UUID
	Timestamp time.Time
}

type StatusChangedEvent struct {
	TenantID  uuid.UUID
	SessionID uuid.UUID
	From      string
	To        string
	Timestamp time.Time
}

type DeletedEvent struct {
	TenantID  uuid.UUID
	SessionID uuid.UUID
	Timestamp time.Time
}
