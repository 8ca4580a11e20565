package ports

import (
	"context"

	"fpp-app-layer/internal/domain"
)

// SessionStorage defines the persistence contract for OAuth sessions.
// Implementations must be safe for concurrent use on distinct ids.
type SessionStorage interface {
	// StoreSession persists the session, replacing any session with the same id.
	// It reports true only when the session was durably written.
	StoreSession(ctx context.Context, session *domain.Session) (bool, error)
	// LoadSession returns nil, nil when no session exists for id.
	LoadSession(ctx context.Context, id string) (*domain.Session, error)
	// DeleteSession removes the session; deleting a missing id reports true.
	DeleteSession(ctx context.Context, id string) (bool, error)
}
