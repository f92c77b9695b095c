package session

import "context"

type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	Update(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id uint) (*Session, error)
	GetByLedgerSessionID(ctx context.Context, ledgerSessionID uint64) (*Session, error)
	// GetActiveByClientID returns the client's single Active session, or nil
	// when none exists. At most one Active session may exist per client.
	GetActiveByClientID(ctx context.Context, clientID string) (*Session, error)
	ListByClientID(ctx context.Context, clientID string) ([]*Session, error)
	// ListFailedWithRetainedSnapshots returns Failed sessions eligible for a
	// later settlement retry.
	ListFailedWithRetainedSnapshots(ctx context.Context) ([]*Session, error)
	// ListExpiredActive returns Active sessions past their expiry instant.
	ListExpiredActive(ctx context.Context) ([]*Session, error)
}
