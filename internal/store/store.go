package store

import (
	"context"

	"github.com/nhle/tempmail/internal/model"
)

// InboxStore persists the cached message list.
type InboxStore interface {
	// LoadInbox returns the cached list, newest first. An empty cache is
	// returned as an empty, non-nil Inbox.
	LoadInbox(ctx context.Context) (model.Inbox, error)

	// SaveInbox replaces the cached list.
	SaveInbox(ctx context.Context, inbox model.Inbox) error

	// ClearInbox empties the cached list.
	ClearInbox(ctx context.Context) error
}

// SessionStore is the durable local key space holding the current
// address, session token and cached message list. It is the only
// component that touches persisted state.
type SessionStore interface {
	InboxStore

	// LoadSession returns the stored session, or nil when none is stored.
	// A half-stored identity (address without token or the reverse) is
	// reported as no session.
	LoadSession(ctx context.Context) (*model.Session, error)

	// SaveSession stores s as the current identity and clears the inbox
	// in the same transaction. Identity changes always discard the cache.
	SaveSession(ctx context.Context, s model.Session) error

	// UpdateToken replaces the token of the stored session while keeping
	// its address and inbox. It fails if no session is stored.
	UpdateToken(ctx context.Context, token string) error

	// ClearSession removes the address, token and inbox together.
	ClearSession(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}
