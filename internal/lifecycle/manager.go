// Package lifecycle owns the mailbox identity: allocating it on first
// start, restoring it from the session store, renaming its local part and
// replacing it when the user asks the provider to forget it.
package lifecycle

import (
	"context"
	"strings"
	gosync "sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/provider"
	"github.com/nhle/tempmail/internal/store"
)

// State is a lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateEditing
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateEditing:
		return "editing"
	default:
		return "uninitialized"
	}
}

// Errors for transitions attempted from the wrong state.
var (
	ErrNotActive  = errors.New("mailbox is not active")
	ErrNotEditing = errors.New("mailbox is not being edited")
)

// Draft holds the editable rename fields.
type Draft struct {
	LocalPart string
	Domain    string
}

// SessionListener is told about every identity change. A zero session
// means the previous identity is gone and nothing replaces it yet.
type SessionListener interface {
	SessionChanged(sess model.Session)
}

// Manager drives the identity through
// Uninitialized -> Active -> Editing -> (Active | Uninitialized).
// It is safe for concurrent use; transitions are serialized.
type Manager struct {
	gateway  provider.Allocator
	store    store.SessionStore
	domains  provider.Domains
	logger   *zap.SugaredLogger
	listener SessionListener

	// opMu serializes transitions, including their network calls.
	opMu gosync.Mutex

	mu      gosync.Mutex
	state   State
	session model.Session
	draft   Draft
}

// New creates a Manager in the Uninitialized state. listener and logger
// may be nil.
func New(
	gateway provider.Allocator,
	s store.SessionStore,
	domains provider.Domains,
	listener SessionListener,
	logger *zap.SugaredLogger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{
		gateway:  gateway,
		store:    s,
		domains:  domains,
		logger:   logger,
		listener: listener,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the active identity; it is zero while Uninitialized.
func (m *Manager) Session() model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Draft returns the rename draft; it is only meaningful while Editing.
func (m *Manager) Draft() Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draft
}

// Start moves Uninitialized to Active. A complete stored identity is
// restored without contacting the provider; otherwise a fresh address is
// allocated and persisted. Calling Start when already started returns
// the current identity.
func (m *Manager) Start(ctx context.Context) (model.Session, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if st := m.State(); st != StateUninitialized {
		return m.Session(), nil
	}

	stored, err := m.store.LoadSession(ctx)
	if err != nil {
		return model.Session{}, errors.Wrap(err, "loading stored session")
	}
	if stored != nil {
		m.logger.Infow("restored mailbox", "address", stored.Address)
		m.activate(*stored)
		return *stored, nil
	}

	return m.allocate(ctx)
}

// allocate obtains a fresh identity, persists it with an empty inbox,
// and becomes Active. Caller holds opMu.
func (m *Manager) allocate(ctx context.Context) (model.Session, error) {
	alloc, err := m.gateway.AllocateAddress(ctx, "")
	if err != nil {
		return model.Session{}, errors.Wrap(err, "allocating address")
	}

	sess := model.Session{Address: alloc.Address, Token: alloc.Token}
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return model.Session{}, errors.Wrap(err, "saving session")
	}

	m.logger.Infow("allocated mailbox", "address", sess.Address)
	m.activate(sess)
	return sess, nil
}

// activate records sess as Active and notifies the listener.
func (m *Manager) activate(sess model.Session) {
	m.mu.Lock()
	m.state = StateActive
	m.session = sess
	m.draft = Draft{}
	m.mu.Unlock()

	m.notify(sess)
}

func (m *Manager) notify(sess model.Session) {
	if m.listener != nil {
		m.listener.SessionChanged(sess)
	}
}

// BeginEdit moves Active to Editing, seeding the draft from the current
// address. No network call is made.
func (m *Manager) BeginEdit() (Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return Draft{}, ErrNotActive
	}
	local, domain := model.SplitAddress(m.session.Address)
	m.draft = Draft{LocalPart: local, Domain: domain}
	m.state = StateEditing
	return m.draft, nil
}

// UpdateDraft replaces the draft fields while Editing.
func (m *Manager) UpdateDraft(d Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateEditing {
		return ErrNotEditing
	}
	m.draft = d
	return nil
}

// Save commits the draft. An empty local part or unsupported domain is
// rejected with a ValidationError before any network call. On any
// failure the manager stays Editing with the draft intact. On success
// the renamed identity is persisted with an empty inbox.
func (m *Manager) Save(ctx context.Context) (model.Session, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.state != StateEditing {
		m.mu.Unlock()
		return model.Session{}, ErrNotEditing
	}
	draft := m.draft
	current := m.session
	m.mu.Unlock()

	local := strings.TrimSpace(draft.LocalPart)
	if err := provider.ValidateRename(local, draft.Domain, m.domains); err != nil {
		return model.Session{}, err
	}

	alloc, err := m.gateway.RenameAddress(ctx, local, current.Token, draft.Domain)
	if err != nil {
		m.logger.Warnw("rename failed",
			"address", current.Address,
			"local_part", local,
			"domain", draft.Domain,
			"error", err,
		)
		return model.Session{}, errors.Wrap(err, "renaming address")
	}

	renamed := model.Session{Address: alloc.Address, Token: alloc.Token}
	if renamed.Token == "" {
		renamed.Token = current.Token
	}

	m.notify(model.Session{})
	if err := m.store.SaveSession(ctx, renamed); err != nil {
		// The provider already moved; keep polling the old identity
		// rather than none.
		m.notify(current)
		return model.Session{}, errors.Wrap(err, "saving renamed session")
	}

	m.logger.Infow("renamed mailbox", "from", current.Address, "to", renamed.Address)
	m.activate(renamed)
	return renamed, nil
}

// Cancel discards the draft and returns to Active without a network call.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateEditing {
		return ErrNotEditing
	}
	m.draft = Draft{}
	m.state = StateActive
	return nil
}

// Invalidate asks the provider to forget the mailbox, then clears the
// stored identity and inbox whatever the provider answered, and
// allocates a replacement. A provider failure on the forget call is
// logged and does not block the replacement. An allocation failure is
// returned and leaves the manager Uninitialized, so Start can retry.
func (m *Manager) Invalidate(ctx context.Context) (model.Session, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.state == StateUninitialized {
		m.mu.Unlock()
		return model.Session{}, ErrNotActive
	}
	old := m.session
	m.mu.Unlock()

	ok, err := m.gateway.InvalidateSession(ctx, old.Token, old.Address)
	switch {
	case err != nil:
		m.logger.Warnw("provider forget failed; clearing locally anyway",
			"address", old.Address,
			"error", err,
		)
	case !ok:
		m.logger.Warnw("provider declined forget; clearing locally anyway",
			"address", old.Address,
		)
	}

	m.mu.Lock()
	m.state = StateUninitialized
	m.session = model.Session{}
	m.draft = Draft{}
	m.mu.Unlock()
	m.notify(model.Session{})

	if err := m.store.ClearSession(ctx); err != nil {
		return model.Session{}, errors.Wrap(err, "clearing session")
	}
	m.logger.Infow("forgot mailbox", "address", old.Address)

	return m.allocate(ctx)
}

// Refresh re-requests the mailbox the current token owns. If the
// provider answers with a different address the old identity expired
// server side and the answer replaces it with an empty inbox; the same
// address with a new token only updates the stored token.
func (m *Manager) Refresh(ctx context.Context) (model.Session, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return model.Session{}, ErrNotActive
	}
	current := m.session
	m.mu.Unlock()

	alloc, err := m.gateway.AllocateAddress(ctx, current.Token)
	if err != nil {
		return model.Session{}, errors.Wrap(err, "refreshing address")
	}
	fresh := model.Session{Address: alloc.Address, Token: alloc.Token}

	switch {
	case fresh == current:
		return current, nil

	case strings.EqualFold(fresh.Address, current.Address):
		if err := m.store.UpdateToken(ctx, fresh.Token); err != nil {
			return model.Session{}, errors.Wrap(err, "saving refreshed token")
		}
		m.logger.Infow("refreshed mailbox token", "address", fresh.Address)
		fresh.Address = current.Address
		m.activate(fresh)
		return fresh, nil

	default:
		m.notify(model.Session{})
		if err := m.store.SaveSession(ctx, fresh); err != nil {
			m.notify(current)
			return model.Session{}, errors.Wrap(err, "saving replacement session")
		}
		m.logger.Infow("mailbox expired; provider assigned a new one",
			"from", current.Address,
			"to", fresh.Address,
		)
		m.activate(fresh)
		return fresh, nil
	}
}
