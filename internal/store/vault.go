package store

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/nhle/tempmail/internal/credential"
	"github.com/nhle/tempmail/internal/model"
)

// tokenPlaceholder is written to the token key when the real token lives
// in the vault.
const tokenPlaceholder = "@vault"

// vaultTokenKey is the vault key holding the session token.
const vaultTokenKey = "sid_token"

// TokenVault is the subset of credential.Vault the store needs.
type TokenVault interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

var _ TokenVault = (*credential.Vault)(nil)

// VaultStore is a SessionStore that keeps the session token in a
// TokenVault instead of the database. The address and inbox stay in the
// wrapped SQLiteStore.
type VaultStore struct {
	*SQLiteStore
	vault TokenVault
}

var _ SessionStore = (*VaultStore)(nil)

// NewVaultStore wraps base so that tokens are stored in vault.
func NewVaultStore(base *SQLiteStore, vault TokenVault) *VaultStore {
	return &VaultStore{SQLiteStore: base, vault: vault}
}

// LoadSession returns the stored identity. If the vault lost the token
// the database half is discarded so the identity never appears half set.
func (s *VaultStore) LoadSession(ctx context.Context) (*model.Session, error) {
	sess, err := s.SQLiteStore.LoadSession(ctx)
	if err != nil || sess == nil {
		return sess, err
	}

	token, err := s.vault.Get(vaultTokenKey)
	if errors.Is(err, credential.ErrNotFound) || (err == nil && token == "") {
		if clearErr := s.SQLiteStore.ClearSession(ctx); clearErr != nil {
			return nil, clearErr
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sess.Token = token
	return sess, nil
}

// SaveSession stores the token in the vault, then the address with a
// placeholder token and an empty inbox.
func (s *VaultStore) SaveSession(ctx context.Context, sess model.Session) error {
	if !sess.Valid() {
		return errors.New("session must have both address and token")
	}
	if err := s.vault.Set(vaultTokenKey, sess.Token); err != nil {
		return err
	}
	return s.SQLiteStore.SaveSession(ctx, model.Session{
		Address: sess.Address,
		Token:   tokenPlaceholder,
	})
}

// UpdateToken replaces the vault token of the stored session.
func (s *VaultStore) UpdateToken(ctx context.Context, token string) error {
	sess, err := s.SQLiteStore.LoadSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrNoSession
	}
	if token == "" {
		return errors.New("token must not be empty")
	}
	return s.vault.Set(vaultTokenKey, token)
}

// ClearSession removes the database rows first, then the vault token.
func (s *VaultStore) ClearSession(ctx context.Context) error {
	if err := s.SQLiteStore.ClearSession(ctx); err != nil {
		return err
	}
	return s.vault.Delete(vaultTokenKey)
}
