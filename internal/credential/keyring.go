package credential

import (
	"os"

	"github.com/99designs/keyring"
	"github.com/cockroachdb/errors"
)

const serviceName = "tempmail"

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("credential not found")

// Vault stores secret values by key.
type Vault struct {
	ring keyring.Keyring
}

// Open returns a vault backed by the system keyring, falling back to an
// encrypted file under fileDir.
func Open(fileDir string) (*Vault, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt("tempmail-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening keyring")
	}
	return &Vault{ring: ring}, nil
}

// NewVault wraps an already opened keyring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// Get retrieves a credential value by key.
func (v *Vault) Get(key string) (string, error) {
	item, err := v.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "getting credential %q", key)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (v *Vault) Set(key string, value string) error {
	err := v.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return errors.Wrapf(err, "setting credential %q", key)
	}
	return nil
}

// Delete removes a credential by key. Deleting a missing key is not an error;
// the file backend reports one as a plain not-exist error.
func (v *Vault) Delete(key string) error {
	err := v.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "deleting credential %q", key)
	}
	return nil
}
