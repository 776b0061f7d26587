// Package storage persists the session bearer token between client runs.
//
// Exactly one value is kept, under TokenKey. Writing a token always
// supersedes the previous one and Delete is the only way to fully log out.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// TokenKey is the well-known key the bearer token is stored under.
const TokenKey = "authToken"

// TokenStore is a single-value key-value store for the bearer token.
type TokenStore interface {
	// Get returns the stored token. found is false when no token is stored.
	Get(ctx context.Context) (token string, found bool, err error)
	// Set stores token, replacing any previous value.
	Set(ctx context.Context, token string) error
	// Delete removes the token. Deleting a missing token is not an error.
	Delete(ctx context.Context) error
}

// fileState is the on-disk layout of a FileStore.
type fileState struct {
	Token  string `json:"authToken,omitempty"`
	Salt   string `json:"salt,omitempty"`
	Sealed bool   `json:"sealed,omitempty"`
}

// FileStore keeps the token in a JSON file on the local disk.
// When a passphrase is configured the token is sealed at rest.
type FileStore struct {
	path       string
	passphrase []byte
	mu         sync.Mutex
}

// NewFileStore returns a FileStore writing to path. An empty passphrase
// stores the token in clear text.
func NewFileStore(path, passphrase string) *FileStore {
	fs := &FileStore{path: path}
	if passphrase != "" {
		fs.passphrase = []byte(passphrase)
	}
	return fs
}

// Get implements TokenStore.
func (fs *FileStore) Get(_ context.Context) (string, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	st, err := fs.load()
	if err != nil {
		return "", false, err
	}
	if st.Token == "" {
		return "", false, nil
	}
	if !st.Sealed {
		return st.Token, true, nil
	}
	if fs.passphrase == nil {
		return "", false, ErrPassphraseRequired
	}
	plain, err := openToken(fs.passphrase, st.Salt, st.Token)
	if err != nil {
		return "", false, err
	}
	return plain, true, nil
}

// Set implements TokenStore.
func (fs *FileStore) Set(_ context.Context, token string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	st := fileState{Token: token}
	if fs.passphrase != nil {
		salt, sealed, err := sealToken(fs.passphrase, token)
		if err != nil {
			return err
		}
		st = fileState{Token: sealed, Salt: salt, Sealed: true}
	}
	return fs.save(st)
}

// Delete implements TokenStore.
func (fs *FileStore) Delete(_ context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

func (fs *FileStore) load() (fileState, error) {
	var st fileState
	f, err := os.Open(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return st, fmt.Errorf("decode token file: %w", err)
	}
	return st, nil
}

// save writes through a temp file so a crash never leaves a torn token.
func (fs *FileStore) save(st fileState) error {
	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(st); err != nil {
		tmp.Close()
		return fmt.Errorf("encode token file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), fs.path)
}

// MemoryStore keeps the token in process memory only.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
	set   bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get implements TokenStore.
func (m *MemoryStore) Get(_ context.Context) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.set, nil
}

// Set implements TokenStore.
func (m *MemoryStore) Set(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.set = token, true
	return nil
}

// Delete implements TokenStore.
func (m *MemoryStore) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.set = "", false
	return nil
}
