package authflow

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/trackfit/trackfit/pkg/models"
)

const (
	// KeyToken holds the session token.
	KeyToken = "bearer_token"

	// KeyUser holds the JSON encoded identity of the session.
	KeyUser = "user"
)

// ErrNoValue is returned by Storage.Get for keys that aren't set.
var ErrNoValue = errors.New("no value for key")

// Storage is durable client side key/value storage that outlives a
// single run of the flow, like a browser's localStorage.
type Storage interface {
	Get(key string) (string, error)
	Set(key, val string) error
}

// MemStorage is a Storage that only lives as long as the process.
type MemStorage struct {
	mu   sync.RWMutex
	vals map[string]string
}

// NewMemStorage returns an empty MemStorage.
func NewMemStorage() *MemStorage {
	return &MemStorage{vals: make(map[string]string)}
}

// Get returns the value for key.
func (m *MemStorage) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.vals[key]
	if !ok {
		return "", ErrNoValue
	}
	return v, nil
}

// Set sets the value for key.
func (m *MemStorage) Set(key, val string) error {
	m.mu.Lock()
	m.vals[key] = val
	m.mu.Unlock()
	return nil
}

// FileStorage is a Storage persisted as a JSON object in a file.
type FileStorage struct {
	mu   sync.Mutex
	path string
}

// NewFileStorage returns a FileStorage backed by path. The file
// is created on the first Set.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Get returns the value for key.
func (f *FileStorage) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	vals, err := f.load()
	if err != nil {
		return "", err
	}

	v, ok := vals[key]
	if !ok {
		return "", ErrNoValue
	}
	return v, nil
}

// Set sets the value for key and writes the file.
func (f *FileStorage) Set(key, val string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	vals, err := f.load()
	if err != nil {
		return err
	}
	vals[key] = val

	b, err := json.MarshalIndent(vals, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}

	// Write to a temp file and rename so that a crash never leaves
	// a truncated file behind.
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStorage) load() (map[string]string, error) {
	vals := make(map[string]string)

	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return vals, nil
		}
		return nil, err
	}

	if len(b) == 0 {
		return vals, nil
	}
	if err := json.Unmarshal(b, &vals); err != nil {
		return nil, err
	}
	return vals, nil
}

// SaveSession writes a session's token and identity to s.
func SaveSession(s Storage, sess Session) error {
	if err := s.Set(KeyToken, sess.Token); err != nil {
		return err
	}

	b, err := json.Marshal(sess.User)
	if err != nil {
		return err
	}
	return s.Set(KeyUser, string(b))
}

// LoadUser returns the identity saved in s.
func LoadUser(s Storage) (models.User, error) {
	var u models.User

	v, err := s.Get(KeyUser)
	if err != nil {
		return u, err
	}

	err = json.Unmarshal([]byte(v), &u)
	return u, err
}
