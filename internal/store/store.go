package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
)

// DefaultPath is where state lives unless configured otherwise
const DefaultPath = "~/.formfill/state.json"

// Exchange is one request/response round trip with the data provider, kept
// for diagnostics.
type Exchange struct {
	RunID    string    `json:"runId,omitempty"`
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	Request  string    `json:"request"`
	Response string    `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

type state struct {
	Credentials  map[string]string `json:"credentials,omitempty"`
	LastExchange *Exchange         `json:"lastExchange,omitempty"`
}

// Store is a small JSON file holding provider keys and the last exchange
type Store struct {
	mu   sync.Mutex
	path string
}

// Open returns a store backed by path. The file is created on first write.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand store path %q: %w", path, err)
	}
	return &Store{path: expanded}, nil
}

// Path returns the resolved file location
func (s *Store) Path() string {
	return s.path
}

// Credential returns the key saved for provider, or "" when there is none
func (s *Store) Credential(provider string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return "", err
	}
	return st.Credentials[provider], nil
}

// Credentials returns a copy of every saved key
func (s *Store) Credentials() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(st.Credentials))
	for k, v := range st.Credentials {
		out[k] = v
	}
	return out, nil
}

// SetCredential saves key for provider. An empty key removes it.
func (s *Store) SetCredential(provider, key string) error {
	if provider == "" {
		return errors.New("provider name is required")
	}
	return s.update(func(st *state) {
		if key == "" {
			delete(st.Credentials, provider)
			return
		}
		if st.Credentials == nil {
			st.Credentials = map[string]string{}
		}
		st.Credentials[provider] = key
	})
}

// SaveExchange replaces the recorded exchange
func (s *Store) SaveExchange(ex Exchange) error {
	if ex.At.IsZero() {
		ex.At = time.Now().UTC()
	}
	return s.update(func(st *state) {
		st.LastExchange = &ex
	})
}

// ClearExchange forgets the recorded exchange and keeps the credentials
func (s *Store) ClearExchange() error {
	return s.update(func(st *state) {
		st.LastExchange = nil
	})
}

// LastExchange returns the recorded exchange, or nil
func (s *Store) LastExchange() (*Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return nil, err
	}
	return st.LastExchange, nil
}

func (s *Store) update(fn func(*state)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	fn(&st)
	return s.save(st)
}

func (s *Store) load() (state, error) {
	var st state
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("read store: %w", err)
	}
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("decode store %s: %w", s.path, err)
	}
	return st, nil
}

// save writes through a temp file so a crash never leaves half a file behind
func (s *Store) save(st state) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
