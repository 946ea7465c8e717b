package store

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "state.json"))
	require.NoError(t, err)
	return s
}

func TestStore_MissingFileIsEmpty(t *testing.T) {
	s := newStore(t)

	key, err := s.Credential("gemini")
	require.NoError(t, err)
	assert.Empty(t, key)

	ex, err := s.LastExchange()
	require.NoError(t, err)
	assert.Nil(t, ex)
}

func TestStore_CredentialRoundTrip(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.SetCredential("gemini", "g-key"))
	require.NoError(t, s.SetCredential("claude", "c-key"))

	key, err := s.Credential("gemini")
	require.NoError(t, err)
	assert.Equal(t, "g-key", key)

	all, err := s.Credentials()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"gemini": "g-key", "claude": "c-key"}, all)

	require.NoError(t, s.SetCredential("gemini", ""))
	key, err = s.Credential("gemini")
	require.NoError(t, err)
	assert.Empty(t, key, "empty key removes the entry")
}

func TestStore_RejectsEmptyProvider(t *testing.T) {
	s := newStore(t)
	assert.Error(t, s.SetCredential("", "k"))
}

func TestStore_FilePermissionsAndShape(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetCredential("openai", "o-key"))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"credentials":{"openai":"o-key"}}`, string(data))
}

func TestStore_ExchangeKeepsCredentials(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetCredential("gemini", "g-key"))

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.SaveExchange(Exchange{Provider: "gemini", Model: "m", Request: "req", Response: "resp", At: at}))
	require.NoError(t, s.SaveExchange(Exchange{Provider: "gemini", Model: "m", Request: "req2", Error: "boom"}))

	ex, err := s.LastExchange()
	require.NoError(t, err)
	require.NotNil(t, ex)
	assert.Equal(t, "req2", ex.Request)
	assert.Equal(t, "boom", ex.Error)
	assert.False(t, ex.At.IsZero(), "timestamp is filled in")

	key, err := s.Credential("gemini")
	require.NoError(t, err)
	assert.Equal(t, "g-key", key)
}

func TestStore_ClearExchangeKeepsCredentials(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetCredential("openai", "o-key"))
	require.NoError(t, s.SaveExchange(Exchange{Provider: "openai", Request: "req", Response: "resp"}))

	require.NoError(t, s.ClearExchange())

	ex, err := s.LastExchange()
	require.NoError(t, err)
	assert.Nil(t, ex)
	key, err := s.Credential("openai")
	require.NoError(t, err)
	assert.Equal(t, "o-key", key)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "lastExchange")

	require.NoError(t, newStore(t).ClearExchange(), "clearing an empty store is fine")
}

func TestStore_CorruptFile(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o700))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o600))

	_, err := s.Credential("gemini")
	assert.Error(t, err)
}

func TestStore_ConcurrentWrites(t *testing.T) {
	s := newStore(t)

	var wg sync.WaitGroup
	for _, p := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.SetCredential(p, strings.ToUpper(p)))
		}()
	}
	wg.Wait()

	all, err := s.Credentials()
	require.NoError(t, err)
	assert.Len(t, all, 8)
}

func TestOpen_ExpandsHome(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)

	home, err := homedir.Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".formfill", "state.json"), s.Path())
}
