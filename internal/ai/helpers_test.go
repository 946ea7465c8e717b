package ai

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/v0xg/formfill/internal/form"
	"github.com/v0xg/formfill/internal/store"
)

var sampleFields = []form.FieldDescriptor{
	{Name: "email", Kind: form.KindText, Label: "Email"},
	{Name: "state", Kind: form.KindSelect, Label: "State", Options: []string{"CA", "NY"}},
}

const sampleFormData = `{"formData":[{"name":"email","value":"a@b.com"},{"name":"state","value":"CA"}]}`

var sampleValues = []form.FilledValue{
	{Name: "email", Value: "a@b.com"},
	{Name: "state", Value: "CA"},
}

// fakeAPI is a provider endpoint that records what it was sent
type fakeAPI struct {
	*httptest.Server
	hits   atomic.Int32
	mu     sync.Mutex
	header http.Header
	body   map[string]any
}

func newFakeAPI(t *testing.T, status int, response string) *fakeAPI {
	t.Helper()
	api := &fakeAPI{}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.hits.Add(1)
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		api.mu.Lock()
		api.header = r.Header.Clone()
		api.body = body
		api.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(api.Close)
	return api
}

func (a *fakeAPI) lastBody() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.body
}

func (a *fakeAPI) lastHeader() http.Header {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.header
}

func testOptions(api *fakeAPI) Options {
	return Options{
		BaseURL:     api.URL,
		Timeout:     5 * time.Second,
		Credentials: StaticCredential("test-key"),
		HTTPClient:  api.Client(),
	}
}

type memRecorder struct {
	mu        sync.Mutex
	exchanges []store.Exchange
}

func (m *memRecorder) SaveExchange(ex store.Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = append(m.exchanges, ex)
	return nil
}

func (m *memRecorder) last(t *testing.T) store.Exchange {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.exchanges)
	return m.exchanges[len(m.exchanges)-1]
}

func jsonString(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
