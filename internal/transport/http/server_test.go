package statushttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"levelbot/internal/ratebudget"
	"levelbot/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type fakeSession struct {
	snap  session.Snapshot
	exits int
}

func (f *fakeSession) Snapshot() session.Snapshot { return f.snap }

func (f *fakeSession) EmergencyExit(ctx context.Context) error {
	f.exits++
	return nil
}

func newTestServer(t *testing.T, fs *fakeSession) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Session: fs,
		Usage: func() ratebudget.Usage {
			return ratebudget.Usage{InWindow: 12, Ceiling: 95, PercentUsed: 12.6, SessionTotal: 240}
		},
	})
	require.NoError(t, err)
	return srv
}

func TestStatusEndpoint(t *testing.T) {
	fs := &fakeSession{snap: session.Snapshot{State: session.StateAwaitingSignal, Day: "2026-08-28"}}
	srv := newTestServer(t, fs)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "awaiting_signal", gjson.Get(body, "session.state").String())
	assert.Equal(t, int64(12), gjson.Get(body, "budget.in_window").Int())
	assert.Equal(t, int64(95), gjson.Get(body, "budget.ceiling").Int())
}

func TestEmergencyExitEndpoint(t *testing.T) {
	fs := &fakeSession{}
	srv := newTestServer(t, fs)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/emergency-exit", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fs.exits)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &fakeSession{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequiresSession(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	require.Error(t, err)
}
