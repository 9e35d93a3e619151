package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasfsr/gymlog/src/bot"
	"github.com/thomasfsr/gymlog/src/database"
	"github.com/thomasfsr/gymlog/src/menu"
	"github.com/thomasfsr/gymlog/src/session"
)

type fakeDep struct {
	ready bool
	err   error
}

func (d fakeDep) Ready() bool                  { return d.ready }
func (d fakeDep) Ping(_ context.Context) error { return d.err }

type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, ev bot.Event) *bot.Response {
	if ev.Kind == bot.KindText {
		return nil
	}
	return &bot.Response{Text: "got " + ev.Command + ev.Payload}
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		deps   map[string]Dependency
		status int
		report map[string]string
	}{
		{"ok", map[string]Dependency{"database": fakeDep{ready: true}}, http.StatusOK, map[string]string{"database": "ok"}},
		{"not ready", map[string]Dependency{"database": fakeDep{}}, http.StatusServiceUnavailable, map[string]string{"database": "not ready"}},
		{
			"ping fails",
			map[string]Dependency{"database": fakeDep{ready: true}, "sessions": fakeDep{ready: true, err: errors.New("dial tcp: refused")}},
			http.StatusServiceUnavailable,
			map[string]string{"database": "ok", "sessions": "dial tcp: refused"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, NewRouter(nil, tt.deps, Options{Logger: zerolog.Nop()}), http.MethodGet, "/healthz", "", nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var got map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.report, got)
		})
	}
}

func TestEventsWithoutHandler(t *testing.T) {
	rec := do(t, NewRouter(nil, nil, Options{}), http.MethodPost, "/v1/events", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents(t *testing.T) {
	h := NewRouter(echoHandler{}, nil, Options{Logger: zerolog.Nop()})

	rec := do(t, h, http.MethodPost, "/v1/events", `{"user_id":1,"kind":"command","command":"start"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":"got start"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/events", `{"user_id":1,"kind":"text","text":"hi"}`, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestEventsRejectsBadInput(t *testing.T) {
	h := NewRouter(echoHandler{}, nil, Options{Logger: zerolog.Nop()})
	tests := []struct {
		body string
		want string
	}{
		{`not json`, "invalid event"},
		{`{"kind":"text","text":"x"}`, "user_id must be positive"},
		{`{"user_id":1,"kind":"voice"}`, "unknown event kind"},
		{`{"user_id":1,"kind":"file"}`, "file event without file"},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodPost, "/v1/events", tt.body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tt.body)
		assert.Contains(t, rec.Body.String(), tt.want, tt.body)
	}
}

func TestBearerToken(t *testing.T) {
	h := NewRouter(echoHandler{}, map[string]Dependency{"database": fakeDep{ready: true}}, Options{Token: "s3cret", Logger: zerolog.Nop()})
	body := `{"user_id":1,"kind":"button","payload":"my_workouts"}`

	rec := do(t, h, http.MethodPost, "/v1/events", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/events", body, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/events", body, map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// health stays open
	rec = do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventsDriveBot(t *testing.T) {
	db, err := database.NewSQLite(":memory:", 5*time.Second, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.InitSchema(context.Background()))

	b := bot.New(db, session.NewMemoryStore(), bot.WithLogger(zerolog.Nop()))
	h := NewRouter(b, map[string]Dependency{"database": db}, Options{Logger: zerolog.Nop()})

	send := func(body string) bot.Response {
		t.Helper()
		rec := do(t, h, http.MethodPost, "/v1/events", body, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp bot.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	resp := send(`{"user_id":42,"name":"Anna","kind":"command","command":"start"}`)
	assert.Equal(t, menu.Main(), resp.Options)

	resp = send(`{"user_id":42,"kind":"button","payload":"new_workout"}`)
	assert.Contains(t, resp.Options, menu.Option{Label: "Грудь", Payload: menu.SelectMuscleGroup("Грудь")})

	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
