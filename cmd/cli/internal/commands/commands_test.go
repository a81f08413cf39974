package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/jobcrew/internal/session"
)

// fakeAPI is a minimal JobCrew auth API.
type fakeAPI struct {
	mu      sync.Mutex
	access  string
	refresh string
	expired bool
	calls   map[string]int

	rejectCrewsOnce bool
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()

	api := &fakeAPI{access: "T1", refresh: "R1", calls: map[string]int{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		api.count("login")

		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "secret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"A001","message":"bad credentials","status":401}`))
			return
		}

		api.mu.Lock()
		defer api.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "Refresh", Value: api.refresh, Path: "/", HttpOnly: true, MaxAge: 3600})
		w.Header().Set("Authorization", "Bearer "+api.access)
		_, _ = w.Write([]byte(`{"completed":true}`))
	})
	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		api.count("refresh")

		api.mu.Lock()
		defer api.mu.Unlock()
		cookie, err := r.Cookie("Refresh")
		if err != nil || cookie.Value != api.refresh {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		api.access = "T2"
		api.expired = false
		w.Header().Set("Authorization", "Bearer "+api.access)
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		api.count("logout")
		http.SetCookie(w, &http.Cookie{Name: "Refresh", Value: "", Path: "/", MaxAge: -1})
	})
	mux.HandleFunc("GET /api/members/me", func(w http.ResponseWriter, r *http.Request) {
		api.count("me")
		if !api.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":7,"membername":"crewmate","email":"crew@example.com","nickname":"Crew","role":"USER"}`))
	})
	mux.HandleFunc("/api/crews", func(w http.ResponseWriter, r *http.Request) {
		api.count("crews")
		if api.takeRejection() || !api.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "trace-me", r.Header.Get("X-Trace"))
		_, _ = w.Write([]byte(`[{"id":1,"name":"Go study"}]`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return api, srv
}

func (a *fakeAPI) count(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[name]++
}

func (a *fakeAPI) calledTimes(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[name]
}

func (a *fakeAPI) authorized(r *http.Request) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.expired && r.Header.Get("Authorization") == "Bearer "+a.access
}

func (a *fakeAPI) takeRejection() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rejectCrewsOnce {
		a.rejectCrewsOnce = false
		return true
	}
	return false
}

func (a *fakeAPI) expireAccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expired = true
}

func testGlobals(t *testing.T, server string) (*Globals, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	return &Globals{
		Server:     server,
		SessionDir: t.TempDir(),
		Stdout:     &stdout,
		Stderr:     &stderr,
	}, &stdout, &stderr
}

func login(t *testing.T, globals *Globals) {
	t.Helper()
	cmd := &LoginCmd{Email: "crew@example.com", Password: "secret"}
	require.NoError(t, cmd.Run(context.Background(), globals))
}

func TestLoginCmd_Success(t *testing.T) {
	_, srv := newFakeAPI(t)
	globals, stdout, _ := testGlobals(t, srv.URL)

	login(t, globals)
	assert.Equal(t, "Logged in as crewmate (ID 7)\n", stdout.String())

	// Session and cookie are on disk
	storage, err := session.NewFileStorage(globals.SessionDir)
	require.NoError(t, err)
	token, ok, err := storage.Get(session.TokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "T1", token)

	_, err = os.Stat(filepath.Join(globals.SessionDir, cookieFile))
	require.NoError(t, err)
}

func TestLoginCmd_Rejected(t *testing.T) {
	_, srv := newFakeAPI(t)
	globals, _, _ := testGlobals(t, srv.URL)

	cmd := &LoginCmd{Email: "crew@example.com", Password: "wrong"}
	err := cmd.Run(context.Background(), globals)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login rejected")
	assert.Contains(t, err.Error(), "A001")
}

func TestWhoamiCmd(t *testing.T) {
	_, srv := newFakeAPI(t)
	globals, stdout, _ := testGlobals(t, srv.URL)
	login(t, globals)
	stdout.Reset()

	require.NoError(t, (&WhoamiCmd{}).Run(context.Background(), globals))
	assert.Contains(t, stdout.String(), "crewmate")
	assert.Contains(t, stdout.String(), "Crew")
	assert.Contains(t, stdout.String(), session.Fingerprint("T1"))
	assert.NotContains(t, stdout.String(), "T1\n")

	stdout.Reset()
	require.NoError(t, (&WhoamiCmd{JSON: true}).Run(context.Background(), globals))
	assert.JSONEq(t, `{"id":7,"membername":"crewmate","email":"crew@example.com","nickname":"Crew","role":"USER"}`, stdout.String())
}

func TestWhoamiCmd_NotLoggedIn(t *testing.T) {
	_, srv := newFakeAPI(t)
	globals, _, _ := testGlobals(t, srv.URL)

	err := (&WhoamiCmd{}).Run(context.Background(), globals)
	assert.ErrorIs(t, err, session.ErrNotLoggedIn)
}

func TestWhoamiCmd_ExpiredSession(t *testing.T) {
	api, srv := newFakeAPI(t)
	globals, _, stderr := testGlobals(t, srv.URL)
	login(t, globals)

	api.expireAccess()

	err := (&WhoamiCmd{}).Run(context.Background(), globals)
	assert.ErrorIs(t, err, session.ErrNotLoggedIn)
	assert.Contains(t, stderr.String(), session.ExpiredNotice)
	assert.Contains(t, stderr.String(), "Sign in again at "+srv.URL+"/test-login.html")
	assert.Equal(t, 1, api.calledTimes("logout"))
}

func TestRequestCmd_RefreshesOnce(t *testing.T) {
	api, srv := newFakeAPI(t)
	globals, stdout, _ := testGlobals(t, srv.URL)
	login(t, globals)
	stdout.Reset()

	// The access token expires after startup validation
	api.mu.Lock()
	api.rejectCrewsOnce = true
	api.mu.Unlock()

	cmd := &RequestCmd{Method: "get", Path: "/api/crews", Header: []string{"X-Trace: trace-me"}}
	require.NoError(t, cmd.Run(context.Background(), globals))

	assert.JSONEq(t, `[{"id":1,"name":"Go study"}]`, stdout.String())
	assert.Equal(t, 1, api.calledTimes("refresh"))
	assert.Equal(t, 2, api.calledTimes("crews"))
}

func TestRequestCmd_Success(t *testing.T) {
	api, srv := newFakeAPI(t)
	globals, stdout, stderr := testGlobals(t, srv.URL)
	login(t, globals)
	stdout.Reset()

	cmd := &RequestCmd{Method: "GET", Path: "/api/crews", Header: []string{"X-Trace: trace-me"}}
	require.NoError(t, cmd.Run(context.Background(), globals))

	assert.JSONEq(t, `[{"id":1,"name":"Go study"}]`, stdout.String())
	assert.Contains(t, stderr.String(), "200 OK")
	assert.Equal(t, 1, api.calledTimes("crews"))
}

func TestRequestCmd_InvalidHeader(t *testing.T) {
	globals, _, _ := testGlobals(t, "http://127.0.0.1:1")

	cmd := &RequestCmd{Method: "GET", Path: "/api/crews", Header: []string{"no-colon"}}
	err := cmd.Run(context.Background(), globals)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected Name:Value")
}

func TestRefreshCmd(t *testing.T) {
	api, srv := newFakeAPI(t)
	globals, stdout, _ := testGlobals(t, srv.URL)
	login(t, globals)
	stdout.Reset()

	// The refresh cookie comes from disk in a fresh process
	require.NoError(t, (&RefreshCmd{}).Run(context.Background(), globals))
	assert.Contains(t, stdout.String(), session.Fingerprint("T2"))
	assert.Equal(t, 1, api.calledTimes("refresh"))

	storage, err := session.NewFileStorage(globals.SessionDir)
	require.NoError(t, err)
	token, _, err := storage.Get(session.TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "T2", token)
}

func TestStatusCmd(t *testing.T) {
	_, srv := newFakeAPI(t)
	globals, stdout, _ := testGlobals(t, srv.URL)

	require.NoError(t, (&StatusCmd{Page: "/test-info.html"}).Run(context.Background(), globals))
	assert.Contains(t, stdout.String(), "Status: Login required")
	assert.Contains(t, stdout.String(), "Home / User info test")

	login(t, globals)
	stdout.Reset()

	require.NoError(t, (&StatusCmd{Page: "/"}).Run(context.Background(), globals))
	assert.Contains(t, stdout.String(), "Status: Logged in")
	assert.Contains(t, stdout.String(), "User: crewmate")
	assert.Contains(t, stdout.String(), "Home / Main page")
}

func TestLogoutCmd(t *testing.T) {
	api, srv := newFakeAPI(t)
	globals, stdout, stderr := testGlobals(t, srv.URL)
	login(t, globals)
	stdout.Reset()

	require.NoError(t, (&LogoutCmd{}).Run(context.Background(), globals))
	assert.Equal(t, "Logged out.\n", stdout.String())
	assert.Contains(t, stderr.String(), "Sign in again at "+srv.URL+"/test-login.html")
	assert.Equal(t, 1, api.calledTimes("logout"))

	_, err := os.Stat(filepath.Join(globals.SessionDir, cookieFile))
	assert.True(t, os.IsNotExist(err))

	stdout.Reset()
	require.NoError(t, (&LogoutCmd{}).Run(context.Background(), globals))
	assert.Equal(t, "Not logged in.\n", stdout.String())
}

func TestGlobals_Settings(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "jobcrew.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: https://file.example.com\nsign_in_path: /login\ntimeout_seconds: 5\n"), 0600))

	globals := &Globals{Config: configPath}
	settings, err := globals.settings()
	require.NoError(t, err)
	assert.Equal(t, "https://file.example.com", settings.Server)
	assert.Equal(t, "/login", settings.SignInPath)
	assert.Equal(t, 5, settings.TimeoutSeconds)

	globals.Server = "https://flag.example.com"
	settings, err = globals.settings()
	require.NoError(t, err)
	assert.Equal(t, "https://flag.example.com", settings.Server)
}

func TestOpenSession_Ephemeral(t *testing.T) {
	_, srv := newFakeAPI(t)
	globals, _, _ := testGlobals(t, srv.URL)
	globals.Ephemeral = true

	login(t, globals)

	entries, err := os.ReadDir(globals.SessionDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
