package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/wolfeidau/jobcrew/internal/telemetry"
)

// JobCrew API endpoints, relative to the base URL.
const (
	LoginPath   = "/api/auth/login"
	LogoutPath  = "/api/auth/logout"
	RefreshPath = "/api/auth/refresh"
	MePath      = "/api/members/me"

	// DefaultSignInPath is where the host is sent after a logout.
	DefaultSignInPath = "/test-login.html"
)

var tracer = otel.Tracer("github.com/wolfeidau/jobcrew/internal/session")

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient sets the client used for every call. Its cookie jar carries
// the refresh cookie, so it should have one.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) {
		s.client = client
	}
}

// WithSignInPath sets the page the host navigates to after logout.
func WithSignInPath(path string) Option {
	return func(s *Store) {
		s.signInPath = path
	}
}

// WithHost sets the host callbacks.
func WithHost(host Host) Option {
	return func(s *Store) {
		s.host = host
	}
}

// Store holds the current user and access token, mirrors them to durable
// storage and sends authenticated requests on their behalf.
//
// The user and token are always set and cleared together.
type Store struct {
	storage    Storage
	client     *http.Client
	baseURL    *url.URL
	signInPath string
	host       Host

	mu    sync.RWMutex
	user  *User
	token string

	refreshGroup singleflight.Group
}

// New creates a store for the API at baseURL. The store starts empty; call
// Restore or Startup to load a persisted session.
func New(storage Storage, baseURL string, options ...Option) (*Store, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
	}

	s := &Store{
		storage:    storage,
		baseURL:    base,
		signInPath: DefaultSignInPath,
		host:       nopHost{},
	}

	for _, opt := range options {
		opt(s)
	}

	if s.client == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		s.client = &http.Client{Jar: jar}
	}

	return s, nil
}

// Restore loads the persisted session. It returns false, leaving the store
// untouched, when either value is missing or unreadable.
func (s *Store) Restore() bool {
	rawUser, hasUser, err := s.storage.Get(UserKey)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read stored user")
		return false
	}

	token, hasToken, err := s.storage.Get(TokenKey)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read stored access token")
		return false
	}

	if !hasUser || !hasToken || rawUser == "" || token == "" {
		log.Debug().Msg("no stored session")
		return false
	}

	var user User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		log.Warn().Err(err).Msg("stored user record is unreadable")
		return false
	}

	s.mu.Lock()
	s.user = &user
	s.token = token
	s.mu.Unlock()

	log.Debug().
		Str("user", user.DisplayName()).
		Str("fingerprint", Fingerprint(token)).
		Msg("session restored")

	return true
}

// Save replaces the session and persists it. Persistence is best-effort: a
// storage failure is logged and the in-memory session stays authoritative.
// An empty token clears the session instead.
func (s *Store) Save(user User, token string) {
	if token == "" {
		log.Warn().Msg("refusing to save a session without a token, clearing instead")
		s.Clear()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = &user
	s.token = token
	s.persistLocked()
}

// persistLocked writes the in-memory pair to storage. Callers hold mu.
func (s *Store) persistLocked() {
	data, err := json.Marshal(s.user)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode user record, session kept in memory only")
		return
	}

	if err := s.storage.Set(UserKey, string(data)); err != nil {
		log.Warn().Err(err).Msg("failed to persist user record, session kept in memory only")
		return
	}

	if err := s.storage.Set(TokenKey, s.token); err != nil {
		log.Warn().Err(err).Msg("failed to persist access token, session kept in memory only")

		// The stored token belongs to an older session, so drop the user
		// record rather than pair it with that token.
		if err := s.storage.Remove(UserKey); err != nil {
			log.Warn().Err(err).Msg("failed to remove stored user record")
		}
	}
}

// Clear empties the session and removes it from storage.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	s.token = ""

	for _, key := range []string{UserKey, TokenKey} {
		if err := s.storage.Remove(key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to remove stored session value")
		}
	}
}

// IsLoggedIn reports whether both a user and a token are held.
func (s *Store) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.token != ""
}

// CurrentUser returns the held user record.
func (s *Store) CurrentUser() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Token returns the held access token, or an empty string.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Snapshot returns a copy of the session for rendering.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{LoggedIn: s.user != nil && s.token != ""}
	if s.user != nil {
		snap.User = *s.user
	}
	return snap
}

// AuthHeaders returns the headers added to every authenticated call. The
// Authorization header is only present while a token is held.
func (s *Store) AuthHeaders() http.Header {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	if token := s.Token(); token != "" {
		headers.Set("Authorization", bearerPrefix+token)
	}

	return headers
}

// TokenSource exposes the held token to oauth2-aware clients.
func (s *Store) TokenSource() oauth2.TokenSource {
	return storeTokenSource{store: s}
}

// SignInURL is the absolute URL of the sign-in page.
func (s *Store) SignInURL() string {
	return s.endpoint(s.signInPath)
}

// Validate asks the API who the held token belongs to. On success the user
// record is replaced with the server's copy; any failure ends the session.
func (s *Store) Validate(ctx context.Context) bool {
	token := s.Token()
	if token == "" {
		return false
	}

	ctx, span := tracer.Start(ctx, "session.validate")
	defer span.End()

	user, err := s.fetchUser(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("session validation failed, ending session")
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		telemetry.GetMetrics().ValidationFailures.Add(ctx, 1)
		s.Clear()
		return false
	}

	if !s.replaceUser(user, token) {
		log.Debug().Msg("session changed during validation, keeping the newer session")
		return s.IsLoggedIn()
	}

	log.Debug().Str("user", user.DisplayName()).Msg("session validated")

	return true
}

// replaceUser stores user alongside token, unless the held token is no longer
// token.
func (s *Store) replaceUser(user User, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != token {
		return false
	}

	s.user = &user
	s.persistLocked()

	return true
}

// Login exchanges credentials for an access token, loads the user record and
// saves the session. The refresh cookie is kept by the client's cookie jar.
func (s *Store) Login(ctx context.Context, email, password string) error {
	ctx, span := tracer.Start(ctx, "session.login")
	defer span.End()

	token, err := s.requestLogin(ctx, email, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return err
	}

	user, err := s.fetchUser(ctx, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return fmt.Errorf("failed to load user after login: %w", err)
	}

	s.Save(user, token)

	log.Info().
		Str("user", user.DisplayName()).
		Str("fingerprint", Fingerprint(token)).
		Msg("logged in")

	return nil
}

// Logout ends the session and sends the host to the sign-in page. The server
// is asked to revoke the refresh cookie first; failure to do so is logged.
func (s *Store) Logout(ctx context.Context) {
	if err := s.revoke(ctx); err != nil {
		log.Warn().Err(err).Msg("server logout failed")
	}

	s.Clear()

	log.Info().Msg("logged out")

	s.host.Navigate(s.SignInURL())
}

// Startup restores a persisted session and checks it with the API. A
// restored session that fails validation is reported to the host and
// logged out. It returns whether a valid session is held.
func (s *Store) Startup(ctx context.Context) bool {
	if !s.Restore() {
		return false
	}

	if s.Validate(ctx) {
		return true
	}

	s.host.Notify(ExpiredNotice)
	s.Logout(ctx)

	return false
}

// endpoint resolves an API path against the base URL.
func (s *Store) endpoint(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		ref = &url.URL{Path: path}
	}
	return s.baseURL.ResolveReference(ref).String()
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenBundle is the login response body.
type tokenBundle struct {
	Access    string `json:"access"`
	Refresh   string `json:"refresh"`
	Completed bool   `json:"completed"`
}

func (s *Store) requestLogin(ctx context.Context, email, password string) (string, error) {
	payload, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", fmt.Errorf("failed to marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(LoginPath), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer drainAndClose(resp)

	if !success(resp.StatusCode) {
		return "", DecodeAPIError(resp)
	}

	// The header is authoritative; the body copy is a fallback.
	token := bearerToken(resp.Header)
	if token == "" {
		var bundle tokenBundle
		if err := json.NewDecoder(resp.Body).Decode(&bundle); err == nil {
			token = bundle.Access
		}
	}

	if token == "" {
		return "", ErrMissingToken
	}

	return token, nil
}

func (s *Store) fetchUser(ctx context.Context, token string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(MePath), nil)
	if err != nil {
		return User{}, fmt.Errorf("failed to create user request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerPrefix+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("user request failed: %w", err)
	}
	defer drainAndClose(resp)

	if !success(resp.StatusCode) {
		return User{}, DecodeAPIError(resp)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return User{}, fmt.Errorf("failed to decode user: %w", err)
	}

	return user, nil
}

func (s *Store) revoke(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(LogoutPath), nil)
	if err != nil {
		return fmt.Errorf("failed to create logout request: %w", err)
	}
	req.Header = s.AuthHeaders()

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	defer drainAndClose(resp)

	if !success(resp.StatusCode) {
		return DecodeAPIError(resp)
	}

	return nil
}

func success(status int) bool {
	return status >= 200 && status < 300
}

// drainAndClose discards what is left of a body so the connection can be
// reused.
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()
}
