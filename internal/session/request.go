package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfeidau/jobcrew/internal/telemetry"
)

// Do sends req with the session's auth headers. Headers already set on req
// take precedence. A relative request URL is resolved against the base URL.
//
// A 401 response triggers one token refresh. If the refresh succeeds the
// request is replayed once with the new token and that response is returned,
// whatever its status. If it fails the original 401 response is returned.
// Other responses and transport errors are returned as they are.
func (s *Store) Do(req *http.Request) (*http.Response, error) {
	ctx, span := tracer.Start(req.Context(), "session.request",
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.URL.Path),
		))
	defer span.End()

	target := req.URL
	if !target.IsAbs() {
		target = s.baseURL.ResolveReference(target)
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}

	telemetry.GetMetrics().RequestsTotal.Add(ctx, 1)

	sentWith := s.Token()
	resp, err := s.client.Do(s.authorize(ctx, req, target, body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		return resp, nil
	}

	if !s.refreshAfter(ctx, sentWith) {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		return resp, nil
	}

	// The first response is superseded by the replay.
	drainAndClose(resp)

	telemetry.GetMetrics().RetriesTotal.Add(ctx, 1)

	log.Debug().
		Str("method", req.Method).
		Str("url", target.String()).
		Msg("replaying request with refreshed token")

	retry, err := s.client.Do(s.authorize(ctx, req, target, body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retry failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("http.response.status_code", retry.StatusCode),
		attribute.Bool("session.retried", true),
	)

	return retry, nil
}

// Request builds a request for path on the API and sends it with Do.
func (s *Store) Request(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.endpoint(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	return s.Do(req)
}

// refreshTimeout bounds a refresh call once no caller is waiting on it.
const refreshTimeout = 30 * time.Second

// Refresh exchanges the refresh cookie for a new access token. Any failure
// ends the session. Concurrent callers share a single refresh call. A caller
// whose context ends first gets false and the session is left as it is.
func (s *Store) Refresh(ctx context.Context) bool {
	if !s.IsLoggedIn() {
		log.Debug().Msg("no session held, skipping token refresh")
		return false
	}

	// The shared call is detached from the caller that started it, so one
	// caller giving up does not fail the refresh for the others.
	results := s.refreshGroup.DoChan("refresh", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.refresh(ctx), nil
	})

	select {
	case <-ctx.Done():
		log.Debug().Err(ctx.Err()).Msg("stopped waiting for token refresh")
		return false
	case result := <-results:
		if result.Shared {
			telemetry.GetMetrics().RefreshCallsCoalesced.Add(ctx, 1)
		}
		return result.Val.(bool)
	}
}

// refreshAfter refreshes the token unless it has already changed since a
// request was sent with sentWith, in which case another caller refreshed it.
func (s *Store) refreshAfter(ctx context.Context, sentWith string) bool {
	if current := s.Token(); current != "" && current != sentWith {
		log.Debug().Msg("token already refreshed by another request")
		return true
	}
	return s.Refresh(ctx)
}

func (s *Store) refresh(ctx context.Context) bool {
	ctx, span := tracer.Start(ctx, "session.refresh")
	defer span.End()

	metrics := telemetry.GetMetrics()
	metrics.RefreshTotal.Add(ctx, 1)

	token, err := s.requestRefresh(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("token refresh failed, ending session")
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		metrics.RefreshFailuresTotal.Add(ctx, 1)
		s.Clear()
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		log.Debug().Msg("session ended while refreshing, discarding new token")
		return false
	}

	s.token = token
	if err := s.storage.Set(TokenKey, token); err != nil {
		log.Warn().Err(err).Msg("failed to persist refreshed token, kept in memory only")
	}

	log.Debug().Str("fingerprint", Fingerprint(token)).Msg("access token refreshed")

	return true
}

func (s *Store) requestRefresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(RefreshPath), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create refresh request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request failed: %w", err)
	}
	defer drainAndClose(resp)

	if !success(resp.StatusCode) {
		return "", DecodeAPIError(resp)
	}

	token := bearerToken(resp.Header)
	if token == "" {
		return "", ErrMissingToken
	}

	return token, nil
}

// authorize clones req for target with the current auth headers merged
// under the caller's headers.
func (s *Store) authorize(ctx context.Context, req *http.Request, target *url.URL, body []byte) *http.Request {
	out := req.Clone(ctx)
	u := *target
	out.URL = &u
	out.RequestURI = ""

	headers := s.AuthHeaders()
	for key, values := range req.Header {
		headers.Del(key)
		for _, value := range values {
			headers.Add(key, value)
		}
	}
	out.Header = headers

	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.ContentLength = int64(len(body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	return out
}

// bufferBody reads and closes the request body so it can be sent twice.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()

	return io.ReadAll(req.Body)
}
