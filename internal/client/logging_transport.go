package client

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader correlates a call with the server's logs.
const RequestIDHeader = "X-Request-Id"

// LoggingTransport tags every API call with a request ID and logs it.
type LoggingTransport struct {
	next http.RoundTripper
}

var _ http.RoundTripper = (*LoggingTransport)(nil)

// NewLoggingTransport wraps next. A nil next uses http.DefaultTransport.
func NewLoggingTransport(next http.RoundTripper) *LoggingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &LoggingTransport{next: next}
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrip must not modify the caller's request
	out := req.Clone(req.Context())

	requestID := out.Header.Get(RequestIDHeader)
	if requestID == "" {
		if id, err := uuid.NewV7(); err == nil {
			requestID = id.String()
			out.Header.Set(RequestIDHeader, requestID)
		}
	}

	logger := log.With().
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Str("requestID", requestID).
		Logger()

	if sc := trace.SpanContextFromContext(req.Context()); sc.HasTraceID() {
		logger = logger.With().Str("traceID", sc.TraceID().String()).Logger()
	}

	started := time.Now()
	resp, err := t.next.RoundTrip(out)
	if err != nil {
		logger.Debug().
			Err(err).
			Dur("duration", time.Since(started)).
			Msg("api call failed")

		return nil, err
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Bool("cached", FromCache(resp)).
		Dur("duration", time.Since(started)).
		Msg("api call")

	return resp, nil
}
