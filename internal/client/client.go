package client

import (
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	Timeout   time.Duration

	// Cache enables the private response cache. Entries are kept in memory,
	// or on disk under CacheDir when it is set.
	Cache    bool
	CacheDir string

	// CookieFile persists the cookie jar between runs. Empty keeps cookies
	// in memory only.
	CookieFile string

	Debug bool
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8080",
		Timeout:   30 * time.Second,
		Debug:     false,
	}
}

// NewHTTPClient creates the HTTP client used to talk to the JobCrew API.
//
// Requests pass through the logging transport, an OpenTelemetry client span
// that propagates trace context, the optional cache and finally the default
// transport. The returned jar is also set on the client.
func NewHTTPClient(config Config) (*http.Client, *FileJar, error) {
	jar, err := NewFileJar(config.CookieFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	var transport http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	if config.Cache {
		transport = NewCachingTransport(transport, config.CacheDir)
	}
	transport = otelhttp.NewTransport(transport)
	transport = NewLoggingTransport(transport)

	return &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
		Jar:       jar,
	}, jar, nil
}
