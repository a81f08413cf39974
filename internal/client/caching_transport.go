package client

import (
	"net/http"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/rs/zerolog/log"
)

// NewCachingTransport wraps next with a private HTTP cache that honours the
// API's Cache-Control headers. Cached responses carry X-From-Cache: 1.
func NewCachingTransport(next http.RoundTripper, cacheDir string) http.RoundTripper {
	var cache httpcache.Cache
	if cacheDir == "" {
		// Use in-memory cache if no cache directory specified
		cache = httpcache.NewMemoryCache()
	} else {
		// Use disk-based cache for persistence across runs
		cache = diskcache.New(cacheDir)
	}

	log.Debug().Str("cacheDir", cacheDir).Msg("response cache enabled")

	transport := httpcache.NewTransport(cache)
	transport.Transport = next

	return transport
}

// FromCache reports whether resp was served by the response cache.
func FromCache(resp *http.Response) bool {
	return resp.Header.Get(httpcache.XFromCache) == "1"
}
