package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
)

// storedCookie is a cookie as it was received, with the URL that set it.
type storedCookie struct {
	URL      string    `json:"url"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

func (c storedCookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

func (c storedCookie) cookie() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
}

// FileJar is a cookie jar that survives restarts by writing the cookies it
// receives to a JSON file. Matching is left to net/http/cookiejar; the file
// only records what was set so it can be replayed on load.
type FileJar struct {
	mu      sync.Mutex
	jar     *cookiejar.Jar
	path    string
	entries map[string]storedCookie
	now     func() time.Time
}

var _ http.CookieJar = (*FileJar)(nil)

// NewFileJar creates a jar backed by path. An empty path keeps cookies in
// memory only.
func NewFileJar(path string) (*FileJar, error) {
	j := &FileJar{
		path:    path,
		entries: map[string]storedCookie{},
		now:     time.Now,
	}

	if err := j.reset(); err != nil {
		return nil, err
	}

	if err := j.load(); err != nil {
		return nil, err
	}

	return j, nil
}

func (j *FileJar) reset() error {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return fmt.Errorf("failed to create cookie jar: %w", err)
	}
	j.jar = jar
	j.entries = map[string]storedCookie{}
	return nil
}

// Cookies implements http.CookieJar.
func (j *FileJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// SetCookies implements http.CookieJar. A cookie with a negative MaxAge or a
// past expiry deletes the stored copy.
func (j *FileJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)

	now := j.now()
	origin := (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()

	for _, c := range cookies {
		entry := storedCookie{
			URL:      origin,
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if c.MaxAge > 0 {
			entry.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}

		key := origin + "|" + c.Domain + "|" + c.Path + "|" + c.Name
		if c.MaxAge < 0 || entry.expired(now) {
			delete(j.entries, key)
			continue
		}
		j.entries[key] = entry
	}

	if err := j.save(); err != nil {
		log.Warn().Err(err).Msg("failed to persist cookies, kept in memory only")
	}
}

// Clear drops every cookie and removes the backing file.
func (j *FileJar) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.reset(); err != nil {
		return err
	}

	if j.path == "" {
		return nil
	}

	if err := os.Remove(j.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove cookie file: %w", err)
	}

	return nil
}

// Len is the number of unexpired cookies held.
func (j *FileJar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	count := 0
	for _, entry := range j.entries {
		if !entry.expired(now) {
			count++
		}
	}
	return count
}

// load replays the cookie file into the jar, skipping expired entries.
func (j *FileJar) load() error {
	if j.path == "" {
		return nil
	}

	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read cookie file: %w", err)
	}

	var entries map[string]storedCookie
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse cookie file: %w", err)
	}

	now := j.now()
	for key, entry := range entries {
		if entry.expired(now) {
			continue
		}

		u, err := url.Parse(entry.URL)
		if err != nil {
			log.Debug().Err(err).Str("url", entry.URL).Msg("skipping stored cookie")
			continue
		}

		j.jar.SetCookies(u, []*http.Cookie{entry.cookie()})
		j.entries[key] = entry
	}

	log.Debug().Int("cookies", len(j.entries)).Str("path", j.path).Msg("cookies loaded")

	return nil
}

// save writes the cookie file atomically. Callers hold mu.
func (j *FileJar) save() error {
	if j.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(j.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}

	tempPath := j.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}

	if err := os.Rename(tempPath, j.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save cookie file: %w", err)
	}

	return nil
}
