package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/jobcrew/internal/client"
	"github.com/wolfeidau/jobcrew/internal/config"
	"github.com/wolfeidau/jobcrew/internal/session"
)

const cookieFile = "cookies.json"

type Globals struct {
	Debug      bool
	Version    string
	Config     string
	Server     string
	SessionDir string
	Cache      bool
	CacheDir   string
	SignInPath string
	Timeout    int
	Ephemeral  bool

	// Stdout and Stderr default to the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

func (g *Globals) stdout() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func (g *Globals) stderr() io.Writer {
	if g.Stderr == nil {
		return os.Stderr
	}
	return g.Stderr
}

// settings merges the config file under the flags and fills defaults.
func (g *Globals) settings() (config.Config, error) {
	file, err := config.Load(g.Config)
	if err != nil {
		return config.Config{}, err
	}

	return file.Override(config.Config{
		Server:         g.Server,
		SessionDir:     g.SessionDir,
		Cache:          g.Cache,
		CacheDir:       g.CacheDir,
		SignInPath:     g.SignInPath,
		TimeoutSeconds: g.Timeout,
	}).WithDefaults(), nil
}

// cliHost reports navigation and notices on stderr.
type cliHost struct {
	out io.Writer
}

func (h cliHost) Navigate(url string) {
	fmt.Fprintf(h.out, "Sign in again at %s\n", url)
}

func (h cliHost) Notify(message string) {
	fmt.Fprintln(h.out, message)
}

// sessionEnv is everything a command needs to talk to the API.
type sessionEnv struct {
	store *session.Store
	jar   *client.FileJar
}

// openSession wires storage, the HTTP client and the store from the globals.
// The session is not restored; commands call Startup or Restore themselves.
func openSession(globals *Globals) (*sessionEnv, error) {
	settings, err := globals.settings()
	if err != nil {
		return nil, err
	}

	var (
		storage    session.Storage
		cookiePath string
	)

	if globals.Ephemeral {
		storage = session.NewMemoryStorage()
	} else {
		fileStorage, err := session.NewFileStorage(settings.SessionDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize session storage: %w", err)
		}
		storage = fileStorage
		cookiePath = filepath.Join(filepath.Dir(fileStorage.Path()), cookieFile)
	}

	httpClient, jar, err := client.NewHTTPClient(client.Config{
		ServerURL:  settings.Server,
		Timeout:    settings.Timeout(),
		Cache:      settings.Cache,
		CacheDir:   settings.CacheDir,
		CookieFile: cookiePath,
		Debug:      globals.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	store, err := session.New(storage, settings.Server,
		session.WithHTTPClient(httpClient),
		session.WithSignInPath(settings.SignInPath),
		session.WithHost(cliHost{out: globals.stderr()}),
	)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("server", settings.Server).
		Bool("ephemeral", globals.Ephemeral).
		Bool("cache", settings.Cache).
		Msg("session opened")

	return &sessionEnv{store: store, jar: jar}, nil
}
