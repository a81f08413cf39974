package main

import (
	"context"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/jobcrew/cmd/cli/internal/commands"
	"github.com/wolfeidau/jobcrew/internal/logger"
	"github.com/wolfeidau/jobcrew/internal/telemetry"
)

var (
	version = "dev"
	cli     struct {
		Login   commands.LoginCmd   `cmd:"" help:"Log in with email and password"`
		Logout  commands.LogoutCmd  `cmd:"" help:"Log out and forget the session"`
		Whoami  commands.WhoamiCmd  `cmd:"" help:"Show the logged in user"`
		Refresh commands.RefreshCmd `cmd:"" help:"Refresh the access token"`
		Request commands.RequestCmd `cmd:"" help:"Send an authenticated API request"`
		Status  commands.StatusCmd  `cmd:"" help:"Show the page header for the current session"`

		Debug      bool   `help:"Enable debug mode." env:"JOBCREW_DEBUG"`
		Config     string `help:"YAML or JSON config file." type:"path" env:"JOBCREW_CONFIG"`
		Server     string `help:"JobCrew API base URL." env:"JOBCREW_SERVER"`
		SessionDir string `help:"Directory holding the session and cookies (default ~/.jobcrew)." type:"path" env:"JOBCREW_SESSION_DIR"`
		Cache      bool   `help:"Cache API responses that allow it." env:"JOBCREW_CACHE"`
		CacheDir   string `help:"Directory for the response cache (default in memory)." type:"path" env:"JOBCREW_CACHE_DIR"`
		SignInPath string `help:"Sign-in page path shown after logout." env:"JOBCREW_SIGN_IN_PATH"`
		Timeout    int    `help:"Request timeout in seconds." env:"JOBCREW_TIMEOUT"`
		Ephemeral  bool   `help:"Keep the session in memory only."`
		Version    kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("jobcrew-cli"),
		kong.Description("Command line client for the JobCrew API."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	logger.Install(logger.Setup(cli.Debug))

	shutdown, err := telemetry.Init(ctx, "jobcrew-cli", version)
	cmd.FatalIfErrorf(err)

	err = cmd.Run(&commands.Globals{
		Debug:      cli.Debug,
		Version:    version,
		Config:     cli.Config,
		Server:     cli.Server,
		SessionDir: cli.SessionDir,
		Cache:      cli.Cache,
		CacheDir:   cli.CacheDir,
		SignInPath: cli.SignInPath,
		Timeout:    cli.Timeout,
		Ephemeral:  cli.Ephemeral,
	})

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if shutdownErr := shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn().Err(shutdownErr).Msg("telemetry shutdown failed")
	}

	cmd.FatalIfErrorf(err)
}
