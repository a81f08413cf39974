package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfeidau/jobcrew/internal/session"
)

// LoginCmd signs in with email and password and saves the session.
type LoginCmd struct {
	Email    string `help:"Account email address." required:"" env:"JOBCREW_EMAIL"`
	Password string `help:"Account password." required:"" env:"JOBCREW_PASSWORD"`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	env, err := openSession(globals)
	if err != nil {
		return err
	}

	if err := env.store.Login(ctx, l.Email, l.Password); err != nil {
		var apiErr *session.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("login rejected: %w", apiErr)
		}
		return fmt.Errorf("failed to log in: %w", err)
	}

	user, _ := env.store.CurrentUser()
	fmt.Fprintf(globals.stdout(), "Logged in as %s (ID %d)\n", user.DisplayName(), user.ID)

	return nil
}

// LogoutCmd ends the session locally and on the server.
type LogoutCmd struct{}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	env, err := openSession(globals)
	if err != nil {
		return err
	}

	if !env.store.Restore() {
		fmt.Fprintln(globals.stdout(), "Not logged in.")
		return nil
	}

	env.store.Logout(ctx)

	// Drop the refresh cookie so the next run cannot revive the session
	if err := env.jar.Clear(); err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}

	fmt.Fprintln(globals.stdout(), "Logged out.")

	return nil
}
