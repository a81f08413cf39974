package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfeidau/jobcrew/internal/session"
)

// RefreshCmd exchanges the refresh cookie for a new access token.
type RefreshCmd struct{}

func (r *RefreshCmd) Run(ctx context.Context, globals *Globals) error {
	env, err := openSession(globals)
	if err != nil {
		return err
	}

	if !env.store.Startup(ctx) {
		return fmt.Errorf("%w: run jobcrew-cli login first", session.ErrNotLoggedIn)
	}

	if !env.store.Refresh(ctx) {
		return errors.New("token refresh failed, the session has ended")
	}

	fmt.Fprintf(globals.stdout(), "Access token refreshed (%s)\n", session.Fingerprint(env.store.Token()))

	return nil
}
