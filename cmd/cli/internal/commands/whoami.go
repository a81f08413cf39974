package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/wolfeidau/jobcrew/internal/session"
)

// WhoamiCmd shows the logged in user and access token details.
type WhoamiCmd struct {
	JSON bool `help:"Print the user record as JSON."`
}

func (w *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	env, err := openSession(globals)
	if err != nil {
		return err
	}

	if !env.store.Startup(ctx) {
		return fmt.Errorf("%w: run jobcrew-cli login first", session.ErrNotLoggedIn)
	}

	user, _ := env.store.CurrentUser()

	if w.JSON {
		data, err := json.MarshalIndent(user, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode user: %w", err)
		}
		fmt.Fprintln(globals.stdout(), string(data))
		return nil
	}

	tw := tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "User:\t%s\n", user.DisplayName())
	fmt.Fprintf(tw, "Nickname:\t%s\n", valueOr(user.Nickname, "Not set"))
	fmt.Fprintf(tw, "ID:\t%d\n", user.ID)

	token := env.store.Token()
	fmt.Fprintf(tw, "Token:\t%s\n", session.Fingerprint(token))

	if info, err := session.ParseTokenInfo(token); err == nil {
		if !info.ExpiresAt.IsZero() {
			fmt.Fprintf(tw, "Expires:\t%s\n", info.ExpiresAt.Local().Format(time.RFC3339))
		}
		if info.IdentifierType != "" {
			fmt.Fprintf(tw, "Identity:\t%s (%s)\n", info.Identifier, info.IdentifierType)
		}
	}

	return tw.Flush()
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
