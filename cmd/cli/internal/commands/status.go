package commands

import (
	"context"

	"github.com/wolfeidau/jobcrew/internal/chrome"
)

// StatusCmd renders the page chrome for the current session.
type StatusCmd struct {
	Page string `help:"Page path used for the breadcrumb." default:"/"`
}

func (s *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	env, err := openSession(globals)
	if err != nil {
		return err
	}

	env.store.Startup(ctx)

	return chrome.Render(globals.stdout(), env.store.Snapshot(), s.Page)
}
