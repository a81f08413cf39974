package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// RequestCmd sends an authenticated request to the API and prints the body.
type RequestCmd struct {
	Method string   `arg:"" help:"HTTP method." enum:"GET,POST,PUT,PATCH,DELETE,get,post,put,patch,delete"`
	Path   string   `arg:"" help:"API path, for example /api/members/me."`
	Data   string   `help:"Request body." short:"d"`
	Header []string `help:"Extra header as Name:Value, repeatable." short:"H" sep:"none"`
}

func (r *RequestCmd) Run(ctx context.Context, globals *Globals) error {
	header, err := parseHeaders(r.Header)
	if err != nil {
		return err
	}

	env, err := openSession(globals)
	if err != nil {
		return err
	}

	// Anonymous requests are allowed, the API decides
	env.store.Startup(ctx)

	var body io.Reader
	if r.Data != "" {
		body = strings.NewReader(r.Data)
	}

	resp, err := env.store.Request(ctx, strings.ToUpper(r.Method), r.Path, body, header)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	fmt.Fprintf(globals.stderr(), "%s %s\n", resp.Proto, resp.Status)

	if _, err := io.Copy(globals.stdout(), resp.Body); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	return nil
}

func parseHeaders(values []string) (http.Header, error) {
	header := http.Header{}
	for _, value := range values {
		name, content, ok := strings.Cut(value, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, expected Name:Value", value)
		}
		header.Add(strings.TrimSpace(name), strings.TrimSpace(content))
	}
	return header, nil
}
