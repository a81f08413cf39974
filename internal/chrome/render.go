package chrome

import (
	"fmt"
	"io"
	"text/template"

	"github.com/wolfeidau/jobcrew/internal/session"
)

// Logo is shown at the start of the header.
const Logo = "HowAreYou"

// UnknownPage is the title of paths missing from Pages.
const UnknownPage = "Unknown page"

// Pages maps a page path to its breadcrumb title.
var Pages = map[string]string{
	"/":                       "Main page",
	"/index.html":             "Main page",
	"/notification-test.html": "Notification test",
	"/test-login.html":        "Login test",
	"/test-signup.html":       "Sign-up test",
	"/test-info.html":         "User info test",
}

// NavItem is one entry of the header navigation.
type NavItem struct {
	Label string
	Path  string
}

// Navigation lists the header links in display order.
var Navigation = []NavItem{
	{Label: "Home", Path: "/"},
	{Label: "Notification test", Path: "/notification-test.html"},
	{Label: "Login", Path: "/test-login.html"},
	{Label: "Sign up", Path: "/test-signup.html"},
	{Label: "User info", Path: "/test-info.html"},
	{Label: "API docs", Path: "/swagger-ui.html"},
}

// PageTitle returns the breadcrumb title for path.
func PageTitle(path string) string {
	if title, ok := Pages[path]; ok {
		return title
	}
	return UnknownPage
}

const chromeTemplate = `{{ .Logo }}
{{ range $i, $item := .Navigation }}{{ if $i }} | {{ end }}{{ $item.Label }} ({{ $item.Path }}){{ end }}
{{ if .LoggedIn -}}
Status: Logged in  [Logout]
User: {{ .User.DisplayName }}
Name: {{ or .User.Nickname "Not set" }}
ID: {{ .User.ID }}
{{- else -}}
Status: Login required  [Login]
Login is required.
{{- end }}

Home / {{ .Title }}
`

var tmpl = template.Must(template.New("chrome").Parse(chromeTemplate))

type view struct {
	Logo       string
	Navigation []NavItem
	LoggedIn   bool
	User       session.User
	Title      string
}

// Render writes the page header and breadcrumb for path. The output depends
// only on snap and path.
func Render(w io.Writer, snap session.Snapshot, path string) error {
	data := view{
		Logo:       Logo,
		Navigation: Navigation,
		LoggedIn:   snap.LoggedIn,
		User:       snap.User,
		Title:      PageTitle(path),
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render page chrome: %w", err)
	}

	return nil
}
