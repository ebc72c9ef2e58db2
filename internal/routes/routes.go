// Package routes names the application's public pages and builds absolute URLs for them.
package routes

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Route identifiers of the public pages.
const (
	Home          = "home"
	About         = "about"
	Help          = "help"
	StudyTimer    = "study-timer"
	StudyTips     = "study-tips"
	PrivacyPolicy = "privacy-policy"
)

// ErrUnknownRoute is returned for route identifiers missing from a Table.
var ErrUnknownRoute = errors.New("unknown route")

// Route binds an identifier to a path.
type Route struct {
	Name string
	Path string
}

// Table maps route identifiers to paths.
type Table map[string]string

// PublicPages lists the public pages in navigation order.
func PublicPages() []Route {
	return []Route{
		{Name: Home, Path: "/"},
		{Name: About, Path: "/about"},
		{Name: Help, Path: "/help"},
		{Name: StudyTimer, Path: "/study-timer"},
		{Name: StudyTips, Path: "/study-tips"},
		{Name: PrivacyPolicy, Path: "/privacy-policy"},
	}
}

// NewTable builds a Table from routes.
func NewTable(routes []Route) Table {
	t := make(Table, len(routes))
	for _, r := range routes {
		t[r.Name] = r.Path
	}
	return t
}

// Path returns the path of the named route.
func (t Table) Path(name string) (string, error) {
	p, ok := t[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRoute, name)
	}
	return p, nil
}

// External resolves route identifiers to absolute URLs under a base URL.
type External struct {
	table Table
	base  string
}

// NewExternal returns an External rooted at base ("https://host[/prefix]").
func NewExternal(table Table, base string) External {
	return External{table: table, base: strings.TrimRight(base, "/")}
}

// ForRequest returns an External rooted at baseURL, or at the scheme and
// host the request was made to when baseURL is empty.
func ForRequest(table Table, baseURL string, r *http.Request) External {
	if baseURL != "" {
		return NewExternal(table, baseURL)
	}
	return NewExternal(table, requestScheme(r)+"://"+r.Host)
}

// URLFor returns the absolute URL of the named route.
func (e External) URLFor(name string) (string, error) {
	p, err := e.table.Path(name)
	if err != nil {
		return "", err
	}
	return e.base + p, nil
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); strings.EqualFold(proto, "https") {
		return "https"
	}
	return "http"
}
