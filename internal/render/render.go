// Package render assembles view models and renders the HTML pages.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"

	"github.com/ashureev/kkoala/internal/domain"
	"github.com/ashureev/kkoala/internal/middleware"
	"github.com/ashureev/kkoala/internal/session"
)

const layoutFile = "layout.html"

// PreferenceResolver resolves the display preference of a session identity.
type PreferenceResolver interface {
	Resolve(ctx context.Context, id domain.Identity) domain.DarkMode
}

// View is the model every page template is executed with.
type View struct {
	DarkModeSetting domain.DarkMode
	CSRFToken       string
	Nonce           string
	Username        string
	Data            any
}

// Renderer renders pages inside the shared layout.
type Renderer struct {
	pages  map[string]*template.Template
	prefs  PreferenceResolver
	logger *slog.Logger
}

// New parses every page in fsys together with the layout.
func New(fsys fs.FS, prefs PreferenceResolver, logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	names, err := fs.Glob(fsys, "*.html")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	pages := make(map[string]*template.Template, len(names))
	for _, name := range names {
		if name == layoutFile {
			continue
		}
		t, err := template.New(path.Base(name)).ParseFS(fsys, layoutFile, name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no page templates found")
	}

	return &Renderer{pages: pages, prefs: prefs, logger: logger}, nil
}

// View assembles the view model for r: the session's display preference,
// anti-forgery token, script nonce and identity, plus the page data.
func (rn *Renderer) View(r *http.Request, data any) View {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	v := View{
		DarkModeSetting: rn.prefs.Resolve(ctx, sess.Identity()),
		Nonce:           middleware.NonceFromContext(ctx),
		Data:            data,
	}
	if sess != nil {
		v.CSRFToken = sess.CSRFToken
		v.Username = sess.Username
	}
	return v
}

// Page renders the named page with status. Nothing is written if rendering fails.
func (rn *Renderer) Page(w http.ResponseWriter, r *http.Request, status int, name string, data any) error {
	t, ok := rn.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", rn.View(r, data)); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		rn.logger.Debug("Failed to write page", "page", name, "error", err)
	}
	return nil
}
