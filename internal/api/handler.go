// Package api provides the HTTP handlers of the kkoala site.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ashureev/kkoala/internal/auth"
	"github.com/ashureev/kkoala/internal/domain"
	"github.com/ashureev/kkoala/internal/lifecycle"
	"github.com/ashureev/kkoala/internal/routes"
	"github.com/ashureev/kkoala/internal/session"
	"github.com/ashureev/kkoala/internal/sitemap"
	"github.com/ashureev/kkoala/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Pages renders HTML pages.
type Pages interface {
	Page(w http.ResponseWriter, r *http.Request, status int, name string, data any) error
}

// PreferenceResolver resolves the display preference of a session identity.
type PreferenceResolver interface {
	Resolve(ctx context.Context, id domain.Identity) domain.DarkMode
}

// Handler provides the site's page, account and SEO endpoints.
type Handler struct {
	repo     store.Repository
	hasher   *auth.Hasher
	sessions *session.Manager
	pages    Pages
	prefs    PreferenceResolver
	hooks    *lifecycle.Hooks
	sitemap  *sitemap.Builder
	routes   routes.Table
	baseURL  string
	newToken func() string
}

// Deps are the collaborators of Handler.
type Deps struct {
	Repo     store.Repository
	Hasher   *auth.Hasher
	Sessions *session.Manager
	Pages    Pages
	Prefs    PreferenceResolver
	Hooks    *lifecycle.Hooks
	Sitemap  *sitemap.Builder
	// BaseURL roots absolute links; empty derives it from the request.
	BaseURL string
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		repo:     d.Repo,
		hasher:   d.Hasher,
		sessions: d.Sessions,
		pages:    d.Pages,
		prefs:    d.Prefs,
		hooks:    d.Hooks,
		sitemap:  d.Sitemap,
		routes:   routes.NewTable(routes.PublicPages()),
		baseURL:  d.BaseURL,
		newToken: uuid.NewString,
	}
}

// RegisterRoutes registers all handler routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	h.registerPages(r)
	h.registerSEO(r)
	h.registerAccount(r)

	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.hooks.Handle(h.GetMe))
	})
}

// GetMe returns the current identity and its display preference.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) error {
	id := session.IdentityFromContext(r.Context())
	JSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": id.Present(),
		"username":      id.Username,
		"dark_mode":     h.prefs.Resolve(r.Context(), id),
	})
	return nil
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}
