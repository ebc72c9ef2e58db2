package api

import (
	"net/http"

	"github.com/ashureev/kkoala/internal/apperr"
	"github.com/ashureev/kkoala/internal/routes"
	"github.com/ashureev/kkoala/internal/session"
	"github.com/ashureev/kkoala/web"
	"github.com/go-chi/chi/v5"
)

// pageTemplates maps public route identifiers to their templates.
var pageTemplates = map[string]string{
	routes.Home:          "index.html",
	routes.About:         "about.html",
	routes.Help:          "help.html",
	routes.StudyTimer:    "study_timer.html",
	routes.StudyTips:     "study_tips.html",
	routes.PrivacyPolicy: "privacy_policy.html",
}

func (h *Handler) registerPages(r chi.Router) {
	for _, p := range routes.PublicPages() {
		r.Get(p.Path, h.hooks.Handle(h.staticPage(pageTemplates[p.Name])))
	}
	r.Get("/admin", h.hooks.Handle(h.Admin))
}

func (h *Handler) staticPage(tmpl string) func(http.ResponseWriter, *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		return h.pages.Page(w, r, http.StatusOK, tmpl, nil)
	}
}

func (h *Handler) registerSEO(r chi.Router) {
	r.Get("/favicon.ico", web.FileHandler("img/favicon.ico", "image/x-icon").ServeHTTP)
	r.Get("/robots.txt", web.FileHandler("robots.txt", "text/plain").ServeHTTP)
	r.Get("/sitemap.xml", h.hooks.Handle(h.Sitemap))
}

// Sitemap serves the sitemap of the public pages.
func (h *Handler) Sitemap(w http.ResponseWriter, r *http.Request) error {
	body, err := h.sitemap.Build(routes.ForRequest(h.routes, h.baseURL, r))
	if err != nil {
		return apperr.ServerFault("build sitemap", err)
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	return nil
}

// Admin shows the admin page to administrators.
func (h *Handler) Admin(w http.ResponseWriter, r *http.Request) error {
	id := session.IdentityFromContext(r.Context())
	if !id.Present() {
		return apperr.Forbidden("admin page requires a signed-in administrator")
	}

	user, err := h.repo.FindUserByUsername(r.Context(), id.Username)
	if err != nil {
		return apperr.ServerFault("load admin user", err)
	}
	if user == nil || !user.IsAdmin {
		return apperr.Forbidden("user " + id.Username + " is not an administrator")
	}

	return h.pages.Page(w, r, http.StatusOK, "admin.html", nil)
}
