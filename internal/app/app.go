// Package app wires the kkoala HTTP application.
package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/kkoala/internal/api"
	"github.com/ashureev/kkoala/internal/auth"
	"github.com/ashureev/kkoala/internal/config"
	"github.com/ashureev/kkoala/internal/lifecycle"
	"github.com/ashureev/kkoala/internal/middleware"
	"github.com/ashureev/kkoala/internal/preference"
	"github.com/ashureev/kkoala/internal/render"
	"github.com/ashureev/kkoala/internal/session"
	"github.com/ashureev/kkoala/internal/sitemap"
	"github.com/ashureev/kkoala/internal/store"
	"github.com/ashureev/kkoala/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Options holds the collaborators constructed by the caller.
type Options struct {
	Config   *config.Config
	Store    *store.SQLStore
	Logger   *slog.Logger
	Registry *prometheus.Registry
	// Hasher defaults to bcrypt at its default cost.
	Hasher *auth.Hasher
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// App is the assembled HTTP application.
type App struct {
	router  chi.Router
	hooks   *lifecycle.Hooks
	limiter *middleware.RateLimiter
}

// New builds the router with every extension constructed once and injected.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Hasher == nil {
		opts.Hasher = auth.NewHasher(0)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	prefs := preference.NewResolver(opts.Store, logger)
	pages, err := render.New(web.Templates(), prefs, logger)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	sm, err := sitemap.NewBuilder(sitemap.DefaultEntries(), sitemap.WithClock(opts.Clock))
	if err != nil {
		return nil, fmt.Errorf("configure sitemap: %w", err)
	}

	sessions := session.NewManager(cfg.SecretKey, cfg.SessionTTL, cfg.IsDevelopment())
	hooks := lifecycle.New(sessions, pages, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerDay, cfg.RateLimit.PerHour, logger,
		"/static/", "/favicon.ico", "/robots.txt", "/health", "/metrics")
	metrics := middleware.NewMetrics(opts.Registry)

	handler := api.NewHandler(api.Deps{
		Repo:     opts.Store,
		Hasher:   opts.Hasher,
		Sessions: sessions,
		Pages:    pages,
		Prefs:    prefs,
		Hooks:    hooks,
		Sitemap:  sm,
		BaseURL:  cfg.BaseURL,
	})

	r := chi.NewRouter()

	// Global middleware. The limiter keys on the socket peer, so it runs
	// before RealIP rewrites RemoteAddr from forwarding headers.
	r.Use(chiMiddleware.RequestID)
	r.Use(limiter.Handler)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Handler)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.SecurityHeaders(middleware.DefaultSecurityOptions(!cfg.IsDevelopment())))
	r.Use(opts.Store.Middleware)
	r.Use(hooks.PreRequest)
	r.Use(hooks.Recover)

	r.NotFound(hooks.NotFound)
	r.Handle("/metrics", metrics.Exposition())
	r.Handle("/static/*", web.StaticHandler("/static", http.HandlerFunc(hooks.NotFound)))
	handler.RegisterRoutes(r)

	return &App{router: r, hooks: hooks, limiter: limiter}, nil
}

// Router returns the application's router.
func (a *App) Router() chi.Router { return a.router }

// Hooks returns the request lifecycle hooks.
func (a *App) Hooks() *lifecycle.Hooks { return a.hooks }

// RateLimiter returns the request rate limiter.
func (a *App) RateLimiter() *middleware.RateLimiter { return a.limiter }
