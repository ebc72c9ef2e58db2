// Package lifecycle provides the request hooks that run around every handler:
// anti-forgery token issuance before dispatch and the error pages after it.
package lifecycle

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/ashureev/kkoala/internal/apperr"
	"github.com/ashureev/kkoala/internal/session"
	"github.com/ashureev/kkoala/internal/store"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	// CSRFFormField is the form field carrying the anti-forgery token.
	CSRFFormField = "csrf_token"
	// CSRFHeader is the header carrying the anti-forgery token for scripted requests.
	CSRFHeader = "X-CSRF-Token"
)

// Error page templates by failure class.
var errorPages = map[apperr.Kind]string{
	apperr.KindNotFound:    "404.html",
	apperr.KindForbidden:   "403.html",
	apperr.KindServerFault: "500.html",
}

// PageRenderer renders a named page with a status code.
type PageRenderer interface {
	Page(w http.ResponseWriter, r *http.Request, status int, name string, data any) error
}

// HandlerFunc is an HTTP handler that reports failures instead of writing them.
// It must not write a response when it returns an error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Hooks runs the pre-request and error hooks.
type Hooks struct {
	sessions *session.Manager
	pages    PageRenderer
	logger   *slog.Logger
	newToken func() string
}

// New creates the request hooks.
func New(sessions *session.Manager, pages PageRenderer, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{
		sessions: sessions,
		pages:    pages,
		logger:   logger,
		newToken: uuid.NewString,
	}
}

// PreRequest runs before handler dispatch on every request. It loads the
// session, issues an anti-forgery token when the session has none, and
// rejects unsafe requests that do not echo the token.
func (h *Hooks) PreRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := h.sessions.Load(r)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				h.logger.Debug("Discarding session cookie", "error", err)
			}
			data = &session.Data{}
		}
		r = r.WithContext(session.WithData(r.Context(), data))

		if data.CSRFToken == "" {
			data.CSRFToken = h.newToken()
			if err := h.sessions.Save(w, data); err != nil {
				h.Fail(w, r, apperr.ServerFault("issue csrf token", err))
				return
			}
		}

		if !isSafeMethod(r.Method) && !tokenMatches(r, data.CSRFToken) {
			h.Fail(w, r, apperr.Forbidden("missing or invalid csrf token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handle adapts fn to http.HandlerFunc, routing its error through Fail.
func (h *Hooks) Handle(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			h.Fail(w, r, err)
		}
	}
}

// Fail responds with the error page of err's class. Server faults roll back
// the request's persistent-state session before anything is written.
func (h *Hooks) Fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"error", err,
	}

	switch kind {
	case apperr.KindNotFound:
		h.logger.Debug("Not found", attrs...)
	case apperr.KindForbidden:
		h.logger.Warn("Access denied", attrs...)
	default:
		store.SessionFromContext(r.Context()).Rollback()
		attrs = append(attrs, "sqlite_conflict", store.IsSQLiteConflictError(err))
		h.logger.Error("Request failed", attrs...)
	}

	status := kind.Status()
	if renderErr := h.pages.Page(w, r, status, errorPages[kind], nil); renderErr != nil {
		h.logger.Error("Failed to render error page", "status", status, "error", renderErr)
		http.Error(w, http.StatusText(status), status)
	}
}

// NotFound is the handler for unmatched routes.
func (h *Hooks) NotFound(w http.ResponseWriter, r *http.Request) {
	h.Fail(w, r, apperr.NotFound("no route for "+r.URL.Path))
}

// Recover turns handler panics into server faults.
func (h *Hooks) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.logger.Error("Handler panicked", "panic", rec, "stack", string(debug.Stack()))
			h.Fail(w, r, apperr.ServerFault("panic", fmt.Errorf("%v", rec)))
		}()
		next.ServeHTTP(w, r)
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

func tokenMatches(r *http.Request, want string) bool {
	got := r.Header.Get(CSRFHeader)
	if got == "" {
		got = r.PostFormValue(CSRFFormField)
	}
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
