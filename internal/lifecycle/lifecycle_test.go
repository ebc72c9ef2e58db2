package lifecycle

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ashureev/kkoala/internal/apperr"
	"github.com/ashureev/kkoala/internal/domain"
	"github.com/ashureev/kkoala/internal/session"
	"github.com/ashureev/kkoala/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePages writes the page name as the body.
type fakePages struct {
	err error
}

func (f *fakePages) Page(w http.ResponseWriter, _ *http.Request, status int, name string, _ any) error {
	if f.err != nil {
		return f.err
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, name)
	return nil
}

func newTestHooks(pages PageRenderer) (*Hooks, *session.Manager) {
	sessions := session.NewManager("secret", time.Hour, true)
	h := New(sessions, pages, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.newToken = func() string { return "token-1" }
	return h, sessions
}

func withCookies(r *http.Request, w *httptest.ResponseRecorder) *http.Request {
	for _, c := range w.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestPreRequest_IssuesTokenBeforeDispatch(t *testing.T) {
	h, sessions := newTestHooks(&fakePages{})

	var seen *session.Data
	handler := h.PreRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = session.FromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, seen)
	assert.Equal(t, "token-1", seen.CSRFToken)

	stored, err := sessions.Load(withCookies(httptest.NewRequest(http.MethodGet, "/", nil), w))
	require.NoError(t, err)
	assert.Equal(t, "token-1", stored.CSRFToken)
}

func TestPreRequest_KeepsExistingToken(t *testing.T) {
	h, sessions := newTestHooks(&fakePages{})
	h.newToken = func() string { t.Fatal("token reissued"); return "" }

	prev := httptest.NewRecorder()
	require.NoError(t, sessions.Save(prev, &session.Data{Username: "koala", CSRFToken: "kept"}))

	var seen *session.Data
	w := httptest.NewRecorder()
	h.PreRequest(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = session.FromContext(r.Context())
	})).ServeHTTP(w, withCookies(httptest.NewRequest(http.MethodGet, "/", nil), prev))

	assert.Equal(t, "kept", seen.CSRFToken)
	assert.Equal(t, domain.Identity{Username: "koala"}, seen.Identity())
	assert.Empty(t, w.Result().Cookies())
}

func TestPreRequest_UnsafeMethodNeedsToken(t *testing.T) {
	h, sessions := newTestHooks(&fakePages{})
	called := false
	handler := h.PreRequest(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) { called = true }))

	prev := httptest.NewRecorder()
	require.NoError(t, sessions.Save(prev, &session.Data{CSRFToken: "tok"}))

	post := func(form url.Values, header string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if header != "" {
			r.Header.Set(CSRFHeader, header)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, withCookies(r, prev))
		return w
	}

	w := post(url.Values{}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "403.html", w.Body.String())
	assert.False(t, called)

	w = post(url.Values{CSRFFormField: {"wrong"}}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = post(url.Values{CSRFFormField: {"tok"}}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)

	called = false
	w = post(url.Values{}, "tok")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
}

func TestHandle_ErrorClasses(t *testing.T) {
	h, _ := newTestHooks(&fakePages{})

	tests := []struct {
		name   string
		err    error
		status int
		page   string
	}{
		{"not found", apperr.NotFound("missing"), http.StatusNotFound, "404.html"},
		{"forbidden", apperr.Forbidden("admins only"), http.StatusForbidden, "403.html"},
		{"server fault", apperr.ServerFault("boom", errors.New("disk full")), http.StatusInternalServerError, "500.html"},
		{"unclassified", fmt.Errorf("scan user row: %w", errors.New("bad conn")), http.StatusInternalServerError, "500.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Handle(func(http.ResponseWriter, *http.Request) error { return tt.err }).
				ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.page, w.Body.String())
		})
	}
}

func TestFail_ServerFaultRollsBackBeforeResponding(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := store.New(db, store.DialectSQLite)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO user_settings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	h, _ := newTestHooks(&fakePages{})
	var rolledBackFirst bool
	h.pages = pageFunc(func(w http.ResponseWriter, r *http.Request, status int, name string) error {
		rolledBackFirst = !store.SessionFromContext(r.Context()).Active()
		w.WriteHeader(status)
		return nil
	})

	handler := st.Middleware(h.Handle(func(_ http.ResponseWriter, r *http.Request) error {
		if err := st.UpsertSettings(r.Context(), 1, domain.DarkModeDark); err != nil {
			return err
		}
		return errors.New("constraint check failed after write")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/settings", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, rolledBackFirst)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFail_ForbiddenKeepsTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := store.New(db, store.DialectSQLite)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO user_settings").WillReturnResult(sqlmock.NewResult(0, 1))

	h, _ := newTestHooks(&fakePages{})
	var activeAtRender bool
	h.pages = pageFunc(func(w http.ResponseWriter, r *http.Request, status int, _ string) error {
		activeAtRender = store.SessionFromContext(r.Context()).Active()
		w.WriteHeader(status)
		return nil
	})

	sess := st.NewSession()
	r := httptest.NewRequest(http.MethodGet, "/admin", nil)
	r = r.WithContext(store.WithSession(r.Context(), sess))
	require.NoError(t, st.UpsertSettings(r.Context(), 1, domain.DarkModeDark))

	w := httptest.NewRecorder()
	h.Fail(w, r, apperr.Forbidden("admins only"))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.True(t, activeAtRender)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFail_RenderErrorFallsBackToPlainText(t *testing.T) {
	h, _ := newTestHooks(&fakePages{err: errors.New("template missing")})

	w := httptest.NewRecorder()
	h.NotFound(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Not Found")
}

func TestRecover(t *testing.T) {
	h, _ := newTestHooks(&fakePages{})

	w := httptest.NewRecorder()
	h.Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	})).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "500.html", w.Body.String())
}

type pageFunc func(w http.ResponseWriter, r *http.Request, status int, name string) error

func (f pageFunc) Page(w http.ResponseWriter, r *http.Request, status int, name string, _ any) error {
	return f(w, r, status, name)
}
