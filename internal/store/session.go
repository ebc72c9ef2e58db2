package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

type sessionKey struct{}

// Session is the persistent-state session of one request. It begins a
// transaction on the first write; reads before that run on the pool. Commit
// ends the transaction and the next write begins a new one. After Rollback
// the session is finished and queries run on the pool directly.
type Session struct {
	db       *sql.DB
	mu       sync.Mutex
	tx       *sql.Tx
	finished bool
}

// NewSession returns a request session bound to the store's pool.
func (s *SQLStore) NewSession() *Session {
	return &Session{db: s.db}
}

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the request session carried by ctx, or nil.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionKey{}).(*Session)
	return sess
}

// Middleware opens a request session for every request and rolls back
// whatever the handler left uncommitted.
func (s *SQLStore) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := s.NewSession()
		defer sess.Rollback()
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

func (sess *Session) querier(ctx context.Context, write bool) (querier, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.finished {
		return sess.db, nil
	}
	if sess.tx == nil {
		if !write {
			return sess.db, nil
		}
		tx, err := sess.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin transaction: %w", err)
		}
		sess.tx = tx
	}
	return sess.tx, nil
}

// Active reports whether a transaction is open.
func (sess *Session) Active() bool {
	if sess == nil {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.tx != nil
}

// Commit commits the open transaction, if any.
func (sess *Session) Commit() error {
	if sess == nil {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.tx == nil {
		return nil
	}
	tx := sess.tx
	sess.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the open transaction, if any, and finishes the session.
// It never fails; rollback errors are logged.
func (sess *Session) Rollback() {
	if sess == nil {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.finished = true
	if sess.tx == nil {
		return
	}
	tx := sess.tx
	sess.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.Warn("Failed to roll back request transaction", "error", err)
	}
}
