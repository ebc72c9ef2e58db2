package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/ashureev/kkoala/internal/domain"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// userColumns lists columns returned by user SELECT queries.
var userColumns = []string{
	"u.id", "u.username", "u.password_hash", "u.is_admin", "u.created_at",
	"s.dark_mode", "s.updated_at",
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Repository on SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
}

// New wraps an open database handle.
func New(db *sql.DB, dialect Dialect) *SQLStore {
	var format sq.PlaceholderFormat = sq.Question
	if dialect == DialectPostgres {
		format = sq.Dollar
	}
	return &SQLStore{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// Open connects to the backend selected by databaseURL:
// "sqlite://<path>" or "postgres://...".
func Open(databaseURL string) (*SQLStore, error) {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return NewSQLite(strings.TrimPrefix(databaseURL, "sqlite://"))
	case strings.HasPrefix(databaseURL, "sqlite:"):
		return NewSQLite(strings.TrimPrefix(databaseURL, "sqlite:"))
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return NewPostgres(databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database url %q", databaseURL)
	}
}

// NewSQLite creates a new SQLite-backed store.
// Foreign key enforcement is enabled on every pooled connection.
func NewSQLite(dbPath string) (*SQLStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency. Write transactions
	// take the write lock at BEGIN so busy_timeout covers them.
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(db, DialectSQLite)
	enabled, err := s.ForeignKeysEnabled(context.Background())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if !enabled {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite foreign key enforcement is disabled")
	}

	return s, nil
}

// NewPostgres creates a new PostgreSQL-backed store.
func NewPostgres(databaseURL string) (*SQLStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return New(db, DialectPostgres), nil
}

// DB returns the underlying database handle.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Dialect returns the backend in use.
func (s *SQLStore) Dialect() Dialect { return s.dialect }

// ForeignKeysEnabled reports whether the connection enforces foreign keys.
// PostgreSQL always does.
func (s *SQLStore) ForeignKeysEnabled(ctx context.Context) (bool, error) {
	if s.dialect != DialectSQLite {
		return true, nil
	}
	var on int
	if err := s.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on); err != nil {
		return false, fmt.Errorf("read foreign_keys pragma: %w", err)
	}
	return on == 1, nil
}

// reader returns the request session's open transaction, or the pool.
// Reads never begin a transaction.
func (s *SQLStore) reader(ctx context.Context) (querier, error) {
	if sess := SessionFromContext(ctx); sess != nil {
		return sess.querier(ctx, false)
	}
	return s.db, nil
}

// writer returns the request session's transaction, beginning it if needed.
func (s *SQLStore) writer(ctx context.Context) (querier, error) {
	if sess := SessionFromContext(ctx); sess != nil {
		return sess.querier(ctx, true)
	}
	return s.db, nil
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// FindUserByUsername retrieves a user and their optional settings record.
func (s *SQLStore) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query, args, err := s.sb.Select(userColumns...).
		From("users u").
		LeftJoin("user_settings s ON s.user_id = u.id").
		Where(sq.Eq{"u.username": username}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user query: %w", err)
	}

	q, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}

	var user domain.User
	var createdAt int64
	var darkMode sql.NullString
	var settingsUpdatedAt sql.NullInt64

	err = q.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin, &createdAt,
		&darkMode, &settingsUpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	if darkMode.Valid {
		user.Settings = &domain.Settings{
			DarkMode:  domain.DarkMode(darkMode.String),
			UpdatedAt: time.Unix(settingsUpdatedAt.Int64, 0),
		}
	}

	return &user, nil
}

// CreateUser inserts a user and sets user.ID.
func (s *SQLStore) CreateUser(ctx context.Context, user *domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	query, args, err := s.sb.Insert("users").
		Columns("username", "password_hash", "is_admin", "created_at").
		Values(user.Username, user.PasswordHash, user.IsAdmin, user.CreatedAt.Unix()).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user: %w", err)
	}

	q, err := s.writer(ctx)
	if err != nil {
		return err
	}

	if err := q.QueryRowContext(ctx, query, args...).Scan(&user.ID); err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpsertSettings creates or updates the settings record of a user.
func (s *SQLStore) UpsertSettings(ctx context.Context, userID int64, mode domain.DarkMode) error {
	query, args, err := s.sb.Insert("user_settings").
		Columns("user_id", "dark_mode", "updated_at").
		Values(userID, string(mode), time.Now().Unix()).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET dark_mode = excluded.dark_mode, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert settings: %w", err)
	}

	q, err := s.writer(ctx)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// Commit commits the writes of the request session carried by ctx.
func (s *SQLStore) Commit(ctx context.Context) error {
	if sess := SessionFromContext(ctx); sess != nil {
		return sess.Commit()
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
