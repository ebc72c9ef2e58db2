// Package session provides the signed-cookie browsing session.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/kkoala/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CookieName = "kkoala_session"
	issuer     = "kkoala"
)

var (
	// ErrNoSession is returned by Load when the request carries no session cookie.
	ErrNoSession = errors.New("no session cookie")
	// ErrInvalidSession is returned by Load for tampered or expired cookies.
	ErrInvalidSession = errors.New("invalid session cookie")
)

type contextKey int

const dataKey contextKey = iota

// Data is the state kept in the session cookie.
type Data struct {
	Username  string
	CSRFToken string
}

// Identity returns the session identity, or domain.Anonymous.
func (d *Data) Identity() domain.Identity {
	if d == nil {
		return domain.Anonymous
	}
	return domain.Identity{Username: d.Username}
}

// ChangeIdentity switches the session to username and replaces the
// anti-forgery token so a token seen before the switch no longer validates.
func (d *Data) ChangeIdentity(username, token string) {
	d.Username = username
	d.CSRFToken = token
}

// WithData returns a copy of ctx carrying d.
func WithData(ctx context.Context, d *Data) context.Context {
	return context.WithValue(ctx, dataKey, d)
}

// FromContext returns the session data of the request, or nil.
func FromContext(ctx context.Context) *Data {
	if v, ok := ctx.Value(dataKey).(*Data); ok {
		return v
	}
	return nil
}

// IdentityFromContext returns the session identity of the request.
func IdentityFromContext(ctx context.Context) domain.Identity {
	return FromContext(ctx).Identity()
}

type claims struct {
	jwt.RegisteredClaims
	Username  string `json:"usr,omitempty"`
	CSRFToken string `json:"csrf,omitempty"`
}

// Manager signs and verifies session cookies.
type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewManager creates a Manager. Cookies are marked Secure unless isDev.
func NewManager(secret string, ttl time.Duration, isDev bool) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		secure: !isDev,
		now:    time.Now,
	}
}

// Load reads the session from the request cookie.
func (m *Manager) Load(r *http.Request) (*Data, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil, ErrNoSession
	}

	var cl claims
	token, err := jwt.ParseWithClaims(c.Value, &cl, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	return &Data{Username: cl.Username, CSRFToken: cl.CSRFToken}, nil
}

// Save writes d as the response's session cookie, replacing any session
// cookie already set on w.
func (m *Manager) Save(w http.ResponseWriter, d *Data) error {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Username:  d.Username,
		CSRFToken: d.CSRFToken,
	})

	value, err := token.SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}

	dropSetCookie(w.Header(), CookieName)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		Expires:  now.Add(m.ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   m.secure,
	})
	return nil
}

func dropSetCookie(h http.Header, name string) {
	existing := h.Values("Set-Cookie")
	if len(existing) == 0 {
		return
	}
	h.Del("Set-Cookie")
	for _, v := range existing {
		if !strings.HasPrefix(v, name+"=") {
			h.Add("Set-Cookie", v)
		}
	}
}
