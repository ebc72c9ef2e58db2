package api

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/ashureev/kkoala/internal/apperr"
	"github.com/ashureev/kkoala/internal/auth"
	"github.com/ashureev/kkoala/internal/domain"
	"github.com/ashureev/kkoala/internal/session"
	"github.com/ashureev/kkoala/internal/store"
	"github.com/go-chi/chi/v5"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{3,32}$`)

var darkModeOptions = []domain.DarkMode{domain.DarkModeLight, domain.DarkModeDark, domain.DarkModeSystem}

// accountForm is the view data of the login and register pages.
type accountForm struct {
	Username string
	Error    string
}

// settingsForm is the view data of the settings page.
type settingsForm struct {
	Options []domain.DarkMode
	Saved   bool
	Error   string
}

func (h *Handler) registerAccount(r chi.Router) {
	r.Get("/register", h.hooks.Handle(h.RegisterForm))
	r.Post("/register", h.hooks.Handle(h.Register))
	r.Get("/login", h.hooks.Handle(h.LoginForm))
	r.Post("/login", h.hooks.Handle(h.Login))
	r.Post("/logout", h.hooks.Handle(h.Logout))
	r.Get("/settings", h.hooks.Handle(h.SettingsForm))
	r.Post("/settings", h.hooks.Handle(h.UpdateSettings))
}

// RegisterForm shows the registration form.
func (h *Handler) RegisterForm(w http.ResponseWriter, r *http.Request) error {
	return h.pages.Page(w, r, http.StatusOK, "register.html", accountForm{})
}

// Register creates an account and signs it in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	form := accountForm{Username: strings.TrimSpace(r.PostFormValue("username"))}

	if !usernamePattern.MatchString(form.Username) {
		form.Error = "Usernames are 3 to 32 letters, digits, dots, dashes or underscores."
		return h.pages.Page(w, r, http.StatusBadRequest, "register.html", form)
	}

	hash, err := h.hasher.Hash(r.PostFormValue("password"))
	if errors.Is(err, auth.ErrPasswordTooShort) {
		form.Error = err.Error()
		return h.pages.Page(w, r, http.StatusBadRequest, "register.html", form)
	}
	if err != nil {
		return apperr.ServerFault("hash password", err)
	}

	user := &domain.User{Username: form.Username, PasswordHash: hash}
	if err := h.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			form.Error = "That username is already taken."
			return h.pages.Page(w, r, http.StatusConflict, "register.html", form)
		}
		return apperr.ServerFault("create user", err)
	}
	if err := h.repo.Commit(ctx); err != nil {
		return apperr.ServerFault("commit new user", err)
	}

	slog.Info("User registered", "username", user.Username, "user_id", user.ID)
	return h.signIn(w, r, user.Username)
}

// LoginForm shows the login form.
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) error {
	return h.pages.Page(w, r, http.StatusOK, "login.html", accountForm{})
}

// Login verifies credentials and signs the user in.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) error {
	form := accountForm{Username: strings.TrimSpace(r.PostFormValue("username"))}

	user, err := h.repo.FindUserByUsername(r.Context(), form.Username)
	if err != nil {
		return apperr.ServerFault("load user", err)
	}
	if user == nil || !h.hasher.Verify(user.PasswordHash, r.PostFormValue("password")) {
		form.Error = "Invalid username or password."
		return h.pages.Page(w, r, http.StatusUnauthorized, "login.html", form)
	}

	return h.signIn(w, r, user.Username)
}

// Logout clears the session identity.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) error {
	data := session.FromContext(r.Context())
	if data != nil && data.Username != "" {
		data.ChangeIdentity("", h.newToken())
		if err := h.sessions.Save(w, data); err != nil {
			return apperr.ServerFault("save session", err)
		}
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
	return nil
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request, username string) error {
	data := session.FromContext(r.Context())
	if data == nil {
		data = &session.Data{}
	}
	data.ChangeIdentity(username, h.newToken())
	if err := h.sessions.Save(w, data); err != nil {
		return apperr.ServerFault("save session", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
	return nil
}

// SettingsForm shows the display settings of the signed-in user.
func (h *Handler) SettingsForm(w http.ResponseWriter, r *http.Request) error {
	if !session.IdentityFromContext(r.Context()).Present() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil
	}
	form := settingsForm{Options: darkModeOptions, Saved: r.URL.Query().Get("saved") == "1"}
	return h.pages.Page(w, r, http.StatusOK, "settings.html", form)
}

// UpdateSettings stores the dark mode preference of the signed-in user.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id := session.IdentityFromContext(ctx)
	if !id.Present() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil
	}

	mode, ok := domain.ParseDarkMode(r.PostFormValue("dark_mode"))
	if !ok {
		form := settingsForm{Options: darkModeOptions, Error: "Choose light, dark or system."}
		return h.pages.Page(w, r, http.StatusBadRequest, "settings.html", form)
	}

	user, err := h.repo.FindUserByUsername(ctx, id.Username)
	if err != nil {
		return apperr.ServerFault("load user", err)
	}
	if user == nil {
		return apperr.Forbidden("session names unknown user " + id.Username)
	}

	if err := h.repo.UpsertSettings(ctx, user.ID, mode); err != nil {
		return apperr.ServerFault("save settings", err)
	}
	if err := h.repo.Commit(ctx); err != nil {
		return apperr.ServerFault("commit settings", err)
	}

	http.Redirect(w, r, "/settings?saved=1", http.StatusSeeOther)
	return nil
}
