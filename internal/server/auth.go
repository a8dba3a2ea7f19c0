package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/services"
	"github.com/desertthunder/nowplaying/internal/shared"
)

const (
	stateCookie = "nowplaying_oauth_state"
	stateMaxAge = 600 // seconds
)

// AuthHandler runs the authorization-code flow and stores the resulting credentials.
//
//	GET /auth          → 307 to the upstream consent page
//	GET /auth/callback → validate state, exchange the code, store tokens, 307 to /?uri=<subscriber>
//
// Every callback failure is logged and collapsed to a bare 500.
type AuthHandler struct {
	oauth  services.OAuthService
	store  models.TokenStore
	secure bool
	logger *log.Logger
}

// NewAuthHandler creates an AuthHandler. State cookies are marked Secure when publicURL is https.
func NewAuthHandler(oauth services.OAuthService, store models.TokenStore, publicURL string, logger *log.Logger) *AuthHandler {
	return &AuthHandler{
		oauth:  oauth,
		store:  store,
		secure: strings.HasPrefix(publicURL, "https://"),
		logger: logger,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *AuthHandler) Routes() []string {
	return []string{"/auth", "/auth/callback"}
}

func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch r.URL.Path {
	case "/auth":
		h.authorize(w, r)
	case "/auth/callback":
		h.callback(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *AuthHandler) authorize(w http.ResponseWriter, r *http.Request) {
	state := shared.GenerateID()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   stateMaxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oauth.AuthURL(state), http.StatusTemporaryRedirect)
}

func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth", MaxAge: -1, HttpOnly: true, Secure: h.secure})

	subscriber, err := h.complete(r)
	if err != nil {
		h.logger.Warn("authorization failed", "error", err)
		internalError(w)
		return
	}

	h.logger.Info("authorized", "subscriber", subscriber)
	http.Redirect(w, r, "/?uri="+url.QueryEscape(subscriber), http.StatusTemporaryRedirect)
}

// complete validates the callback and persists the subscriber's tokens, returning the subscriber identity.
func (h *AuthHandler) complete(r *http.Request) (string, error) {
	query := r.URL.Query()

	cookie, err := r.Cookie(stateCookie)
	if err != nil {
		return "", fmt.Errorf("%w: no state cookie", shared.ErrInvalidState)
	}
	state := query.Get("state")
	if state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		return "", shared.ErrInvalidState
	}

	code := query.Get("code")
	if code == "" {
		return "", fmt.Errorf("%w: %s %s", shared.ErrAuthFailed, query.Get("error"), query.Get("error_description"))
	}

	token, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		return "", err
	}
	if token.RefreshToken == "" {
		return "", fmt.Errorf("%w: %w", shared.ErrAuthFailed, shared.ErrNoRefreshToken)
	}

	user, err := h.oauth.UserProfile(r.Context(), token.AccessToken)
	if err != nil {
		return "", err
	}

	record := models.TokenRecord{
		Subscriber:   user.URI,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	if err := h.store.Upsert(r.Context(), record); err != nil {
		return "", err
	}
	return user.URI, nil
}

func internalError(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
