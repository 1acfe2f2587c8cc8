package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	httpapi "github.com/libreone/libreone-server/internal/api/http"
	"github.com/libreone/libreone-server/internal/logger"
	"github.com/libreone/libreone-server/internal/model"
	"github.com/libreone/libreone-server/internal/service"
	"github.com/libreone/libreone-server/internal/token"
)

type ctxKey int

const principalKey ctxKey = 0

// Principal is the authenticated caller attached to the request context.
// Role is the resolved capability consulted by authorization checks; a
// browser session always acts as at least a member.
type Principal struct {
	UserID    uuid.UUID
	SessionID string
	Role      service.Role
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// WithPrincipal attaches a principal to the context. Handlers under the
// authenticator get it set automatically; tests set it directly.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// Authenticator accepts either the split cookie pair or an Authorization
// bearer token. An expired session sends the browser back through login; an
// invalid one sends it through logout. Non-GET callers get a JSON 401 with
// the same distinction.
type Authenticator struct {
	tokens     *token.SessionManager
	sessions   *service.SessionService
	loginPath  string
	logoutPath string
	logger     *logger.Logger
}

func NewAuthenticator(tokens *token.SessionManager, sessions *service.SessionService, loginPath, logoutPath string, logger *logger.Logger) *Authenticator {
	return &Authenticator{
		tokens:     tokens,
		sessions:   sessions,
		loginPath:  loginPath,
		logoutPath: logoutPath,
		logger:     logger,
	}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			access := httpapi.Read(r, httpapi.CookieAccess)
			signed := httpapi.Read(r, httpapi.CookieSigned)
			if access != "" && signed != "" {
				raw = token.JoinSessionToken(access, signed)
			}
		}
		if raw == "" {
			a.reject(w, r, model.ErrSessionInvalid)
			return
		}

		userID, sessionID, err := a.tokens.VerifySessionToken(raw)
		if err != nil {
			a.reject(w, r, err)
			return
		}

		session, err := a.sessions.FindValid(r.Context(), sessionID)
		if err != nil {
			a.reject(w, r, err)
			return
		}
		if session.UserID != userID {
			a.reject(w, r, model.ErrSessionInvalid)
			return
		}

		ctx := WithPrincipal(r.Context(), Principal{
			UserID:    userID,
			SessionID: sessionID,
			Role:      service.Member(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, err error) {
	expired := errors.Is(err, model.ErrSessionExpired)

	if r.Method == http.MethodGet {
		if expired {
			target := a.loginPath + "?redirectURI=" + url.QueryEscape(r.URL.String())
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		http.Redirect(w, r, a.logoutPath, http.StatusFound)
		return
	}

	code := "session_invalid"
	title := "Authentication required"
	if expired {
		code = "session_expired"
		title = "Session expired"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": http.StatusUnauthorized,
		"code":   code,
		"title":  title,
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
