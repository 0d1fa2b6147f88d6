package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/storefront/internal/session"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/validator"
)

// SessionTokenHeader carries a newly issued session token back to clients
// that authenticate with a bearer header instead of the cookie.
const SessionTokenHeader = "X-Session-Token"

type contextKey string

const resolvedKey contextKey = "session"

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

func (c CookieConfig) write(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(SessionTokenHeader, token)
}

// SessionResolver attaches the caller's storefront session to the request,
// starting a new one when the token is missing or no longer valid. The
// session and user IDs are added to the context for logging, and the
// principal to the identity guards.
func SessionResolver(mgr *session.Manager, cookie CookieConfig, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			res, err := mgr.Resolve(ctx, middleware.BearerToken(r, cookie.Name))
			if err != nil {
				httputil.WriteError(w, r, err, l)
				return
			}
			if res.Token != "" {
				cookie.write(w, res.Token)
			}

			ctx = logger.WithSessionID(ctx, res.Session.ID)
			if p, ok := res.Session.Principal(); ok {
				ctx = logger.WithUserID(ctx, p.UserID)
				ctx = middleware.WithIdentity(ctx, p.UserID, string(p.Role))
			}
			ctx = context.WithValue(ctx, resolvedKey, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolvedFromContext returns the session attached by SessionResolver.
func resolvedFromContext(ctx context.Context) *session.Resolved {
	res, _ := ctx.Value(resolvedKey).(*session.Resolved)
	return res
}

func sessionFromRequest(r *http.Request) *session.Session {
	if res := resolvedFromContext(r.Context()); res != nil {
		return res.Session
	}
	return nil
}

// requireSession wraps handlers that cannot run without a resolved session.
func requireSession(l *slog.Logger, fn func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFromRequest(r)
		if s == nil {
			writeNoSession(w, r, l)
			return
		}
		fn(w, r, s)
	}
}

func writeNoSession(w http.ResponseWriter, r *http.Request, l *slog.Logger) {
	httputil.WriteError(w, r, apperrors.Internal(errors.New("no session in request context")), l)
}

// decodeJSON reads the request body into dst without validating it, so the
// component receiving it can report problems the way it always does. On
// failure the 400 has already been written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := validator.Decode(r, dst); err != nil {
		httputil.WriteValidationError(w, r, err)
		return false
	}
	return true
}

// decodeAndValidate reads and validates the request body. On failure the
// 400 has already been written.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := validator.DecodeAndValidate(r, dst); err != nil {
		httputil.WriteValidationError(w, r, err)
		return false
	}
	return true
}
