package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront/internal/cartsync"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/pkg/httputil"
)

// SessionHandler handles sign-in state.
type SessionHandler struct {
	manager *session.Manager
	cookie  CookieConfig
	logger  *slog.Logger
}

// NewSessionHandler creates a new session HTTP handler.
func NewSessionHandler(manager *session.Manager, cookie CookieConfig, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{manager: manager, cookie: cookie, logger: logger}
}

// SessionView is the JSON shape of a session.
type SessionView struct {
	ID            string            `json:"id"`
	Authenticated bool              `json:"authenticated"`
	State         string            `json:"state"`
	Principal     *domain.Principal `json:"principal,omitempty"`
	Cart          cartsync.Snapshot `json:"cart"`
	Token         string            `json:"token,omitempty"`
}

func viewOf(res *session.Resolved) SessionView {
	sv := res.Session.View()
	return SessionView{
		ID:            res.Session.ID,
		Authenticated: sv.Principal != nil,
		State:         sv.State.String(),
		Principal:     sv.Principal,
		Cart:          sv.Cart,
		Token:         res.Token,
	}
}

// Get handles GET /api/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.withResolved(w, r, func(res *session.Resolved) {
		v := viewOf(res)
		v.Token = ""
		httputil.WriteData(w, http.StatusOK, v)
	})
}

// Login handles POST /api/session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.withResolved(w, r, func(res *session.Resolved) {
		var creds domain.Credentials
		if !decodeJSON(w, r, &creds) {
			return
		}

		next, err := h.manager.Login(r.Context(), res, creds)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		h.cookie.write(w, next.Token)
		httputil.WriteData(w, http.StatusOK, viewOf(next))
	})
}

// Register handles POST /api/session/register
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.withResolved(w, r, func(res *session.Resolved) {
		var in domain.Registration
		if !decodeJSON(w, r, &in) {
			return
		}

		next, err := h.manager.Register(r.Context(), res, in)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		h.cookie.write(w, next.Token)
		httputil.WriteData(w, http.StatusCreated, viewOf(next))
	})
}

// UpdateProfile handles PUT /api/session/profile
func (h *SessionHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	h.withResolved(w, r, func(res *session.Resolved) {
		var in domain.ProfileInput
		if !decodeJSON(w, r, &in) {
			return
		}

		next, err := h.manager.UpdateProfile(r.Context(), res, in)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		h.cookie.write(w, next.Token)
		httputil.WriteData(w, http.StatusOK, viewOf(next))
	})
}

// Logout handles POST /api/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.withResolved(w, r, func(res *session.Resolved) {
		next, err := h.manager.Logout(r.Context(), res)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		h.cookie.write(w, next.Token)
		httputil.WriteData(w, http.StatusOK, viewOf(next))
	})
}

func (h *SessionHandler) withResolved(w http.ResponseWriter, r *http.Request, fn func(*session.Resolved)) {
	res := resolvedFromContext(r.Context())
	if res == nil {
		writeNoSession(w, r, h.logger)
		return
	}
	fn(res)
}
