// Package identity tracks who is signed in to a storefront session.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/notify"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/validator"
)

// State is the sign-in state of a Source.
type State int

const (
	LoggedOut State = iota
	Loading
	LoggedIn
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case LoggedIn:
		return "logged_in"
	default:
		return "logged_out"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Authenticator checks credentials against the user store.
type Authenticator interface {
	Login(ctx context.Context, creds domain.Credentials) (*domain.User, error)
}

// Listener is called with the new principal, or nil after sign-out.
type Listener func(ctx context.Context, p *domain.Principal)

// Source owns the principal of one session and tells listeners whenever it
// changes.
type Source struct {
	auth     Authenticator
	notifier notify.Notifier
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	principal *domain.Principal

	listenMu  sync.Mutex
	before    []Listener
	listeners []Listener
}

// NewSource creates a signed-out source.
func NewSource(auth Authenticator, notifier notify.Notifier, logger *slog.Logger) *Source {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Source{auth: auth, notifier: notifier, logger: logger}
}

// OnChange registers l. Listeners run in registration order.
func (s *Source) OnChange(l Listener) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// BeforeChange registers l to run before a new principal becomes visible
// through Principal. Hooks see the incoming principal, or nil on sign-out,
// and run before every OnChange listener.
func (s *Source) BeforeChange(l Listener) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.before = append(s.before, l)
}

// Login validates creds and signs in against the user store. On failure the
// previous principal, if any, is kept. A second sign-in while one is in
// flight is rejected as busy.
func (s *Source) Login(ctx context.Context, creds domain.Credentials) (domain.Principal, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if err := validator.Validate(creds); err != nil {
		s.notifier.Notify(ctx, notify.Error(notify.MsgCredentialsRequired))
		return domain.Principal{}, err
	}

	s.mu.Lock()
	prev := s.state
	if prev == Loading {
		s.mu.Unlock()
		return domain.Principal{}, apperrors.Busy("a sign-in is already in progress")
	}
	s.state = Loading
	s.mu.Unlock()

	log := logger.WithContext(ctx, s.logger).With(slog.String("username", creds.Username))

	user, err := s.auth.Login(ctx, creds)
	if err != nil {
		s.mu.Lock()
		s.state = prev
		s.mu.Unlock()

		var appErr *apperrors.AppError
		switch {
		case errors.Is(err, apperrors.ErrUnauthorized), errors.Is(err, apperrors.ErrNotFound):
			log.InfoContext(ctx, "sign-in rejected")
			s.notifier.Notify(ctx, notify.Error(notify.MsgSignInFailed))
			return domain.Principal{}, apperrors.Unauthorized(notify.MsgSignInFailed)
		case errors.As(err, &appErr):
			log.WarnContext(ctx, "sign-in failed", slog.String("error", err.Error()))
			s.notifier.Notify(ctx, notify.Error(notify.MsgBackendFailed))
			return domain.Principal{}, err
		default:
			log.WarnContext(ctx, "sign-in failed", slog.String("error", err.Error()))
			s.notifier.Notify(ctx, notify.Error(notify.MsgBackendFailed))
			return domain.Principal{}, apperrors.Remote("users", err)
		}
	}

	p := domain.PrincipalFromUser(user)
	s.set(ctx, &p)
	log.InfoContext(ctx, "signed in", slog.String("user_id", p.UserID), slog.String("role", string(p.Role)))
	s.notifier.Notify(ctx, notify.Success(notify.MsgSignedIn))
	return p, nil
}

// Restore signs p in without contacting the user store, e.g. from a verified
// session token. Restoring the current principal is a no-op.
func (s *Source) Restore(ctx context.Context, p domain.Principal) {
	s.mu.Lock()
	same := s.principal != nil && *s.principal == p
	s.mu.Unlock()
	if same {
		return
	}
	s.set(ctx, &p)
}

// Logout signs the principal out. Logging out while signed out is a no-op.
func (s *Source) Logout(ctx context.Context) {
	s.mu.Lock()
	signedIn := s.principal != nil
	s.mu.Unlock()
	if !signedIn {
		return
	}
	s.set(ctx, nil)
	logger.WithContext(ctx, s.logger).InfoContext(ctx, "signed out")
	s.notifier.Notify(ctx, notify.Info(notify.MsgSignedOut))
}

// set runs the before hooks, stores p and then runs the listeners. The
// listener mutex is taken first so that concurrent changes reach hooks and
// listeners in the order they were stored.
func (s *Source) set(ctx context.Context, p *domain.Principal) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	for _, l := range s.before {
		l(ctx, copyPrincipal(p))
	}

	s.mu.Lock()
	s.principal = p
	if p == nil {
		s.state = LoggedOut
	} else {
		s.state = LoggedIn
	}
	s.mu.Unlock()

	for _, l := range s.listeners {
		l(ctx, copyPrincipal(p))
	}
}

func copyPrincipal(p *domain.Principal) *domain.Principal {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Principal returns the signed-in principal.
func (s *Source) Principal() (domain.Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == nil {
		return domain.Principal{}, false
	}
	return *s.principal, true
}

// State returns the current sign-in state.
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
