package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_sessions_active",
		Help: "Sessions currently held in memory.",
	})

	sessionsEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_sessions_evicted_total",
		Help: "Sessions torn down after being idle.",
	})

	sessionsRebuiltTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_sessions_rebuilt_total",
		Help: "Sessions rebuilt from a valid token after restart or eviction.",
	})
)

// Builder creates a fresh, signed-out session.
type Builder interface {
	New(id string) *Session
}

// ManagerConfig holds the session lifetime settings.
type ManagerConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// Resolved is a session bound to the token that identified it. Token is set
// only when a new token was issued and must be handed back to the client.
type Resolved struct {
	Session *Session
	Claims  *Claims
	Token   string
}

// Manager owns the live sessions and their tokens.
type Manager struct {
	tokens      *TokenManager
	revocations RevocationStore
	builder     Builder
	cfg         ManagerConfig
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a session manager.
func NewManager(tokens *TokenManager, revocations RevocationStore, builder Builder, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if revocations == nil {
		revocations = NewMemoryRevocations()
	}
	return &Manager{
		tokens:      tokens,
		revocations: revocations,
		builder:     builder,
		cfg:         cfg,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		sessions:    make(map[string]*Session),
	}
}

// Resolve returns the session identified by token. A missing, invalid,
// expired or revoked token starts a new anonymous session. A valid token
// whose session is no longer held is rebuilt from its claims.
func (m *Manager) Resolve(ctx context.Context, token string) (*Resolved, error) {
	if token == "" {
		return m.Start(ctx)
	}

	log := logger.WithContext(ctx, m.logger)
	claims, err := m.tokens.Parse(token)
	if err != nil {
		log.DebugContext(ctx, "session token rejected", slog.String("error", err.Error()))
		return m.Start(ctx)
	}

	revoked, err := m.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		log.WarnContext(ctx, "revocation check failed, accepting token",
			slog.String("session_id", claims.SessionID),
			slog.String("error", err.Error()),
		)
	}
	if revoked {
		log.DebugContext(ctx, "revoked session token", slog.String("session_id", claims.SessionID))
		return m.Start(ctx)
	}

	s, err := m.attach(ctx, claims)
	if err != nil {
		return nil, err
	}
	return &Resolved{Session: s, Claims: claims}, nil
}

// Start creates a new anonymous session and its token.
func (m *Manager) Start(ctx context.Context) (*Resolved, error) {
	sid := uuid.NewString()
	token, claims, err := m.tokens.Issue(sid, nil)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	s := m.builder.New(sid)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.Close(ctx)
		return nil, apperrors.ServiceUnavailable("storefront is shutting down")
	}
	m.sessions[sid] = s
	sessionsActive.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	logger.WithContext(ctx, m.logger).DebugContext(ctx, "session started", slog.String("session_id", sid))
	return &Resolved{Session: s, Claims: claims, Token: token}, nil
}

func (m *Manager) attach(ctx context.Context, claims *Claims) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, apperrors.ServiceUnavailable("storefront is shutting down")
	}
	s, ok := m.sessions[claims.SessionID]
	if !ok {
		s = m.builder.New(claims.SessionID)
		m.sessions[claims.SessionID] = s
		sessionsActive.Set(float64(len(m.sessions)))
		sessionsRebuiltTotal.Inc()
	}
	m.mu.Unlock()

	s.Touch(m.now())
	if p, ok := claims.Principal(); ok {
		s.Identity.Restore(logger.WithSessionID(ctx, s.ID), p)
	}
	if !ok {
		logger.WithContext(ctx, m.logger).InfoContext(ctx, "session rebuilt from token",
			slog.String("session_id", s.ID),
			slog.String("user_id", claims.UserID),
		)
	}
	return s, nil
}

// Login signs the session in and replaces its token. The previous token is
// revoked.
func (m *Manager) Login(ctx context.Context, r *Resolved, creds domain.Credentials) (*Resolved, error) {
	p, err := r.Session.Identity.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	m.revoke(ctx, r.Claims)
	return m.reissue(r.Session, &p)
}

// Register creates a customer account and signs the session in as it.
func (m *Manager) Register(ctx context.Context, r *Resolved, in domain.Registration) (*Resolved, error) {
	user, err := r.Session.Account.Register(ctx, in)
	if err != nil {
		return nil, err
	}
	return m.Login(ctx, r, domain.Credentials{Username: user.Username, Password: in.Password})
}

// UpdateProfile changes the signed-in user's profile, then revokes the
// session token and issues one carrying the updated principal.
func (m *Manager) UpdateProfile(ctx context.Context, r *Resolved, in domain.ProfileInput) (*Resolved, error) {
	user, err := r.Session.Account.UpdateProfile(ctx, in)
	if err != nil {
		return nil, err
	}
	p := domain.PrincipalFromUser(user)
	m.revoke(ctx, r.Claims)
	r.Session.Identity.Restore(logger.WithSessionID(ctx, r.Session.ID), p)
	return m.reissue(r.Session, &p)
}

// Logout signs the session out, revokes its token and issues an anonymous
// one for the same session.
func (m *Manager) Logout(ctx context.Context, r *Resolved) (*Resolved, error) {
	m.revoke(ctx, r.Claims)
	r.Session.Identity.Logout(ctx)
	return m.reissue(r.Session, nil)
}

func (m *Manager) reissue(s *Session, p *domain.Principal) (*Resolved, error) {
	token, claims, err := m.tokens.Issue(s.ID, p)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &Resolved{Session: s, Claims: claims, Token: token}, nil
}

func (m *Manager) revoke(ctx context.Context, claims *Claims) {
	if claims == nil {
		return
	}
	if err := m.revocations.Revoke(ctx, claims.ID, claims.Remaining(m.now())); err != nil {
		logger.WithContext(ctx, m.logger).ErrorContext(ctx, "failed to revoke session token",
			slog.String("session_id", claims.SessionID),
			slog.String("error", err.Error()),
		)
	}
}

// Get returns the live session with the given ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep tears down sessions idle for at least the idle timeout and returns
// how many were evicted.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()
	var idle []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastSeen()) >= m.cfg.IdleTimeout {
			delete(m.sessions, id)
			idle = append(idle, s)
		}
	}
	sessionsActive.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	for _, s := range idle {
		s.Close(logger.WithSessionID(ctx, s.ID))
		sessionsEvictedTotal.Inc()
	}
	if len(idle) > 0 {
		m.logger.InfoContext(ctx, "evicted idle sessions", slog.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps idle sessions every sweep interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Close tears down every session. Later calls to Resolve and Start fail.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		delete(m.sessions, id)
		all = append(all, s)
	}
	sessionsActive.Set(0)
	m.mu.Unlock()

	for _, s := range all {
		s.Close(logger.WithSessionID(ctx, s.ID))
	}
}
