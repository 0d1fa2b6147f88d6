// Package cartsync keeps a local mirror of the signed-in user's remote cart
// consistent across concurrent mutations and principal changes.
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/notify"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

// CartBackend is the remote cart resource.
type CartBackend interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Create(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error)
	UpdateItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error)
	Clear(ctx context.Context, userID string) (*domain.Cart, error)
	Size(ctx context.Context, userID string) (int, error)
	Total(ctx context.Context, userID string) (decimal.Decimal, error)
}

// ActivitySink is told about every successful mutation. It must not block.
type ActivitySink interface {
	CartChanged(ctx context.Context, change Change)
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithActivity reports successful mutations to sink.
func WithActivity(sink ActivitySink) Option {
	return func(s *Synchronizer) { s.activity = sink }
}

// WithClock overrides the clock used to stamp mirrors.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// Synchronizer owns the cart mirror of one storefront session.
//
// Every mutation and its follow-up refresh run under opMu, so concurrent
// mutations queue instead of racing. Identical mutations submitted while one
// is outstanding share a single remote call through the singleflight group.
// Binding or unbinding a principal bumps the epoch; work started under an
// older epoch is never applied.
type Synchronizer struct {
	backend  CartBackend
	notifier notify.Notifier
	logger   *slog.Logger
	activity ActivitySink
	now      func() time.Time

	opMu   sync.Mutex
	flight singleflight.Group

	mu        sync.Mutex
	principal *domain.Principal
	epoch     uint64
	phase     Phase
	mirror    *domain.CartMirror
	inflight  int
	subs      map[int]chan Snapshot
	nextSub   int
	closed    bool
}

// New creates an unbound synchronizer.
func New(backend CartBackend, notifier notify.Notifier, logger *slog.Logger, opts ...Option) *Synchronizer {
	if notifier == nil {
		notifier = notify.Discard
	}
	s := &Synchronizer{
		backend:  backend,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		subs:     make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind attaches the synchronizer to p and loads p's cart. Binding a different
// user discards the previous mirror before anything else can observe it.
// Rebinding the same user only refreshes.
func (s *Synchronizer) Bind(ctx context.Context, p domain.Principal) error {
	s.mu.Lock()
	if s.principal != nil && s.principal.UserID == p.UserID {
		cp := p
		s.principal = &cp
		s.mu.Unlock()
		return s.Refresh(ctx)
	}
	cp := p
	s.principal = &cp
	s.resetLocked(Loading)
	s.mu.Unlock()

	s.log(ctx).InfoContext(ctx, "cart synchronizer bound", slog.String("user_id", p.UserID))
	return s.Refresh(ctx)
}

// Prepare readies the synchronizer for p before p becomes visible to
// readers. Switching to a different user, or to nil, drops the mirror at
// once without loading anything. Bind or Unbind completes the switch.
func (s *Synchronizer) Prepare(ctx context.Context, p *domain.Principal) {
	if p == nil {
		s.Unbind(ctx)
		return
	}
	s.mu.Lock()
	if s.principal != nil && s.principal.UserID == p.UserID {
		s.mu.Unlock()
		return
	}
	cp := *p
	s.principal = &cp
	s.resetLocked(Loading)
	s.mu.Unlock()

	s.log(ctx).InfoContext(ctx, "cart synchronizer bound", slog.String("user_id", p.UserID))
}

// Unbind detaches the principal and drops the mirror.
func (s *Synchronizer) Unbind(ctx context.Context) {
	s.mu.Lock()
	if s.principal == nil && s.phase == Unbound {
		s.mu.Unlock()
		return
	}
	userID := ""
	if s.principal != nil {
		userID = s.principal.UserID
	}
	s.principal = nil
	s.resetLocked(Unbound)
	s.mu.Unlock()

	s.log(ctx).InfoContext(ctx, "cart synchronizer unbound", slog.String("user_id", userID))
}

// resetLocked starts a new epoch with no mirror. s.mu must be held.
func (s *Synchronizer) resetLocked(phase Phase) {
	s.epoch++
	s.mirror = nil
	s.inflight = 0
	s.phase = phase
	s.publishLocked()
}

// Refresh reloads the mirror for the bound principal. Without a principal it
// clears the mirror and returns nil. A missing remote cart is created and
// mirrored as empty. Any other failure keeps the previous mirror, emits a
// notification and returns an application error.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	userID, epoch, ok := s.current()
	if !ok {
		s.mu.Lock()
		if s.mirror != nil || s.phase != Unbound {
			s.mirror = nil
			s.phase = Unbound
			s.publishLocked()
		}
		s.mu.Unlock()
		return nil
	}

	key := fmt.Sprintf("refresh|%s|%d", userID, epoch)
	return s.share(ctx, key, func(ctx context.Context) error {
		s.opMu.Lock()
		defer s.opMu.Unlock()
		return s.refreshLocked(ctx, userID, epoch)
	})
}

// refreshLocked fetches cart, count and total. s.opMu must be held.
func (s *Synchronizer) refreshLocked(ctx context.Context, userID string, epoch uint64) error {
	if !s.isCurrent(epoch) {
		return apperrors.Stale()
	}
	s.beginCall(epoch)
	defer s.endCall(epoch)

	log := s.log(ctx).With(slog.String("user_id", userID))

	cart, err := s.backend.Get(ctx, userID)
	if apperrors.IsNotFound(err) {
		if _, err := s.backend.Create(ctx, userID); err != nil {
			log.ErrorContext(ctx, "failed to create cart", slog.String("error", err.Error()))
			s.notify(ctx, notify.Error(notify.MsgCartCreateFail))
			return asAppError(err)
		}
		if !s.apply(epoch, domain.EmptyCartMirror(userID, s.now())) {
			return apperrors.Stale()
		}
		log.InfoContext(ctx, "cart created")
		return nil
	}
	if err != nil {
		return s.loadFailed(ctx, log, err)
	}

	count, err := s.backend.Size(ctx, userID)
	if err != nil {
		return s.loadFailed(ctx, log, err)
	}
	total, err := s.backend.Total(ctx, userID)
	if err != nil {
		return s.loadFailed(ctx, log, err)
	}

	if cart.UserID == "" {
		cart.UserID = userID
	}
	if !s.apply(epoch, domain.NewCartMirror(cart, count, total, s.now())) {
		log.DebugContext(ctx, "discarded cart for previous principal")
		return apperrors.Stale()
	}
	log.DebugContext(ctx, "cart refreshed", slog.Int("count", count), slog.String("total", total.String()))
	return nil
}

func (s *Synchronizer) loadFailed(ctx context.Context, log *slog.Logger, err error) error {
	log.ErrorContext(ctx, "failed to load cart", slog.String("error", err.Error()))
	s.notify(ctx, notify.Error(notify.MsgCartLoadFailed))
	return asAppError(err)
}

// AddItem adds quantity units of productID and refreshes on success.
func (s *Synchronizer) AddItem(ctx context.Context, productID string, quantity int) error {
	if err := validateLine(productID, quantity); err != nil {
		s.reject(ctx, OpAdd, notify.MsgInvalidQuantity)
		return err
	}
	return s.mutate(ctx, mutation{
		op:        OpAdd,
		productID: productID,
		quantity:  quantity,
		signIn:    notify.MsgSignInToAdd,
		okMsg:     notify.MsgItemAdded,
		failMsg:   notify.MsgAddFailed,
		call: func(ctx context.Context, userID string) error {
			_, err := s.backend.AddItem(ctx, userID, productID, quantity)
			return err
		},
	})
}

// UpdateItem sets the quantity of productID. A quantity of zero or less is
// exactly RemoveItem.
func (s *Synchronizer) UpdateItem(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, productID)
	}
	if err := validateLine(productID, quantity); err != nil {
		s.reject(ctx, OpUpdate, notify.MsgUpdateFailed)
		return err
	}
	return s.mutate(ctx, mutation{
		op:        OpUpdate,
		productID: productID,
		quantity:  quantity,
		signIn:    notify.MsgSignInRequired,
		okMsg:     notify.MsgCartUpdated,
		failMsg:   notify.MsgUpdateFailed,
		call: func(ctx context.Context, userID string) error {
			_, err := s.backend.UpdateItem(ctx, userID, productID, quantity)
			return err
		},
	})
}

// RemoveItem removes the line for productID.
func (s *Synchronizer) RemoveItem(ctx context.Context, productID string) error {
	if strings.TrimSpace(productID) == "" {
		s.reject(ctx, OpRemove, notify.MsgRemoveFailed)
		return apperrors.InvalidInput("product id is required")
	}
	return s.mutate(ctx, mutation{
		op:        OpRemove,
		productID: productID,
		signIn:    notify.MsgSignInRequired,
		okMsg:     notify.MsgItemRemoved,
		failMsg:   notify.MsgRemoveFailed,
		call: func(ctx context.Context, userID string) error {
			_, err := s.backend.RemoveItem(ctx, userID, productID)
			return err
		},
	})
}

// Clear empties the cart.
func (s *Synchronizer) Clear(ctx context.Context) error {
	return s.mutate(ctx, mutation{
		op:      OpClear,
		signIn:  notify.MsgSignInRequired,
		okMsg:   notify.MsgCartCleared,
		failMsg: notify.MsgClearFailed,
		call: func(ctx context.Context, userID string) error {
			_, err := s.backend.Clear(ctx, userID)
			return err
		},
	})
}

// Settle runs fn on the current mirror while userID stays bound and then
// empties the cart, all inside one serialized section: no mutation can land
// between fn and the clear. The cart is cleared only when fn succeeds and
// userID is still bound afterwards. A failed clear is logged and notified but
// does not change the result, which is fn's. fn must not call back into the
// synchronizer.
func (s *Synchronizer) Settle(ctx context.Context, userID string, fn func(ctx context.Context, m *domain.CartMirror) error) error {
	current, epoch, ok := s.current()
	if !ok {
		return apperrors.NotSignedIn()
	}
	if current != userID {
		cartOperationsTotal.WithLabelValues(string(OpClear), resultStale).Inc()
		return apperrors.Stale()
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.isCurrent(epoch) {
		cartOperationsTotal.WithLabelValues(string(OpClear), resultStale).Inc()
		return apperrors.Stale()
	}
	if err := fn(ctx, s.Mirror()); err != nil {
		return err
	}

	log := s.log(ctx).With(slog.String("user_id", userID), slog.String("op", string(OpClear)))
	if !s.isCurrent(epoch) {
		log.WarnContext(ctx, "principal changed before cart was cleared")
		cartOperationsTotal.WithLabelValues(string(OpClear), resultStale).Inc()
		return nil
	}

	start := time.Now()
	s.beginCall(epoch)
	_, err := s.backend.Clear(ctx, userID)
	s.endCall(epoch)
	cartOperationDuration.WithLabelValues(string(OpClear)).Observe(time.Since(start).Seconds())
	if err != nil {
		log.WarnContext(ctx, "cart not cleared after settle", slog.String("error", err.Error()))
		s.notify(ctx, notify.Error(notify.MsgClearFailed))
		cartOperationsTotal.WithLabelValues(string(OpClear), resultFailure).Inc()
		return nil
	}
	if err := s.refreshLocked(ctx, userID, epoch); err != nil {
		cartOperationsTotal.WithLabelValues(string(OpClear), resultFailure).Inc()
		return nil
	}

	cartOperationsTotal.WithLabelValues(string(OpClear), resultSuccess).Inc()
	log.InfoContext(ctx, "cart settled")
	s.notify(ctx, notify.Success(notify.MsgCartCleared))
	if s.activity != nil {
		s.activity.CartChanged(ctx, Change{UserID: userID, Op: OpClear, Mirror: s.Mirror()})
	}
	return nil
}

type mutation struct {
	op        Op
	productID string
	quantity  int
	signIn    string
	okMsg     string
	failMsg   string
	call      func(ctx context.Context, userID string) error
}

// mutate runs m followed by a refresh. Without a principal it makes no
// network call at all.
func (s *Synchronizer) mutate(ctx context.Context, m mutation) error {
	userID, epoch, ok := s.current()
	if !ok {
		s.notify(ctx, notify.Error(m.signIn))
		cartOperationsTotal.WithLabelValues(string(m.op), resultRejected).Inc()
		return apperrors.NotSignedIn()
	}

	start := time.Now()
	key := fmt.Sprintf("%s|%d|%s|%s|%d", userID, epoch, m.op, m.productID, m.quantity)
	err := s.share(ctx, key, func(ctx context.Context) error {
		return s.runMutation(ctx, userID, epoch, m)
	})
	cartOperationDuration.WithLabelValues(string(m.op)).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		cartOperationsTotal.WithLabelValues(string(m.op), resultSuccess).Inc()
	case errors.Is(err, apperrors.ErrStale):
		cartOperationsTotal.WithLabelValues(string(m.op), resultStale).Inc()
	default:
		cartOperationsTotal.WithLabelValues(string(m.op), resultFailure).Inc()
	}
	return err
}

func (s *Synchronizer) runMutation(ctx context.Context, userID string, epoch uint64, m mutation) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.isCurrent(epoch) {
		return apperrors.Stale()
	}

	log := s.log(ctx).With(
		slog.String("user_id", userID),
		slog.String("op", string(m.op)),
		slog.String("product_id", m.productID),
		slog.Int("quantity", m.quantity),
	)

	s.beginCall(epoch)
	err := m.call(ctx, userID)
	s.endCall(epoch)
	if err != nil {
		log.ErrorContext(ctx, "cart mutation failed", slog.String("error", err.Error()))
		s.notify(ctx, notify.Error(m.failMsg))
		return asAppError(err)
	}

	if err := s.refreshLocked(ctx, userID, epoch); err != nil {
		return err
	}

	log.InfoContext(ctx, "cart mutation applied")
	s.notify(ctx, notify.Success(m.okMsg))
	if s.activity != nil {
		s.activity.CartChanged(ctx, Change{
			UserID:    userID,
			Op:        m.op,
			ProductID: m.productID,
			Quantity:  m.quantity,
			Mirror:    s.Mirror(),
		})
	}
	return nil
}

// share runs fn once for all concurrent callers using the same key. The
// shared call is detached from any single caller's cancellation; a caller
// whose context ends stops waiting and gets a canceled error wrapping
// ctx.Err().
func (s *Synchronizer) share(ctx context.Context, key string, fn func(context.Context) error) error {
	detached := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (any, error) {
		return nil, fn(detached)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return apperrors.Canceled(ctx.Err())
	}
}

func (s *Synchronizer) reject(ctx context.Context, op Op, msg string) {
	s.notify(ctx, notify.Error(msg))
	cartOperationsTotal.WithLabelValues(string(op), resultRejected).Inc()
}

func validateLine(productID string, quantity int) error {
	if strings.TrimSpace(productID) == "" {
		return apperrors.InvalidInput("product id is required")
	}
	if quantity <= 0 {
		return apperrors.InvalidInput("quantity must be greater than 0")
	}
	return nil
}

// asAppError guarantees callers never see a raw transport error.
func asAppError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Remote("carts", err)
}

// current returns the bound user and epoch.
func (s *Synchronizer) current() (string, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == nil {
		return "", s.epoch, false
	}
	return s.principal.UserID, s.epoch, true
}

func (s *Synchronizer) isCurrent(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal != nil && s.epoch == epoch
}

func (s *Synchronizer) beginCall(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.principal == nil {
		return
	}
	s.inflight++
	s.phase = Loading
	s.publishLocked()
}

func (s *Synchronizer) endCall(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.principal == nil || s.inflight == 0 {
		return
	}
	s.inflight--
	if s.inflight == 0 {
		s.phase = Ready
	}
	s.publishLocked()
}

// apply replaces the mirror if epoch is still current.
func (s *Synchronizer) apply(epoch uint64, m *domain.CartMirror) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.principal == nil {
		return false
	}
	s.mirror = m
	s.publishLocked()
	return true
}

func (s *Synchronizer) notify(ctx context.Context, n notify.Notification) {
	s.notifier.Notify(ctx, n)
}

func (s *Synchronizer) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, s.logger)
}

// Snapshot returns a copy of the current state.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Mirror returns a copy of the current mirror, nil when there is none.
func (s *Synchronizer) Mirror() *domain.CartMirror {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mirror.Clone()
}

// Loading reports whether a remote call is in flight.
func (s *Synchronizer) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Principal returns the bound principal.
func (s *Synchronizer) Principal() (domain.Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == nil {
		return domain.Principal{}, false
	}
	return *s.principal, true
}

func (s *Synchronizer) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:   s.phase,
		Mirror:  s.mirror.Clone(),
		Loading: s.inflight > 0,
		Epoch:   s.epoch,
	}
	if s.principal != nil {
		snap.UserID = s.principal.UserID
	}
	return snap
}

// Subscribe returns a channel receiving a snapshot after every state change.
// Only the latest undelivered snapshot is kept. The returned func cancels the
// subscription and closes the channel.
func (s *Synchronizer) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// publishLocked delivers the current snapshot to every subscriber, replacing
// any snapshot the subscriber has not read yet. s.mu must be held.
func (s *Synchronizer) publishLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Close unbinds the synchronizer and closes every subscription.
func (s *Synchronizer) Close(ctx context.Context) {
	s.Unbind(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
