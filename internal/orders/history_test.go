package orders

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/notify"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// --- Mock Backend ---

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) ByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}

func (m *mockBackend) Get(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockBackend) Count(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockBackend) TotalSpent(ctx context.Context, userID string) (decimal.Decimal, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type staticPrincipal struct {
	p  domain.Principal
	ok bool
}

func (s staticPrincipal) Principal() (domain.Principal, bool) { return s.p, s.ok }

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func signedIn(userID string, role domain.Role) staticPrincipal {
	return staticPrincipal{p: domain.Principal{UserID: userID, Username: userID, Role: role}, ok: true}
}

func newTestHistory(who PrincipalSource) (*History, *mockBackend, *notify.Inbox) {
	b := &mockBackend{}
	inbox := notify.NewInbox(10)
	return NewHistory(b, who, inbox, newTestLogger()), b, inbox
}

func orderAt(id, userID string, at time.Time) domain.Order {
	return domain.Order{ID: id, UserID: userID, Status: domain.OrderPending, CreatedAt: domain.Timestamp{Time: at}}
}

// --- List ---

func TestList_NewestFirst(t *testing.T) {
	h, b, _ := newTestHistory(signedIn("u-1", domain.RoleCustomer))
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b.On("ByUser", mock.Anything, "u-1").Return([]domain.Order{
		orderAt("o-1", "u-1", base),
		orderAt("o-3", "u-1", base.Add(48*time.Hour)),
		orderAt("o-2", "u-1", base.Add(24*time.Hour)),
	}, nil)

	orders, err := h.List(context.Background())

	require.NoError(t, err)
	var ids []string
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"o-3", "o-2", "o-1"}, ids)
	b.AssertExpectations(t)
}

func TestList_RequiresPrincipal(t *testing.T) {
	h, b, _ := newTestHistory(staticPrincipal{})

	_, err := h.List(context.Background())

	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	b.AssertNotCalled(t, "ByUser", mock.Anything, mock.Anything)
}

func TestList_FailureNotifies(t *testing.T) {
	h, b, inbox := newTestHistory(signedIn("u-1", domain.RoleCustomer))
	b.On("ByUser", mock.Anything, "u-1").Return(nil, fmt.Errorf("connection reset"))

	_, err := h.List(context.Background())

	assert.True(t, apperrors.IsRemote(err))
	assert.Equal(t, notify.MsgOrdersLoadFailed, inbox.Drain()[0].Message)
}

// --- Get ---

func TestGet_AccessRules(t *testing.T) {
	order := orderAt("o-1", "u-1", time.Now())

	tests := []struct {
		name    string
		who     staticPrincipal
		wantErr error
	}{
		{"owner", signedIn("u-1", domain.RoleCustomer), nil},
		{"admin", signedIn("u-9", domain.RoleAdmin), nil},
		{"other customer", signedIn("u-2", domain.RoleCustomer), apperrors.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, b, _ := newTestHistory(tt.who)
			b.On("Get", mock.Anything, "o-1").Return(&order, nil)

			got, err := h.Get(context.Background(), "o-1")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "o-1", got.ID)
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	h, b, inbox := newTestHistory(signedIn("u-1", domain.RoleCustomer))
	b.On("Get", mock.Anything, "o-404").Return(nil, apperrors.NotFound("order", "o-404"))

	_, err := h.Get(context.Background(), "o-404")

	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, notify.MsgOrderLoadFailed, inbox.Drain()[0].Message)
}

// --- Stats ---

func TestStats(t *testing.T) {
	h, b, _ := newTestHistory(signedIn("u-1", domain.RoleCustomer))
	b.On("Count", mock.Anything, "u-1").Return(3, nil)
	b.On("TotalSpent", mock.Anything, "u-1").Return(decimal.RequireFromString("149.97"), nil)

	stats, err := h.Stats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, "149.97", stats.TotalSpent.String())
	b.AssertExpectations(t)
}

func TestStats_PartialFailure(t *testing.T) {
	h, b, inbox := newTestHistory(signedIn("u-1", domain.RoleCustomer))
	b.On("Count", mock.Anything, "u-1").Return(3, nil)
	b.On("TotalSpent", mock.Anything, "u-1").Return(decimal.Zero, apperrors.ServiceUnavailable("circuit open"))

	_, err := h.Stats(context.Background())

	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	assert.Equal(t, 1, inbox.Len())
}
