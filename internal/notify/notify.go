// Package notify delivers short user-facing messages, the storefront's
// equivalent of toasts.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/storefront/pkg/logger"
)

// Level is the severity of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is one message shown to the user.
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// New builds a notification with a fresh ID.
func New(level Level, message string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// Success builds a success notification.
func Success(message string) Notification { return New(LevelSuccess, message) }

// Error builds an error notification.
func Error(message string) Notification { return New(LevelError, message) }

// Info builds an informational notification.
func Info(message string) Notification { return New(LevelInfo, message) }

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

var (
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_notifications_total",
			Help: "Notifications delivered to session inboxes by level.",
		},
		[]string{"level"},
	)
	notificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_notifications_dropped_total",
			Help: "Notifications evicted from a full inbox before being read.",
		},
	)
)

// Inbox is a bounded per-session queue. When full, the oldest entry is dropped.
type Inbox struct {
	mu    sync.Mutex
	items []Notification
	limit int
}

// NewInbox creates an inbox holding at most limit notifications.
func NewInbox(limit int) *Inbox {
	if limit < 1 {
		limit = 1
	}
	return &Inbox{limit: limit}
}

// Notify implements Notifier.
func (b *Inbox) Notify(_ context.Context, n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == b.limit {
		b.items = b.items[1:]
		notificationsDropped.Inc()
	}
	b.items = append(b.items, n)
	notificationsTotal.WithLabelValues(string(n.Level)).Inc()
}

// Drain returns every pending notification, oldest first, and empties the inbox.
func (b *Inbox) Drain() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Notification, len(b.items))
	copy(out, b.items)
	b.items = nil
	return out
}

// Len returns the number of pending notifications.
func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// LogNotifier mirrors notifications to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs every notification.
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: l}
}

// Notify implements Notifier. Errors log at Warn, everything else at Debug.
func (n *LogNotifier) Notify(ctx context.Context, note Notification) {
	level := slog.LevelDebug
	if note.Level == LevelError {
		level = slog.LevelWarn
	}
	logger.WithContext(ctx, n.logger).Log(ctx, level, "notification",
		slog.String("notification_id", note.ID),
		slog.String("level", string(note.Level)),
		slog.String("message", note.Message),
	)
}

type multi []Notifier

// Multi fans a notification out to every non-nil notifier in order.
func Multi(notifiers ...Notifier) Notifier {
	out := make(multi, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m multi) Notify(ctx context.Context, n Notification) {
	for _, target := range m {
		target.Notify(ctx, n)
	}
}

// Discard drops every notification.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(context.Context, Notification) {}
