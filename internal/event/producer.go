// Package event publishes storefront activity to Kafka.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/cartsync"
	"github.com/utafrali/storefront/internal/domain"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Source identifies events originating from the storefront.
const Source = "storefront"

// Event types.
const (
	TypeCartActivity = "cart.activity"
	TypeOrderPlaced  = "order.placed"
)

// Kafka topics.
var (
	TopicCartActivity = pkgkafka.Topic("cart", "activity")
	TopicOrderPlaced  = pkgkafka.Topic("order", "placed")
)

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 5 * time.Second
)

var eventsDroppedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_events_dropped_total",
		Help: "Events dropped because the publish queue was full.",
	},
	[]string{"topic"},
)

// CartActivityData is the payload of a cart.activity event.
type CartActivityData struct {
	UserID    string          `json:"user_id"`
	Op        string          `json:"op"`
	ProductID string          `json:"product_id,omitempty"`
	Quantity  int             `json:"quantity,omitempty"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
}

// OrderPlacedData is the payload of an order.placed event.
type OrderPlacedData struct {
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	ItemCount   int             `json:"item_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
	City        string          `json:"city"`
	Country     string          `json:"country"`
}

// Publisher sends one event to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

type job struct {
	topic string
	event *pkgkafka.Event
}

// Producer queues storefront events and publishes them from a single
// background goroutine, so callers never wait on the broker. Publish
// failures are logged and dropped.
type Producer struct {
	pub     Publisher
	logger  *slog.Logger
	timeout time.Duration

	queue chan job
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewProducer creates a producer and starts its publishing goroutine. Close
// must be called to stop it.
func NewProducer(pub Publisher, logger *slog.Logger) *Producer {
	p := &Producer{
		pub:     pub,
		logger:  logger,
		timeout: defaultPublishTimeout,
		queue:   make(chan job, defaultQueueSize),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Producer) run() {
	defer close(p.done)
	for j := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.pub.Publish(ctx, j.topic, j.event); err != nil {
			p.logger.ErrorContext(ctx, "failed to publish event",
				slog.String("topic", j.topic),
				slog.String("event_type", j.event.EventType),
				slog.String("key", j.event.Key),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}

// CartChanged publishes a cart.activity event.
func (p *Producer) CartChanged(ctx context.Context, change cartsync.Change) {
	data := CartActivityData{
		UserID:    change.UserID,
		Op:        string(change.Op),
		ProductID: change.ProductID,
		Quantity:  change.Quantity,
	}
	if change.Mirror != nil {
		data.ItemCount = change.Mirror.Count
		data.Total = change.Mirror.Total
	}
	p.enqueue(ctx, TopicCartActivity, TypeCartActivity, change.UserID, data)
}

// OrderPlaced publishes an order.placed event.
func (p *Producer) OrderPlaced(ctx context.Context, order *domain.Order, shipping domain.ShippingInfo) {
	data := OrderPlacedData{
		OrderID:     order.ID,
		UserID:      order.UserID,
		ItemCount:   order.ItemCount(),
		TotalAmount: order.TotalAmount,
		Status:      string(order.Status),
		City:        shipping.City,
		Country:     shipping.Country,
	}
	p.enqueue(ctx, TopicOrderPlaced, TypeOrderPlaced, order.UserID, data)
}

func (p *Producer) enqueue(ctx context.Context, topic, eventType, key string, data any) {
	log := logger.WithContext(ctx, p.logger)

	ev, err := pkgkafka.NewEvent(eventType, key, Source, data)
	if err != nil {
		log.ErrorContext(ctx, "failed to build event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
		return
	}
	ev.WithCorrelationID(logger.CorrelationIDFromContext(ctx)).
		WithSessionID(logger.SessionIDFromContext(ctx))

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		log.WarnContext(ctx, "event dropped after shutdown", slog.String("topic", topic))
		return
	}
	select {
	case p.queue <- job{topic: topic, event: ev}:
	default:
		eventsDroppedTotal.WithLabelValues(topic).Inc()
		log.WarnContext(ctx, "event queue full, dropping event",
			slog.String("topic", topic),
			slog.String("event_type", eventType),
		)
	}
}

// Close stops accepting events and waits until the queued ones are published
// or ctx is done.
func (p *Producer) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush events: %w", ctx.Err())
	}
}
