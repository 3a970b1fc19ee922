package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ms-booking/internal/logger"
)

const defaultPublishTimeout = 5 * time.Second

// Publisher is the transport the dispatcher writes through. *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Notification is the payload consumed by the notification service.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// Dispatcher sends notifications and lifecycle events asynchronously.
// Failures are logged and dropped; callers never observe them.
type Dispatcher struct {
	publisher Publisher
	topic     string
	timeout   time.Duration
	logger    *logger.Logger
	wg        sync.WaitGroup
}

// NewDispatcher returns a dispatcher writing notifications to topic. A nil
// publisher yields a dispatcher that only logs.
func NewDispatcher(publisher Publisher, topic string, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Dispatcher{
		publisher: publisher,
		topic:     topic,
		timeout:   defaultPublishTimeout,
		logger:    log,
	}
}

// Notify queues a user notification.
func (d *Dispatcher) Notify(userID, title, body, category string) {
	if userID == "" {
		return
	}
	n := Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		Category:  category,
		CreatedAt: time.Now().UTC(),
	}
	d.PublishEvent(d.topic, userID, n)
}

// PublishEvent queues payload as JSON on topic.
func (d *Dispatcher) PublishEvent(topic, key string, payload interface{}) {
	value, err := json.Marshal(payload)
	if err != nil {
		d.logger.Warn("NOTIFY", fmt.Sprintf("Dropping event for %s: %v", topic, err))
		return
	}
	if d.publisher == nil {
		d.logger.Debug("NOTIFY", fmt.Sprintf("No publisher, dropping %s key=%s", topic, key))
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.publisher.Publish(ctx, topic, key, value); err != nil {
			d.logger.Warn("NOTIFY", fmt.Sprintf("Failed to publish to %s key=%s: %v", topic, key, err))
			return
		}
		d.logger.Debug("NOTIFY", fmt.Sprintf("Published to %s key=%s", topic, key))
	}()
}

// Wait blocks until every queued publish has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
