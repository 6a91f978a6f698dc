package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/example/srdflow/internal/mq"
	"github.com/example/srdflow/internal/notify"
	"github.com/example/srdflow/internal/realtime"
	"github.com/example/srdflow/internal/repository"
)

// NotifierRelay consumes srd.* domain events from the queue and fans them out
// to realtime subscribers and, for creation events, to every known user as a
// push notification. All delivery here is best-effort; the state mutation
// that produced the event has already been committed.
type NotifierRelay struct {
	consumer mq.Consumer
	bridge   *realtime.Bridge
	users    *repository.UserRepository
	pusher   notify.Pusher
	logger   *zap.Logger
}

// NewNotifierRelay creates the relay.
func NewNotifierRelay(consumer mq.Consumer, bridge *realtime.Bridge, users *repository.UserRepository, pusher notify.Pusher, logger *zap.Logger) *NotifierRelay {
	return &NotifierRelay{consumer: consumer, bridge: bridge, users: users, pusher: pusher, logger: logger}
}

// Run starts consuming and blocks until the context is cancelled. Should be
// launched in its own goroutine.
func (r *NotifierRelay) Run(ctx context.Context) {
	if r.consumer == nil {
		r.logger.Warn("no event consumer configured, notification relay idle")
		<-ctx.Done()
		return
	}
	if err := r.consumer.Consume(func(d amqp091.Delivery) {
		r.handle(ctx, d)
	}); err != nil {
		r.logger.Error("start event consumer", zap.Error(err))
		return
	}
	<-ctx.Done()
	r.logger.Info("notification relay shutting down")
}

func (r *NotifierRelay) handle(ctx context.Context, d amqp091.Delivery) {
	r.bridge.Publish(ctx, realtime.Event{Name: d.RoutingKey, Data: string(d.Body)})

	if d.RoutingKey == "srd.created" {
		r.notifyAll(ctx, d.Body)
	}

	if err := d.Ack(false); err != nil {
		r.logger.Warn("ack event", zap.Error(err))
	}
}

func (r *NotifierRelay) notifyAll(ctx context.Context, body []byte) {
	var payload struct {
		RefNo string `json:"refNo"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		r.logger.Warn("decode creation event", zap.Error(err))
		return
	}

	users, err := r.users.List(ctx)
	if err != nil {
		r.logger.Warn("list users for notification", zap.Error(err))
		return
	}
	message := fmt.Sprintf("New SRD %s created", payload.RefNo)
	for _, user := range users {
		if err := r.pusher.PushTo(ctx, user, "New SRD", message); err != nil {
			r.logger.Warn("push notification failed",
				zap.String("user", user.Username),
				zap.Error(err))
		}
	}
}
