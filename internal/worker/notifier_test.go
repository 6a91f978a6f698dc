package worker

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/srdflow/internal/models"
	"github.com/example/srdflow/internal/notify"
	"github.com/example/srdflow/internal/realtime"
	"github.com/example/srdflow/internal/repository"
)

type fakeAcker struct{ acked int }

func (f *fakeAcker) Ack(tag uint64, multiple bool) error       { f.acked++; return nil }
func (f *fakeAcker) Nack(tag uint64, multiple, req bool) error { return nil }
func (f *fakeAcker) Reject(tag uint64, requeue bool) error     { return nil }

type recordingPusher struct {
	sent []string
}

func (p *recordingPusher) PushTo(ctx context.Context, user models.User, title, body string) error {
	p.sent = append(p.sent, fmt.Sprintf("%s: %s", user.Username, body))
	return nil
}

var _ notify.Pusher = (*recordingPusher)(nil)

func newRelay(t *testing.T) (*NotifierRelay, *realtime.Client, *recordingPusher) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	users := []models.User{
		{Username: "asha", Name: "Asha", Department: "vmd"},
		{Username: "ravi", Name: "Ravi", Department: "cad"},
	}
	if err := db.Create(&users).Error; err != nil {
		t.Fatalf("seed users: %v", err)
	}

	hub := realtime.NewHub(zap.NewNop())
	client := &realtime.Client{ID: "c", Events: make(chan realtime.Event, 4)}
	hub.Register(client)
	bridge := realtime.NewBridge(nil, "srdflow:events", hub, zap.NewNop())

	pusher := &recordingPusher{}
	relay := NewNotifierRelay(nil, bridge, repository.NewUserRepository(db), pusher, zap.NewNop())
	return relay, client, pusher
}

func TestHandleForwardsToRealtime(t *testing.T) {
	relay, client, pusher := newRelay(t)
	acker := &fakeAcker{}

	relay.handle(context.Background(), amqp091.Delivery{
		Acknowledger: acker,
		RoutingKey:   "srd.status",
		Body:         []byte(`{"refNo":"SRD1-0001"}`),
	})

	select {
	case event := <-client.Events:
		if event.Name != "srd.status" {
			t.Errorf("event name = %q, want srd.status", event.Name)
		}
	default:
		t.Fatal("event not forwarded to hub")
	}
	if len(pusher.sent) != 0 {
		t.Errorf("status events must not push, got %v", pusher.sent)
	}
	if acker.acked != 1 {
		t.Errorf("delivery acked %d times, want 1", acker.acked)
	}
}

func TestHandlePushesOnCreation(t *testing.T) {
	relay, _, pusher := newRelay(t)

	relay.handle(context.Background(), amqp091.Delivery{
		Acknowledger: &fakeAcker{},
		RoutingKey:   "srd.created",
		Body:         []byte(`{"refNo":"SRD1-0002","title":"ring sample"}`),
	})

	if len(pusher.sent) != 2 {
		t.Fatalf("pushed to %d users, want 2", len(pusher.sent))
	}
	want := "asha: New SRD SRD1-0002 created"
	if pusher.sent[0] != want {
		t.Errorf("first push = %q, want %q", pusher.sent[0], want)
	}
}

func TestHandleToleratesMalformedCreationEvent(t *testing.T) {
	relay, _, pusher := newRelay(t)

	relay.handle(context.Background(), amqp091.Delivery{
		Acknowledger: &fakeAcker{},
		RoutingKey:   "srd.created",
		Body:         []byte("not json"),
	})

	if len(pusher.sent) != 0 {
		t.Errorf("malformed event should not push, got %v", pusher.sent)
	}
}

func TestRunWithoutConsumerIdlesUntilCancel(t *testing.T) {
	relay, _, _ := newRelay(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}
