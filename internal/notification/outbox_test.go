package notification

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	notificationdomain "github.com/groupcart/groupcart/internal/notification/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupOutbox(t *testing.T) (notificationdomain.Dispatcher, *Publisher, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&notificationdomain.OutboxMessage{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	params := Params{DB: db, Log: zap.NewNop(), GenID: node}
	return NewOutboxDispatcher(params), NewPublisher(params), db, node
}

func TestSendQueuesMessage(t *testing.T) {
	dispatcher, _, db, node := setupOutbox(t)

	err := dispatcher.Send(context.Background(), notificationdomain.Notification{
		Kind:           notificationdomain.KindInvoiceIssued,
		RecipientOrgID: node.Generate(),
		Payload:        map[string]any{"invoice_number": "INV-202608-0001"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	var message notificationdomain.OutboxMessage
	if err := db.Raw(`SELECT id, recipient_org_id, kind, payload, published, created_at FROM notification_outbox`).Scan(&message).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if message.Kind != notificationdomain.KindInvoiceIssued {
		t.Fatalf("expected %s, got %s", notificationdomain.KindInvoiceIssued, message.Kind)
	}
	if message.Published {
		t.Fatalf("expected unpublished message")
	}
}

func TestSendValidates(t *testing.T) {
	dispatcher, _, _, node := setupOutbox(t)

	if err := dispatcher.Send(context.Background(), notificationdomain.Notification{
		RecipientOrgID: node.Generate(),
	}); err == nil {
		t.Fatalf("expected error for missing kind")
	}
	if err := dispatcher.Send(context.Background(), notificationdomain.Notification{
		Kind: notificationdomain.KindPaymentFailed,
	}); err == nil {
		t.Fatalf("expected error for missing recipient")
	}
}

func TestPublishPendingDrainsOnce(t *testing.T) {
	dispatcher, publisher, _, node := setupOutbox(t)

	for i := 0; i < 3; i++ {
		if err := dispatcher.Send(context.Background(), notificationdomain.Notification{
			Kind:           notificationdomain.KindPaymentSucceeded,
			RecipientOrgID: node.Generate(),
			Payload:        map[string]any{"seq": i},
		}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	published, err := publisher.PublishPending(context.Background(), 100)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published != 3 {
		t.Fatalf("expected 3 published, got %d", published)
	}

	published, err = publisher.PublishPending(context.Background(), 100)
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if published != 0 {
		t.Fatalf("expected drained outbox, got %d", published)
	}
}

func TestPublishPendingHonorsLimit(t *testing.T) {
	dispatcher, publisher, _, node := setupOutbox(t)

	for i := 0; i < 5; i++ {
		if err := dispatcher.Send(context.Background(), notificationdomain.Notification{
			Kind:           notificationdomain.KindInvoiceOverdue,
			RecipientOrgID: node.Generate(),
		}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	published, err := publisher.PublishPending(context.Background(), 2)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published != 2 {
		t.Fatalf("expected 2 published, got %d", published)
	}
}

func TestDispatchSwallowsFailures(t *testing.T) {
	// A nil dispatcher is a no-op rather than a panic.
	Dispatch(context.Background(), zap.NewNop(), nil, notificationdomain.Notification{
		Kind: notificationdomain.KindCampaignLocked,
	})

	dispatcher, _, _, _ := setupOutbox(t)
	// Missing recipient fails inside Send; Dispatch logs and moves on.
	Dispatch(context.Background(), zap.NewNop(), dispatcher, notificationdomain.Notification{
		Kind: notificationdomain.KindCampaignLocked,
	})
}
