// Package notification queues pipeline notifications through a
// transactional outbox table.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/groupcart/groupcart/internal/notification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var Module = fx.Module("notification.dispatcher",
	fx.Provide(
		NewOutboxDispatcher,
		NewPublisher,
	),
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type outboxDispatcher struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

// NewOutboxDispatcher returns a dispatcher that enqueues messages into the
// notification_outbox table for an external delivery worker.
func NewOutboxDispatcher(p Params) notificationdomain.Dispatcher {
	return &outboxDispatcher{
		db:    p.DB,
		log:   p.Log.Named("notification.outbox"),
		genID: p.GenID,
	}
}

func (d *outboxDispatcher) Send(ctx context.Context, n notificationdomain.Notification) error {
	if n.Kind == "" {
		return errors.New("missing notification kind")
	}
	if n.RecipientOrgID == 0 {
		return errors.New("missing notification recipient")
	}

	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	return d.db.WithContext(ctx).Exec(
		`INSERT INTO notification_outbox (id, recipient_org_id, kind, payload, published, created_at)
		 VALUES (?, ?, ?, ?, false, ?)`,
		d.genID.Generate(),
		n.RecipientOrgID,
		n.Kind,
		datatypes.JSON(payload),
		now,
	).Error
}

// Publisher drains the outbox. Delivery is a structured log line; a real
// deployment swaps this for an email or webhook sender behind the same
// table.
type Publisher struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewPublisher(p Params) *Publisher {
	return &Publisher{
		db:  p.DB,
		log: p.Log.Named("notification.publisher"),
	}
}

// PublishPending delivers up to limit unpublished messages and marks
// them published. Returns how many were delivered.
func (p *Publisher) PublishPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	var messages []notificationdomain.OutboxMessage
	err := p.db.WithContext(ctx).Raw(
		`SELECT id, recipient_org_id, kind, payload, published, created_at
		 FROM notification_outbox
		 WHERE published = false
		 ORDER BY created_at
		 LIMIT ?`,
		limit,
	).Scan(&messages).Error
	if err != nil {
		return 0, err
	}

	published := 0
	for _, message := range messages {
		p.log.Info("notification delivered",
			zap.String("kind", message.Kind),
			zap.String("recipient_org_id", message.RecipientOrgID.String()),
			zap.String("payload", string(message.Payload)),
		)
		err := p.db.WithContext(ctx).Exec(
			`UPDATE notification_outbox SET published = true WHERE id = ?`,
			message.ID,
		).Error
		if err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

// Dispatch sends best-effort: failures are logged, never propagated.
// Services call this after their transaction commits.
func Dispatch(ctx context.Context, log *zap.Logger, dispatcher notificationdomain.Dispatcher, n notificationdomain.Notification) {
	if dispatcher == nil {
		return
	}
	if err := dispatcher.Send(ctx, n); err != nil {
		log.Warn("notification dispatch failed",
			zap.String("kind", n.Kind),
			zap.String("recipient_org_id", n.RecipientOrgID.String()),
			zap.Error(err),
		)
	}
}
