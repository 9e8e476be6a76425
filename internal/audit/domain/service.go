package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service records audit trail entries. Implementations must never fail the
// calling business operation; persistence errors are logged and swallowed.
type Service interface {
	AuditLog(ctx context.Context, orgID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
}
