package port

import (
	"context"

	"github.com/bangunpro/rab-approval/internal/domain/entity"
)

// Messenger delivers a notification to a recipient over an external
// channel. The engine itself never calls this; only the delivery worker
// does, draining the notification outbox.
type Messenger interface {
	Send(ctx context.Context, n *entity.ApprovalNotification, recipient *entity.User) error
}
