package notify

import (
	"context"
	"log/slog"

	"coursechat/pkg/interfaces"
	"coursechat/pkg/types"
)

// Publisher is the interface collaborator flows (enrollment, material
// upload, feedback creation) call to notify a user. The notification is
// persisted first; the push to live connections is best-effort, so a
// recipient with no open connection still finds the record later through
// the unread-count and list queries.
type Publisher struct {
	store    interfaces.NotificationStore
	registry interfaces.GroupRegistry
	log      *slog.Logger
}

// NewPublisher creates a notification publisher.
func NewPublisher(store interfaces.NotificationStore, registry interfaces.GroupRegistry, log *slog.Logger) *Publisher {
	return &Publisher{store: store, registry: registry, log: log}
}

// Publish persists a notification for the recipient and pushes it to the
// recipient's live personal connections. Persistence failure is the only
// failure: fan-out cannot fail, it just reaches nobody.
func (p *Publisher) Publish(ctx context.Context, recipientID int64, verb, url string, actorID *int64) (*types.Notification, error) {
	n, err := p.store.AppendNotification(ctx, recipientID, actorID, verb, url)
	if err != nil {
		return nil, err
	}

	p.registry.Publish(types.UserKey(recipientID), types.NewNotificationFrame(n))

	p.log.Debug("notification published",
		"recipient_id", recipientID, "notification_id", n.ID, "verb", verb)
	return n, nil
}
