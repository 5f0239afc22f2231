package invalidation

import (
	"context"
	"log"

	"encore.dev/pubsub"

	"github.com/cordal/queryflow/pkg/events"
	"github.com/cordal/queryflow/pkg/models"
)

// ProcessedTopic carries one envelope per rule firing, letting downstream
// services (dashboards, other regions) observe invalidations without
// polling the audit table.
var ProcessedTopic = pubsub.NewTopic[*events.Envelope](events.TopicCacheEvents, pubsub.TopicConfig{
	DeliveryGuarantee: pubsub.AtLeastOnce,
})

// Notifier publishes processed invalidation events onto ProcessedTopic.
// Publication failures are logged, never propagated — a downstream observer
// being unreachable must not block or fail the invalidation itself.
type Notifier struct{}

func NewNotifier() *Notifier {
	return &Notifier{}
}

// Publish wraps event in an envelope tagged with requestID and fans it out.
func (*Notifier) Publish(ctx context.Context, event *models.CacheEvent, requestID string) {
	env := events.NewEnvelope(event, requestID)
	if _, err := ProcessedTopic.Publish(ctx, env); err != nil {
		log.Printf("invalidation: failed to publish processed event %q: %v", event.EventType, err)
	}
}
