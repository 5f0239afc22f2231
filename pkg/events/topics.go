package events

// TopicCacheEvents is the single encore.dev/pubsub topic used to fan out
// processed domain events (the same ones the in-process EventBus already
// delivered) to observers outside this service, for audit/debugging.
// Kebab-case per Encore's resource naming rules.
const TopicCacheEvents = "cache-events"
