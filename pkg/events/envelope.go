// Package events defines the versioned wire envelope used to carry a
// models.CacheEvent across the optional pubsub fan-out in the invalidation
// package. The version field follows an add-fields-never-remove policy so
// consumers can evolve independently.
package events

import (
	"errors"
	"fmt"

	"github.com/cordal/queryflow/pkg/codec"
	"github.com/cordal/queryflow/pkg/models"
)

const EnvelopeVersion1 = 1

// Envelope wraps a models.CacheEvent for transport over encore.dev/pubsub,
// adding a schema version and a request ID for tracing.
type Envelope struct {
	Version   int               `json:"version"`
	EventType string            `json:"event_type"`
	Source    string            `json:"source"`
	Data      map[string]string `json:"data,omitempty"`
	AtMillis  int64             `json:"at_millis"`
	RequestID string            `json:"request_id"`
}

// NewEnvelope builds an Envelope from a domain event.
func NewEnvelope(e *models.CacheEvent, requestID string) *Envelope {
	return &Envelope{
		Version:   EnvelopeVersion1,
		EventType: e.EventType,
		Source:    e.Source,
		Data:      e.Data,
		AtMillis:  e.TimestampMillis,
		RequestID: requestID,
	}
}

// Validate enforces the required fields for an envelope to be published.
func (e *Envelope) Validate() error {
	if e.Version != EnvelopeVersion1 {
		return fmt.Errorf("unsupported event envelope version: %d", e.Version)
	}
	if e.EventType == "" {
		return errors.New("event_type is required")
	}
	if e.Source == "" {
		return errors.New("source is required")
	}
	if e.AtMillis == 0 {
		return errors.New("at_millis cannot be zero")
	}
	if e.RequestID == "" {
		return errors.New("request_id is required for tracing")
	}
	return nil
}

// ToJSON serializes the envelope.
func (e *Envelope) ToJSON() ([]byte, error) {
	return codec.Marshal(e)
}

// FromJSON deserializes an envelope.
func FromJSON(data []byte) (*Envelope, error) {
	var e Envelope
	if err := codec.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ToDomainEvent converts the envelope back into the core models.CacheEvent type.
func (e *Envelope) ToDomainEvent() *models.CacheEvent {
	return &models.CacheEvent{
		EventType:       e.EventType,
		Source:          e.Source,
		Data:            e.Data,
		TimestampMillis: e.AtMillis,
	}
}
