package service

import (
	"encoding/json"
	"fmt"

	"golang-predict-settler/internal/entity"

	"github.com/google/uuid"
)

// newDomainEvent builds an outbox row whose event id is derived
// deterministically from the topic and the transition key. Replaying the
// same transition therefore produces the same event id, and downstream
// consumers dedup on it.
func newDomainEvent(topic, key string, payload interface{}) (*entity.OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	eventID := uuid.NewSHA1(uuid.NameSpaceURL, []byte("settler/"+topic+"/"+key))
	return &entity.OutboxEvent{
		EventID: eventID.String(),
		Topic:   topic,
		Payload: body,
	}, nil
}
