package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/flanksource/hse/types"
)

const dateFormat = "2006-01-02"

// DomainEvent is raised by a successful workflow operation and turned into a
// Notification for a single recipient.
type DomainEvent struct {
	Type        NotificationType `json:"type"`
	EntityID    uuid.UUID        `json:"entity_id"`
	Reference   string           `json:"reference,omitempty"`
	Title       string           `json:"title,omitempty"`
	RecipientID *uuid.UUID       `json:"recipient_id,omitempty"`
	ActorID     *uuid.UUID       `json:"actor_id,omitempty"`
	DueDate     *time.Time       `json:"due_date,omitempty"`
	Severity    string           `json:"severity,omitempty"`
	RiskLevel   int              `json:"risk_level,omitempty"`
	Message     string           `json:"message,omitempty"`
}

func (e DomainEvent) HasRecipient() bool {
	return e.RecipientID != nil && *e.RecipientID != uuid.Nil
}

// Properties flattens the event into event_queue properties.
func (e DomainEvent) Properties() types.JSONStringMap {
	props := types.JSONStringMap{
		"type":      string(e.Type),
		"entity_id": e.EntityID.String(),
	}
	if e.Reference != "" {
		props["reference"] = e.Reference
	}
	if e.Title != "" {
		props["title"] = e.Title
	}
	if e.HasRecipient() {
		props["recipient_id"] = e.RecipientID.String()
	}
	if e.ActorID != nil {
		props["actor_id"] = e.ActorID.String()
	}
	if e.DueDate != nil {
		props["due_date"] = e.DueDate.Format(dateFormat)
	}
	if e.Severity != "" {
		props["severity"] = e.Severity
	}
	if e.RiskLevel != 0 {
		props["risk_level"] = strconv.Itoa(e.RiskLevel)
	}
	if e.Message != "" {
		props["message"] = e.Message
	}
	return props
}

// DomainEventFromProperties is the inverse of DomainEvent.Properties.
func DomainEventFromProperties(props types.JSONStringMap) (DomainEvent, error) {
	e := DomainEvent{
		Type:      NotificationType(props["type"]),
		Reference: props["reference"],
		Title:     props["title"],
		Severity:  props["severity"],
		Message:   props["message"],
	}

	if !e.Type.Valid() {
		return e, fmt.Errorf("unknown event type %q", props["type"])
	}

	var err error
	if e.EntityID, err = uuid.Parse(props["entity_id"]); err != nil {
		return e, fmt.Errorf("invalid entity_id %q: %w", props["entity_id"], err)
	}

	if v := props["recipient_id"]; v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return e, fmt.Errorf("invalid recipient_id %q: %w", v, err)
		}
		e.RecipientID = &id
	}

	if v := props["actor_id"]; v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return e, fmt.Errorf("invalid actor_id %q: %w", v, err)
		}
		e.ActorID = &id
	}

	if v := props["due_date"]; v != "" {
		d, err := time.Parse(dateFormat, v)
		if err != nil {
			return e, fmt.Errorf("invalid due_date %q: %w", v, err)
		}
		e.DueDate = &d
	}

	if v := props["risk_level"]; v != "" {
		if e.RiskLevel, err = strconv.Atoi(v); err != nil {
			return e, fmt.Errorf("invalid risk_level %q: %w", v, err)
		}
	}

	return e, nil
}
