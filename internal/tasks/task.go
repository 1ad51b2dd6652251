// Package tasks moves work off the request path: lead capture publishes a
// task, and the worker's Consumer executes it.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type names a kind of background task.
type Type string

const (
	// TypeLeadCaptured sends the sales notification for a new submission.
	TypeLeadCaptured Type = "lead.captured"
	// TypeSequenceDay0 sends the first email of a freshly enrolled sequence.
	TypeSequenceDay0 Type = "sequence.day0"
)

// Task is one unit of background work.
type Task struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// LeadPayload identifies the lead a task concerns.
type LeadPayload struct {
	Email  string `json:"email"`
	LeadID string `json:"leadId,omitempty"`
}

// ErrQueueClosed is returned by Receive once a memory queue is closed.
var ErrQueueClosed = errors.New("queue closed")

// New builds a task with a fresh ID and the payload marshaled to JSON.
func New(t Type, payload interface{}) (Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Task{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into dst.
func (t Task) Decode(dst interface{}) error {
	if err := json.Unmarshal(t.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", t.Type, err)
	}
	return nil
}

// Delivery is a received task plus the handle needed to acknowledge it.
type Delivery struct {
	Task   Task
	Handle string
}

// Queue is the transport between publishers and the Consumer.
type Queue interface {
	Publish(ctx context.Context, t Task) error
	Receive(ctx context.Context) ([]Delivery, error)
	Delete(ctx context.Context, handle string) error
}
