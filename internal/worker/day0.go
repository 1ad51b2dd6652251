package worker

import (
	"context"
	"errors"

	"github.com/databender/leadengine/internal/pkg/logger"
	"github.com/databender/leadengine/internal/service/sequence"
	"github.com/databender/leadengine/internal/tasks"
)

// Day0Sender sends the welcome email of a fresh enrollment.
// *sequence.Processor satisfies it.
type Day0Sender interface {
	SendDay0(ctx context.Context, email string) (bool, error)
}

// HandleSequenceDay0 returns the tasks.Handler for tasks.TypeSequenceDay0.
// Send failures are returned so the queue redelivers; a lead or sequence
// that has since disappeared is acknowledged.
func HandleSequenceDay0(p Day0Sender) tasks.Handler {
	return func(ctx context.Context, t tasks.Task) error {
		var payload tasks.LeadPayload
		if err := t.Decode(&payload); err != nil {
			logger.Warn("dropping malformed day0 task", "task_id", t.ID, "error", err.Error())
			return nil
		}

		sent, err := p.SendDay0(ctx, payload.Email)
		switch {
		case errors.Is(err, sequence.ErrLeadNotFound), errors.Is(err, sequence.ErrNoSequence):
			logger.Warn("day0 skipped", "email", payload.Email, "reason", err.Error())
			return nil
		case err != nil:
			return err
		case !sent:
			logger.Info("day0 skipped, sequence not active", "email", payload.Email)
		}
		return nil
	}
}

// Register wires the task handlers into a consumer.
func Register(c *tasks.Consumer, n *Notifier, p Day0Sender) {
	c.Handle(tasks.TypeLeadCaptured, n.HandleLeadCaptured)
	c.Handle(tasks.TypeSequenceDay0, HandleSequenceDay0(p))
}
