package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/databender/leadengine/internal/pkg/logger"
)

// Handler executes one task. A nil error acknowledges the task.
type Handler func(ctx context.Context, t Task) error

// Consumer polls a Queue and dispatches tasks by type.
type Consumer struct {
	queue      Queue
	handlers   map[Type]Handler
	retryDelay time.Duration
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewConsumer creates a consumer with no handlers registered.
func NewConsumer(q Queue) *Consumer {
	return &Consumer{
		queue:      q,
		handlers:   make(map[Type]Handler),
		retryDelay: 5 * time.Second,
		done:       make(chan struct{}),
	}
}

// Handle registers h for tasks of type t. Call before Start.
func (c *Consumer) Handle(t Type, h Handler) {
	c.handlers[t] = h
}

// Start begins polling in a background goroutine.
func (c *Consumer) Start(ctx context.Context) {
	logger.Info("task consumer started", "handlers", len(c.handlers))
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.poll(ctx)
	}()
}

// Stop ends polling and waits for the in-progress batch.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *Consumer) poll(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		deliveries, err := c.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			logger.Error("task receive failed", "error", err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}

		for _, d := range deliveries {
			c.process(ctx, d)
		}
	}
}

// process runs the handler and deletes the task on success. Unknown types
// are deleted so they cannot block the queue.
func (c *Consumer) process(ctx context.Context, d Delivery) {
	h, ok := c.handlers[d.Task.Type]
	if !ok {
		logger.Warn("unknown task type", "type", string(d.Task.Type), "task_id", d.Task.ID)
		c.ack(ctx, d)
		return
	}

	if err := h(ctx, d.Task); err != nil {
		logger.Error("task failed", "type", string(d.Task.Type), "task_id", d.Task.ID, "error", err.Error())
		return
	}
	c.ack(ctx, d)
}

func (c *Consumer) ack(ctx context.Context, d Delivery) {
	if err := c.queue.Delete(ctx, d.Handle); err != nil {
		logger.Error("task delete failed", "task_id", d.Task.ID, "error", err.Error())
	}
}

// RunOnce receives a single batch and processes it.
func (c *Consumer) RunOnce(ctx context.Context) (int, error) {
	deliveries, err := c.queue.Receive(ctx)
	if err != nil {
		return 0, err
	}
	for _, d := range deliveries {
		c.process(ctx, d)
	}
	return len(deliveries), nil
}
