package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/databender/leadengine/internal/config"
	"github.com/databender/leadengine/internal/pkg/logger"
)

// SQSAPI is the subset of the SQS client the queue uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue carries tasks over an SQS queue as JSON message bodies.
type SQSQueue struct {
	client            SQSAPI
	queueURL          string
	waitSeconds       int32
	maxMessages       int32
	visibilityTimeout int32
}

// NewSQSQueue builds an SQS client for the queue region.
func NewSQSQueue(ctx context.Context, cfg appconfig.QueueConfig) (*SQSQueue, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewSQSQueueWithClient(sqs.NewFromConfig(awsCfg), cfg), nil
}

// NewSQSQueueWithClient wraps an existing client.
func NewSQSQueueWithClient(client SQSAPI, cfg appconfig.QueueConfig) *SQSQueue {
	return &SQSQueue{
		client:            client,
		queueURL:          cfg.QueueURL,
		waitSeconds:       int32(cfg.WaitTimeSeconds),
		maxMessages:       int32(cfg.MaxMessages),
		visibilityTimeout: int32(cfg.VisibilityTimeoutS),
	}
}

func (q *SQSQueue) Publish(ctx context.Context, t Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("publishing to SQS: %w", err)
	}
	return nil
}

// Receive long-polls for up to maxMessages tasks. Bodies that are not valid
// tasks are deleted and skipped.
func (q *SQSQueue) Receive(ctx context.Context) ([]Delivery, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: q.maxMessages,
		WaitTimeSeconds:     q.waitSeconds,
		VisibilityTimeout:   q.visibilityTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("SQS receive: %w", err)
	}

	deliveries := make([]Delivery, 0, len(out.Messages))
	for _, msg := range out.Messages {
		handle := aws.ToString(msg.ReceiptHandle)
		var t Task
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &t); err != nil || t.Type == "" {
			logger.Warn("SQS bad message", "message_id", aws.ToString(msg.MessageId), "error", err)
			if err := q.Delete(ctx, handle); err != nil {
				logger.Error("SQS delete failed", "error", err.Error())
			}
			continue
		}
		deliveries = append(deliveries, Delivery{Task: t, Handle: handle})
	}
	return deliveries, nil
}

func (q *SQSQueue) Delete(ctx context.Context, handle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(handle),
	})
	if err != nil {
		return fmt.Errorf("SQS delete: %w", err)
	}
	return nil
}
