package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	appconfig "github.com/databender/leadengine/internal/config"
	"github.com/databender/leadengine/internal/domain"
)

const dayLayout = "2006-01-02"

// maxRangeDays bounds day-by-day range queries.
const maxRangeDays = 366

type eventItem struct {
	PK  string `dynamodbav:"pk"`
	SK  string `dynamodbav:"sk"`
	TTL int64  `dynamodbav:"ttl"`
	domain.TrackedEvent
}

type sessionItem struct {
	PK  string `dynamodbav:"pk"`
	SK  string `dynamodbav:"sk"`
	TTL int64  `dynamodbav:"ttl"`
	domain.Session
}

type conversionItem struct {
	PK  string `dynamodbav:"pk"`
	SK  string `dynamodbav:"sk"`
	TTL int64  `dynamodbav:"ttl"`
	domain.ConversionPath
}

// AnalyticsStore persists tracked events, sessions, and conversion paths in
// day-partitioned tables.
type AnalyticsStore struct {
	db               DynamoAPI
	eventsTable      string
	sessionsTable    string
	conversionsTable string
	ttl              time.Duration
	now              func() time.Time
}

// NewAnalyticsStore creates a DynamoDB-backed analytics store from the
// storage config.
func NewAnalyticsStore(db DynamoAPI, cfg appconfig.StorageConfig) *AnalyticsStore {
	return &AnalyticsStore{
		db:               db,
		eventsTable:      cfg.EventsTable,
		sessionsTable:    cfg.SessionsTable,
		conversionsTable: cfg.ConversionsTable,
		ttl:              cfg.EventTTL(),
		now:              time.Now,
	}
}

func dayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

func (s *AnalyticsStore) expiresAt() int64 {
	return s.now().Add(s.ttl).Unix()
}

// PutEvent stores an event under EVENT#<day of its timestamp>.
func (s *AnalyticsStore) PutEvent(ctx context.Context, e *domain.TrackedEvent) error {
	item := eventItem{
		PK:           "EVENT#" + dayKey(e.Timestamp),
		SK:           e.Timestamp.UTC().Format(domain.TimestampLayout) + "#" + e.EventID,
		TTL:          s.expiresAt(),
		TrackedEvent: *e,
	}
	return s.put(ctx, s.eventsTable, item)
}

// PutSession upserts a session under SESSION#<day>.
func (s *AnalyticsStore) PutSession(ctx context.Context, day time.Time, sess *domain.Session) error {
	item := sessionItem{
		PK:      "SESSION#" + dayKey(day),
		SK:      sess.SessionID,
		TTL:     s.expiresAt(),
		Session: *sess,
	}
	return s.put(ctx, s.sessionsTable, item)
}

// GetSession returns the session stored for day, or nil, nil.
func (s *AnalyticsStore) GetSession(ctx context.Context, day time.Time, sessionID string) (*domain.Session, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.sessionsTable),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: "SESSION#" + dayKey(day)},
			"sk": &types.AttributeValueMemberS{Value: sessionID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var item sessionItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return &item.Session, nil
}

// PutConversion stores a conversion path under CONVERSION#<day>.
func (s *AnalyticsStore) PutConversion(ctx context.Context, c *domain.ConversionPath) error {
	item := conversionItem{
		PK:             "CONVERSION#" + dayKey(c.Timestamp),
		SK:             c.Timestamp.UTC().Format(domain.TimestampLayout) + "#" + c.ConversionID,
		TTL:            s.expiresAt(),
		ConversionPath: *c,
	}
	return s.put(ctx, s.conversionsTable, item)
}

func (s *AnalyticsStore) EventsForRange(ctx context.Context, from, to time.Time) ([]domain.TrackedEvent, error) {
	var events []domain.TrackedEvent
	err := s.forEachDay(ctx, s.eventsTable, "EVENT#", from, to, func(item map[string]types.AttributeValue) error {
		var e eventItem
		if err := attributevalue.UnmarshalMap(item, &e); err != nil {
			return fmt.Errorf("unmarshaling event: %w", err)
		}
		events = append(events, e.TrackedEvent)
		return nil
	})
	return events, err
}

func (s *AnalyticsStore) SessionsForRange(ctx context.Context, from, to time.Time) ([]domain.Session, error) {
	var sessions []domain.Session
	err := s.forEachDay(ctx, s.sessionsTable, "SESSION#", from, to, func(item map[string]types.AttributeValue) error {
		var sess sessionItem
		if err := attributevalue.UnmarshalMap(item, &sess); err != nil {
			return fmt.Errorf("unmarshaling session: %w", err)
		}
		sessions = append(sessions, sess.Session)
		return nil
	})
	return sessions, err
}

func (s *AnalyticsStore) ConversionsForRange(ctx context.Context, from, to time.Time) ([]domain.ConversionPath, error) {
	var conversions []domain.ConversionPath
	err := s.forEachDay(ctx, s.conversionsTable, "CONVERSION#", from, to, func(item map[string]types.AttributeValue) error {
		var c conversionItem
		if err := attributevalue.UnmarshalMap(item, &c); err != nil {
			return fmt.Errorf("unmarshaling conversion: %w", err)
		}
		conversions = append(conversions, c.ConversionPath)
		return nil
	})
	return conversions, err
}

func (s *AnalyticsStore) put(ctx context.Context, table string, item interface{}) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting item to %s: %w", table, err)
	}
	return nil
}

// forEachDay queries one partition per UTC day in [from, to], following
// pagination within each day.
func (s *AnalyticsStore) forEachDay(ctx context.Context, table, prefix string, from, to time.Time, fn func(map[string]types.AttributeValue) error) error {
	start := truncateUTCDay(from)
	end := truncateUTCDay(to)
	if end.Before(start) {
		return nil
	}
	if end.Sub(start) > maxRangeDays*24*time.Hour {
		start = end.Add(-maxRangeDays * 24 * time.Hour)
	}

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		in := &dynamodb.QueryInput{
			TableName:              aws.String(table),
			KeyConditionExpression: aws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: prefix + dayKey(d)},
			},
		}
		for {
			out, err := s.db.Query(ctx, in)
			if err != nil {
				return fmt.Errorf("querying %s for %s: %w", table, dayKey(d), err)
			}
			for _, item := range out.Items {
				if err := fn(item); err != nil {
					return err
				}
			}
			if len(out.LastEvaluatedKey) == 0 {
				break
			}
			in.ExclusiveStartKey = out.LastEvaluatedKey
		}
	}
	return nil
}

func truncateUTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
