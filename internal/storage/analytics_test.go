package storage

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/databender/leadengine/internal/config"
	"github.com/databender/leadengine/internal/domain"
)

func newTestAnalyticsStore() (*AnalyticsStore, *fakeDynamo) {
	db := newFakeDynamo()
	s := NewAnalyticsStore(db, appconfig.StorageConfig{
		EventsTable:      "events",
		SessionsTable:    "sessions",
		ConversionsTable: "conversions",
		EventTTLDays:     90,
	})
	s.now = func() time.Time { return testNow }
	return s, db
}

func TestPutEventKeysAndTTL(t *testing.T) {
	s, db := newTestAnalyticsStore()
	e := &domain.TrackedEvent{
		EventID:   "e1",
		EventType: domain.EventPageview,
		VisitorID: "v1",
		SessionID: "s1",
		Page:      "/services",
		Timestamp: testNow,
	}
	require.NoError(t, s.PutEvent(context.Background(), e))

	item := db.tables["events"]["EVENT#2026-03-10|2026-03-10T14:00:00.000Z#e1"]
	require.NotNil(t, item)
	ttl := item["ttl"].(*types.AttributeValueMemberN).Value
	assert.Equal(t, "1780927200", ttl, "now + 90 days in unix seconds")
	assert.Equal(t, "/services", strAttr(item, "page"))
}

func TestEventsForRangeQueriesEachDay(t *testing.T) {
	s, db := newTestAnalyticsStore()
	ctx := context.Background()
	for i, day := range []int{7, 8, 10, 12} {
		require.NoError(t, s.PutEvent(ctx, &domain.TrackedEvent{
			EventID:   string(rune('a' + i)),
			EventType: domain.EventPageview,
			Timestamp: time.Date(2026, 3, day, 9, 0, 0, 0, time.UTC),
		}))
	}

	events, err := s.EventsForRange(ctx, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Len(t, db.queries, 3, "one query per day")
}

func TestEventsForRangeInvertedIsEmpty(t *testing.T) {
	s, db := newTestAnalyticsStore()
	events, err := s.EventsForRange(context.Background(), testNow, testNow.AddDate(0, 0, -3))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, db.queries)
}

func TestSessionUpsertAndGet(t *testing.T) {
	s, _ := newTestAnalyticsStore()
	ctx := context.Background()

	missing, err := s.GetSession(ctx, testNow, "s1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	sess := &domain.Session{SessionID: "s1", VisitorID: "v1", StartTime: testNow, PageCount: 1, EntryPage: "/"}
	require.NoError(t, s.PutSession(ctx, testNow, sess))
	sess.PageCount = 3
	require.NoError(t, s.PutSession(ctx, testNow, sess))

	got, err := s.GetSession(ctx, testNow, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.PageCount)

	all, err := s.SessionsForRange(ctx, testNow, testNow)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestConversionsForRange(t *testing.T) {
	s, _ := newTestAnalyticsStore()
	ctx := context.Background()
	require.NoError(t, s.PutConversion(ctx, &domain.ConversionPath{
		ConversionID:   "c1",
		ConversionType: "form",
		Timestamp:      testNow,
		PageJourney:    []domain.PageJourneyStep{{Page: "/", Timestamp: testNow}},
		JourneyLength:  1,
	}))

	got, err := s.ConversionsForRange(ctx, testNow.AddDate(0, 0, -1), testNow)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ConversionID)
	assert.Equal(t, 1, got[0].JourneyLength)
}
