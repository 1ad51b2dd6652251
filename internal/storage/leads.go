package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/service/lead"
)

// filterTimeLayout drops fractional seconds and zone so pushed-down range
// filters compare safely against stored RFC3339Nano strings.
const filterTimeLayout = "2006-01-02T15:04:05"

// LeadStore implements lead.Repository and sequence.Repository on the leads
// table.
type LeadStore struct {
	db    DynamoAPI
	table string
	now   func() time.Time
}

// NewLeadStore creates a DynamoDB-backed lead store.
func NewLeadStore(db DynamoAPI, table string) *LeadStore {
	return &LeadStore{db: db, table: table, now: time.Now}
}

func leadKey(l *domain.Lead) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: domain.LeadPK(l.Email)},
		"sk": &types.AttributeValueMemberS{Value: domain.LeadSK(l.CreatedAt)},
	}
}

func (s *LeadStore) Put(ctx context.Context, l *domain.Lead) error {
	l.PK = domain.LeadPK(l.Email)
	l.SK = domain.LeadSK(l.CreatedAt)

	av, err := attributevalue.MarshalMap(l)
	if err != nil {
		return fmt.Errorf("marshaling lead: %w", err)
	}
	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting lead: %w", err)
	}
	return nil
}

func (s *LeadStore) GetLeadByEmail(ctx context.Context, email string) (*domain.Lead, error) {
	out, err := s.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: domain.LeadPK(email)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("querying lead by email: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}

	var l domain.Lead
	if err := attributevalue.UnmarshalMap(out.Items[0], &l); err != nil {
		return nil, fmt.Errorf("unmarshaling lead: %w", err)
	}
	return &l, nil
}

// GetByID scans for a leadId. The table has no index on it; admin lookups
// are rare enough that a paginated scan is acceptable.
func (s *LeadStore) GetByID(ctx context.Context, leadID string) (*domain.Lead, error) {
	var found *domain.Lead
	err := s.scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("leadId = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: leadID},
		},
	}, func(l domain.Lead) bool {
		if l.LeadID != leadID {
			return true
		}
		found = &l
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("scanning lead by id: %w", err)
	}
	return found, nil
}

func (s *LeadStore) Update(ctx context.Context, l *domain.Lead, fields map[string]interface{}) error {
	now := s.now().UTC()
	names := map[string]string{}
	values := map[string]types.AttributeValue{}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "updatedAt" || k == "pk" || k == "sk" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys)+1)
	for i, k := range keys {
		av, err := attributevalue.Marshal(fields[k])
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", k, err)
		}
		n, v := "#f"+strconv.Itoa(i), ":v"+strconv.Itoa(i)
		names[n] = k
		values[v] = av
		sets = append(sets, n+" = "+v)
	}
	updatedAt, err := attributevalue.Marshal(now)
	if err != nil {
		return fmt.Errorf("marshaling updatedAt: %w", err)
	}
	values[":updatedAt"] = updatedAt
	sets = append(sets, "updatedAt = :updatedAt")

	in := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       leadKey(l),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(pk)"),
	}
	if len(names) > 0 {
		in.ExpressionAttributeNames = names
	}
	if _, err := s.db.UpdateItem(ctx, in); err != nil {
		return fmt.Errorf("updating lead: %w", err)
	}
	l.UpdatedAt = now
	return nil
}

func (s *LeadStore) AppendNote(ctx context.Context, l *domain.Lead, note domain.LeadNote) error {
	if err := s.appendToList(ctx, l, "notes", note); err != nil {
		return err
	}
	l.Notes = append(l.Notes, note)
	return nil
}

func (s *LeadStore) AppendContact(ctx context.Context, l *domain.Lead, rec domain.ContactRecord) error {
	if err := s.appendToList(ctx, l, "contactHistory", rec); err != nil {
		return err
	}
	l.ContactHistory = append(l.ContactHistory, rec)
	return nil
}

func (s *LeadStore) AppendTrackingHit(ctx context.Context, l *domain.Lead, kind lead.HitKind, hit domain.TrackingHit) error {
	if err := s.appendToList(ctx, l, string(kind), hit); err != nil {
		return err
	}
	switch kind {
	case lead.HitOpen:
		l.Opens = append(l.Opens, hit)
	case lead.HitClick:
		l.Clicks = append(l.Clicks, hit)
	}
	return nil
}

func (s *LeadStore) appendToList(ctx context.Context, l *domain.Lead, attr string, item interface{}) error {
	av, err := attributevalue.Marshal([]interface{}{item})
	if err != nil {
		return fmt.Errorf("marshaling %s entry: %w", attr, err)
	}
	updatedAt, err := attributevalue.Marshal(s.now().UTC())
	if err != nil {
		return fmt.Errorf("marshaling updatedAt: %w", err)
	}
	_, err = s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              leadKey(l),
		UpdateExpression: aws.String("SET #list = list_append(if_not_exists(#list, :emptyList), :items), updatedAt = :updatedAt"),
		ExpressionAttributeNames: map[string]string{
			"#list": attr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":emptyList": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":items":     av,
			":updatedAt": updatedAt,
		},
	})
	if err != nil {
		return fmt.Errorf("appending to %s: %w", attr, err)
	}
	return nil
}

// SaveSequence writes the embedded sequence state.
func (s *LeadStore) SaveSequence(ctx context.Context, l *domain.Lead, seq *domain.EmailSequence) error {
	return s.Update(ctx, l, map[string]interface{}{"emailSequence": seq})
}

// ListActiveSequences returns every lead whose sequence status is active.
func (s *LeadStore) ListActiveSequences(ctx context.Context) ([]domain.Lead, error) {
	var leads []domain.Lead
	err := s.scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("emailSequence.#status = :active"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":active": &types.AttributeValueMemberS{Value: string(domain.SequenceActive)},
		},
	}, func(l domain.Lead) bool {
		if l.EmailSequence != nil && l.EmailSequence.Status == domain.SequenceActive {
			leads = append(leads, l)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("scanning active sequences: %w", err)
	}
	return leads, nil
}

func (s *LeadStore) List(ctx context.Context, f lead.ListFilter) ([]domain.Lead, string, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = lead.DefaultListLimit
	}
	start, err := decodeCursor(f.Cursor)
	if err != nil {
		return nil, "", err
	}

	in := &dynamodb.ScanInput{TableName: aws.String(s.table)}
	applyFilter(in, f)
	in.ExclusiveStartKey = start

	var leads []domain.Lead
	for {
		// Scan limits count evaluated items, so a page never overshoots.
		in.Limit = aws.Int32(int32(limit - len(leads)))
		out, err := s.db.Scan(ctx, in)
		if err != nil {
			return nil, "", fmt.Errorf("scanning leads: %w", err)
		}
		for _, item := range out.Items {
			var l domain.Lead
			if err := attributevalue.UnmarshalMap(item, &l); err != nil {
				return nil, "", fmt.Errorf("unmarshaling lead: %w", err)
			}
			if f.Matches(&l) {
				leads = append(leads, l)
			}
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
		if len(out.LastEvaluatedKey) == 0 || len(leads) >= limit {
			break
		}
	}

	sortNewestFirst(leads)
	cursor, err := encodeCursor(in.ExclusiveStartKey)
	if err != nil {
		return nil, "", err
	}
	return leads, cursor, nil
}

func (s *LeadStore) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Lead, error) {
	f := lead.ListFilter{From: from, To: to}
	in := &dynamodb.ScanInput{TableName: aws.String(s.table)}
	applyFilter(in, f)

	var leads []domain.Lead
	err := s.scan(ctx, in, func(l domain.Lead) bool {
		if f.Matches(&l) {
			leads = append(leads, l)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("scanning leads: %w", err)
	}
	sortNewestFirst(leads)
	return leads, nil
}

// scan pages through every item, handing each lead to fn until it returns
// false.
func (s *LeadStore) scan(ctx context.Context, in *dynamodb.ScanInput, fn func(domain.Lead) bool) error {
	for {
		out, err := s.db.Scan(ctx, in)
		if err != nil {
			return err
		}
		for _, item := range out.Items {
			var l domain.Lead
			if err := attributevalue.UnmarshalMap(item, &l); err != nil {
				return fmt.Errorf("unmarshaling lead: %w", err)
			}
			if !fn(l) {
				return nil
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// applyFilter pushes the exact-match and range conditions of f down to
// DynamoDB. Search and contact filters run in ListFilter.Matches.
func applyFilter(in *dynamodb.ScanInput, f lead.ListFilter) {
	var exprs []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}

	str := func(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

	if f.Status != "" {
		exprs = append(exprs, "#status = :status")
		names["#status"] = "status"
		values[":status"] = str(string(f.Status))
	}
	if f.Tier != "" {
		exprs = append(exprs, "tier = :tier")
		values[":tier"] = str(string(f.Tier))
	}
	if f.Industry != "" {
		exprs = append(exprs, "industry = :industry")
		values[":industry"] = str(f.Industry)
	}
	if f.FormType != "" {
		exprs = append(exprs, "formType = :formType")
		values[":formType"] = str(string(f.FormType))
	}
	if !f.From.IsZero() {
		exprs = append(exprs, "createdAt >= :from")
		values[":from"] = str(f.From.UTC().Format(filterTimeLayout))
	}
	if !f.To.IsZero() {
		exprs = append(exprs, "createdAt <= :to")
		values[":to"] = str(f.To.UTC().Add(time.Second).Format(filterTimeLayout))
	}
	if f.MinScore > 0 {
		exprs = append(exprs, "behaviorScore >= :minScore")
		values[":minScore"] = &types.AttributeValueMemberN{Value: strconv.Itoa(f.MinScore)}
	}

	if len(exprs) == 0 {
		return
	}
	in.FilterExpression = aws.String(strings.Join(exprs, " AND "))
	in.ExpressionAttributeValues = values
	if len(names) > 0 {
		in.ExpressionAttributeNames = names
	}
}

func sortNewestFirst(leads []domain.Lead) {
	sort.SliceStable(leads, func(i, j int) bool {
		return leads[i].CreatedAt.After(leads[j].CreatedAt)
	})
}
