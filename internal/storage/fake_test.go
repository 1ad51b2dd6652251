package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory DynamoAPI. Filter expressions are recorded but
// not evaluated; the stores re-check every condition in Go.
type fakeDynamo struct {
	mu      sync.Mutex
	tables  map[string]map[string]map[string]types.AttributeValue
	scans   []*dynamodb.ScanInput
	queries []*dynamodb.QueryInput
	updates []*dynamodb.UpdateItemInput
	failAll error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{tables: map[string]map[string]map[string]types.AttributeValue{}}
}

func strAttr(item map[string]types.AttributeValue, name string) string {
	if s, ok := item[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func itemID(item map[string]types.AttributeValue) string {
	return strAttr(item, "pk") + "|" + strAttr(item, "sk")
}

func (f *fakeDynamo) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := f.tables[name]
	if !ok {
		t = map[string]map[string]types.AttributeValue{}
		f.tables[name] = t
	}
	return t
}

func (f *fakeDynamo) sorted(name string) []map[string]types.AttributeValue {
	t := f.table(name)
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]map[string]types.AttributeValue, 0, len(ids))
	for _, id := range ids {
		out = append(out, t[id])
	}
	return out
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	f.table(*in.TableName)[itemID(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	return &dynamodb.GetItemOutput{Item: f.table(*in.TableName)[itemID(in.Key)]}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	f.queries = append(f.queries, in)

	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	var items []map[string]types.AttributeValue
	for _, item := range f.sorted(*in.TableName) {
		if strAttr(item, "pk") == pk {
			items = append(items, item)
		}
	}
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	if in.Limit != nil && int(*in.Limit) < len(items) {
		items = items[:*in.Limit]
	}
	return &dynamodb.QueryOutput{Items: items, Count: int32(len(items))}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	cp := *in
	f.scans = append(f.scans, &cp)

	all := f.sorted(*in.TableName)
	start := 0
	if len(in.ExclusiveStartKey) > 0 {
		after := itemID(in.ExclusiveStartKey)
		for start < len(all) && itemID(all[start]) <= after {
			start++
		}
	}
	end := len(all)
	if in.Limit != nil && start+int(*in.Limit) < end {
		end = start + int(*in.Limit)
	}
	out := &dynamodb.ScanOutput{Items: all[start:end], Count: int32(end - start)}
	if end < len(all) {
		last := all[end-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{"pk": last["pk"], "sk": last["sk"]}
	}
	return out, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	f.updates = append(f.updates, in)

	t := f.table(*in.TableName)
	item, ok := t[itemID(in.Key)]
	if !ok {
		if in.ConditionExpression != nil {
			return nil, &types.ConditionalCheckFailedException{}
		}
		item = map[string]types.AttributeValue{"pk": in.Key["pk"], "sk": in.Key["sk"]}
		t[itemID(in.Key)] = item
	}

	expr := strings.TrimPrefix(*in.UpdateExpression, "SET ")
	if strings.Contains(expr, "list_append") {
		name := in.ExpressionAttributeNames["#list"]
		var list []types.AttributeValue
		if existing, ok := item[name].(*types.AttributeValueMemberL); ok {
			list = append(list, existing.Value...)
		}
		list = append(list, in.ExpressionAttributeValues[":items"].(*types.AttributeValueMemberL).Value...)
		item[name] = &types.AttributeValueMemberL{Value: list}
		item["updatedAt"] = in.ExpressionAttributeValues[":updatedAt"]
		return &dynamodb.UpdateItemOutput{}, nil
	}
	for _, assign := range strings.Split(expr, ", ") {
		parts := strings.SplitN(assign, " = ", 2)
		if len(parts) != 2 {
			return nil, errors.New("fake: unsupported update expression " + assign)
		}
		name := parts[0]
		if n, ok := in.ExpressionAttributeNames[name]; ok {
			name = n
		}
		item[name] = in.ExpressionAttributeValues[parts[1]]
	}
	return &dynamodb.UpdateItemOutput{}, nil
}
