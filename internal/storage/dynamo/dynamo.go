// Package dynamo provides a DynamoDB-backed implementation of the
// storage.Store interface.
//
// Table requirements (names carry the configured prefix):
//   - estimates:      PK id (S)
//   - line_items:     PK id (S), GSI estimate_id-index on estimate_id (S)
//   - roles:          PK id (S)
//   - users:          PK id (S)
//   - rate_overrides: PK id (S), GSI scope_key-index on scope_key (S)
//
// CreateTables creates them with on-demand billing, for local development.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/mmynk/estimator/internal/models"
	"github.com/mmynk/estimator/internal/storage"
)

const (
	estimatesTable = "estimates"
	lineItemsTable = "line_items"
	rolesTable     = "roles"
	usersTable     = "users"
	overridesTable = "rate_overrides"

	lineItemsEstimateIDIndex = "estimate_id-index"
	overridesScopeIndex      = "scope_key-index"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// Store implements storage.Store using DynamoDB.
type Store struct {
	ddb    API
	prefix string

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Store. Every table name is prefixed with tablePrefix.
func New(ddb API, tablePrefix string) *Store {
	return &Store{ddb: ddb, prefix: tablePrefix, now: time.Now}
}

// Close is a no-op; the DynamoDB client holds no resources to release.
func (s *Store) Close() error {
	return nil
}

func (s *Store) table(name string) *string {
	return aws.String(s.prefix + name)
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func notFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, storage.ErrNotFound)
}

// conditionFailed maps a failed attribute_exists condition to not-found.
func conditionFailed(err error, entity, id string) error {
	var cfe *types.ConditionalCheckFailedException
	if errors.As(err, &cfe) {
		return notFound(entity, id)
	}
	return err
}

// put writes a record. With mustExist the item is replaced only if present;
// otherwise it is created only if absent.
func (s *Store) put(ctx context.Context, table string, record any, mustExist bool) error {
	av, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", table, err)
	}

	cond := "attribute_not_exists(#id)"
	if mustExist {
		cond = "attribute_exists(#id)"
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           s.table(table),
		Item:                av,
		ConditionExpression: aws.String(cond),
		ExpressionAttributeNames: map[string]string{
			"#id": "id",
		},
	})
	return err
}

// get loads one record by id into out. It reports false when absent.
func (s *Store) get(ctx context.Context, table, id string, out any) (bool, error) {
	res, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      s.table(table),
		Key:            idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, err
	}
	if len(res.Item) == 0 {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal %s record: %w", table, err)
	}
	return true, nil
}

func (s *Store) delete(ctx context.Context, table, entity, id string) error {
	_, err := s.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           s.table(table),
		Key:                 idKey(id),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": "id",
		},
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", entity, conditionFailed(err, entity, id))
	}
	return nil
}

// queryIndex collects every page of an index query on a single string key.
func (s *Store) queryIndex(ctx context.Context, table, index, attr, value string) ([]map[string]types.AttributeValue, error) {
	p := dynamodb.NewQueryPaginator(s.ddb, &dynamodb.QueryInput{
		TableName:              s.table(table),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String("#k = :v"),
		ExpressionAttributeNames: map[string]string{
			"#k": attr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: value},
		},
	})

	var items []map[string]types.AttributeValue
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// CreateEstimate persists a new estimate.
func (s *Store) CreateEstimate(ctx context.Context, est *models.Estimate) error {
	if est.ID == "" {
		est.ID = uuid.New().String()
	}
	if est.CreatedAt == 0 {
		est.CreatedAt = s.now().Unix()
	}
	if est.UpdatedAt == 0 {
		est.UpdatedAt = est.CreatedAt
	}

	if err := s.put(ctx, estimatesTable, toEstimateRecord(est), false); err != nil {
		return fmt.Errorf("create estimate: %w", err)
	}
	return nil
}

// GetEstimate retrieves an estimate by ID.
func (s *Store) GetEstimate(ctx context.Context, id string) (*models.Estimate, error) {
	var rec estimateRecord
	found, err := s.get(ctx, estimatesTable, id, &rec)
	if err != nil {
		return nil, fmt.Errorf("get estimate: %w", err)
	}
	if !found {
		return nil, notFound("estimate", id)
	}
	return fromEstimateRecord(rec), nil
}

// UpdateEstimate replaces an existing estimate.
func (s *Store) UpdateEstimate(ctx context.Context, est *models.Estimate) error {
	est.UpdatedAt = s.now().Unix()
	if err := s.put(ctx, estimatesTable, toEstimateRecord(est), true); err != nil {
		return fmt.Errorf("update estimate: %w", conditionFailed(err, "estimate", est.ID))
	}
	return nil
}

// CreateLineItem persists a new line item.
func (s *Store) CreateLineItem(ctx context.Context, item *models.LineItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := s.now()
	if item.CreatedAt == 0 {
		item.CreatedAt = now.Unix()
	}
	if item.UpdatedAt == 0 {
		item.UpdatedAt = item.CreatedAt
	}

	if err := s.put(ctx, lineItemsTable, toLineItemRecord(item, now.UnixNano()), false); err != nil {
		return fmt.Errorf("create line item: %w", err)
	}
	return nil
}

// GetLineItem retrieves a line item by ID.
func (s *Store) GetLineItem(ctx context.Context, id string) (*models.LineItem, error) {
	rec, err := s.getLineItemRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	item := fromLineItemRecord(*rec)
	return &item, nil
}

func (s *Store) getLineItemRecord(ctx context.Context, id string) (*lineItemRecord, error) {
	var rec lineItemRecord
	found, err := s.get(ctx, lineItemsTable, id, &rec)
	if err != nil {
		return nil, fmt.Errorf("get line item: %w", err)
	}
	if !found {
		return nil, notFound("line item", id)
	}
	return &rec, nil
}

// GetEstimateLineItems returns the line items of an estimate in creation order.
func (s *Store) GetEstimateLineItems(ctx context.Context, estimateID string) ([]models.LineItem, error) {
	raw, err := s.queryIndex(ctx, lineItemsTable, lineItemsEstimateIDIndex, "estimate_id", estimateID)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}

	recs := make([]lineItemRecord, 0, len(raw))
	for _, av := range raw {
		var rec lineItemRecord
		if err := attributevalue.UnmarshalMap(av, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal line item: %w", err)
		}
		recs = append(recs, rec)
	}
	sortLineItemRecords(recs)

	items := make([]models.LineItem, len(recs))
	for i, rec := range recs {
		items[i] = fromLineItemRecord(rec)
	}
	return items, nil
}

func sortLineItemRecords(recs []lineItemRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].CreatedAt != recs[j].CreatedAt {
			return recs[i].CreatedAt < recs[j].CreatedAt
		}
		return recs[i].Seq < recs[j].Seq
	})
}

// UpdateEstimateLineItem replaces one line item, keeping its ordering key.
func (s *Store) UpdateEstimateLineItem(ctx context.Context, item *models.LineItem) error {
	existing, err := s.getLineItemRecord(ctx, item.ID)
	if err != nil {
		return err
	}

	item.UpdatedAt = s.now().Unix()
	if err := s.put(ctx, lineItemsTable, toLineItemRecord(item, existing.Seq), true); err != nil {
		return fmt.Errorf("update line item: %w", conditionFailed(err, "line item", item.ID))
	}
	return nil
}

// DeleteLineItem removes a line item.
func (s *Store) DeleteLineItem(ctx context.Context, id string) error {
	return s.delete(ctx, lineItemsTable, "line item", id)
}
