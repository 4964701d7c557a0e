// Package dynamodb implements the document store port on DynamoDB.
// Each document is one item keyed by collection and id; document
// fields are stored as individually addressable attributes so merge
// writes can update them without a read.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskhub-backend/application/ports"
	"taskhub-backend/domain/document"
	appErrors "taskhub-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const (
	// maxBatchSize matches the TransactWriteItems item limit
	maxBatchSize = 100

	// fieldPrefix namespaces document fields so they never collide
	// with metadata attributes.
	fieldPrefix = "F_"
)

// Store implements the document store port using DynamoDB
type Store struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewStore creates a DynamoDB-backed document store
func NewStore(client *dynamodb.Client, tableName string, logger *zap.Logger) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// documentItem represents the metadata attributes of a stored document.
// Field attributes are added alongside it under the field prefix.
type documentItem struct {
	PK         string        `dynamodbav:"PK"`
	SK         string        `dynamodbav:"SK"`
	EntityType string        `dynamodbav:"EntityType"`
	Collection string        `dynamodbav:"Collection"`
	DocID      string        `dynamodbav:"DocID"`
	Version    uint64        `dynamodbav:"Version"`
	CreatedAt  string        `dynamodbav:"CreatedAt"`
	CreatedBy  string        `dynamodbav:"CreatedBy"`
	UpdatedAt  string        `dynamodbav:"UpdatedAt"`
	UpdatedBy  string        `dynamodbav:"UpdatedBy"`
	History    []historyItem `dynamodbav:"History"`
}

// historyItem is the persisted form of one change record
type historyItem struct {
	Timestamp string     `dynamodbav:"Timestamp"`
	ActorID   string     `dynamodbav:"ActorID"`
	Kind      string     `dynamodbav:"Kind"`
	Diffs     []diffItem `dynamodbav:"Diffs"`
}

// diffItem is the persisted form of one field diff. The Defined flags
// distinguish an absent field from a stored null.
type diffItem struct {
	Field       string      `dynamodbav:"Field"`
	From        interface{} `dynamodbav:"From"`
	FromDefined bool        `dynamodbav:"FromDefined"`
	To          interface{} `dynamodbav:"To"`
	ToDefined   bool        `dynamodbav:"ToDefined"`
}

func collectionKey(collection string) string {
	return fmt.Sprintf("COLL#%s", collection)
}

func documentKey(id string) string {
	return fmt.Sprintf("DOC#%s", id)
}

func fieldAttribute(name string) string {
	return fieldPrefix + name
}

// Get retrieves a document by collection and id
func (s *Store) Get(ctx context.Context, collection, id string) (*document.Document, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: collectionKey(collection)},
			"SK": &types.AttributeValueMemberS{Value: documentKey(id)},
		},
		ConsistentRead: aws.Bool(true),
	}

	result, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, appErrors.NewStorageError("Get", err)
	}
	if result.Item == nil {
		return nil, appErrors.NewNotFoundError("document " + collection + "/" + id)
	}

	return s.unmarshalDocument(result.Item)
}

// Put persists a document. Replace writes store the full item; merge
// writes update field attributes individually so untouched fields
// survive.
func (s *Store) Put(ctx context.Context, doc *document.Document, merge bool) error {
	if merge {
		expr, err := expression.NewBuilder().WithUpdate(s.buildMergeUpdate(doc)).Build()
		if err != nil {
			return appErrors.NewStorageError("Put", err)
		}
		input := &dynamodb.UpdateItemInput{
			TableName:                 aws.String(s.tableName),
			Key:                       s.itemKey(doc.Collection, doc.ID),
			UpdateExpression:          expr.Update(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}
		if _, err := s.client.UpdateItem(ctx, input); err != nil {
			return appErrors.NewStorageError("Put", err)
		}
		return nil
	}

	item, err := s.marshalDocument(doc)
	if err != nil {
		return err
	}
	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}
	if _, err := s.client.PutItem(ctx, input); err != nil {
		return appErrors.NewStorageError("Put", err)
	}
	return nil
}

// Delete removes a document. Deleting an absent document is a no-op.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.itemKey(collection, id),
	}
	if _, err := s.client.DeleteItem(ctx, input); err != nil {
		return appErrors.NewStorageError("Delete", err)
	}
	return nil
}

// Query returns the documents of a collection matching the spec.
// Comparison filters are pushed down as a filter expression to reduce
// transferred items; the spec is re-evaluated client-side so push-down
// stays an optimization, not a correctness dependency.
func (s *Store) Query(ctx context.Context, collection string, spec ports.QuerySpec) ([]*document.Document, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(collectionKey(collection)))
	builder := expression.NewBuilder().WithKeyCondition(keyCond)

	if filter, ok := buildFilterCondition(spec.Filters); ok {
		builder = builder.WithFilter(filter)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, appErrors.NewStorageError("Query", err)
	}

	var docs []*document.Document
	var startKey map[string]types.AttributeValue
	for {
		input := &dynamodb.QueryInput{
			TableName:                 aws.String(s.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		}
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, appErrors.NewStorageError("Query", err)
		}
		for _, item := range result.Items {
			doc, err := s.unmarshalDocument(item)
			if err != nil {
				return nil, err
			}
			if spec.Matches(doc) {
				docs = append(docs, doc)
			}
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	ports.SortDocuments(docs, spec.Sort)
	return ports.ApplyLimit(docs, spec.Limit), nil
}

// CommitBatch applies all ops in one TransactWriteItems call. Version
// preconditions become condition expressions, so a conflicting write
// cancels the whole transaction.
func (s *Store) CommitBatch(ctx context.Context, ops []ports.BatchWriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > maxBatchSize {
		return appErrors.NewValidationError("batch exceeds maximum size")
	}

	items := make([]types.TransactWriteItem, 0, len(ops))
	for _, op := range ops {
		item, err := s.transactItem(op)
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	input := &dynamodb.TransactWriteItemsInput{TransactItems: items}
	if _, err := s.client.TransactWriteItems(ctx, input); err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
					return appErrors.NewConflictError("write precondition failed")
				}
			}
		}
		return appErrors.NewStorageError("CommitBatch", err)
	}
	return nil
}

// Listen is not supported; DynamoDB change delivery runs through the
// stream relay, not through in-process listeners.
func (s *Store) Listen(ctx context.Context, collection string, spec ports.QuerySpec, fn func(ports.ChangeEvent)) (ports.Unsubscribe, error) {
	return nil, appErrors.NewValidationError("store backend does not support change listeners")
}

// MaxBatchSize returns the TransactWriteItems item limit
func (s *Store) MaxBatchSize() int {
	return maxBatchSize
}

func (s *Store) itemKey(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: collectionKey(collection)},
		"SK": &types.AttributeValueMemberS{Value: documentKey(id)},
	}
}

// transactItem converts one batch op into a transaction write item
func (s *Store) transactItem(op ports.BatchWriteOp) (types.TransactWriteItem, error) {
	condition, hasCondition := versionCondition(op.ExpectedVersion)

	if op.Kind == ports.BatchOpDelete {
		del := &types.Delete{
			TableName: aws.String(s.tableName),
			Key:       s.itemKey(op.Collection, op.ID),
		}
		if hasCondition {
			expr, err := expression.NewBuilder().WithCondition(condition).Build()
			if err != nil {
				return types.TransactWriteItem{}, appErrors.NewStorageError("CommitBatch", err)
			}
			del.ConditionExpression = expr.Condition()
			del.ExpressionAttributeNames = expr.Names()
			del.ExpressionAttributeValues = expr.Values()
		}
		return types.TransactWriteItem{Delete: del}, nil
	}

	if op.Merge {
		builder := expression.NewBuilder().WithUpdate(s.buildMergeUpdate(op.Doc))
		if hasCondition {
			builder = builder.WithCondition(condition)
		}
		expr, err := builder.Build()
		if err != nil {
			return types.TransactWriteItem{}, appErrors.NewStorageError("CommitBatch", err)
		}
		upd := &types.Update{
			TableName:                 aws.String(s.tableName),
			Key:                       s.itemKey(op.Collection, op.ID),
			UpdateExpression:          expr.Update(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}
		if hasCondition {
			upd.ConditionExpression = expr.Condition()
		}
		return types.TransactWriteItem{Update: upd}, nil
	}

	item, err := s.marshalDocument(op.Doc)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	put := &types.Put{
		TableName: aws.String(s.tableName),
		Item:      item,
	}
	if hasCondition {
		expr, err := expression.NewBuilder().WithCondition(condition).Build()
		if err != nil {
			return types.TransactWriteItem{}, appErrors.NewStorageError("CommitBatch", err)
		}
		put.ConditionExpression = expr.Condition()
		put.ExpressionAttributeNames = expr.Names()
		put.ExpressionAttributeValues = expr.Values()
	}
	return types.TransactWriteItem{Put: put}, nil
}

// versionCondition maps an expected version onto a condition
// expression. Zero means the document must not exist yet.
func versionCondition(expected *uint64) (expression.ConditionBuilder, bool) {
	if expected == nil {
		return expression.ConditionBuilder{}, false
	}
	if *expected == 0 {
		return expression.AttributeNotExists(expression.Name("PK")), true
	}
	return expression.Name("Version").Equal(expression.Value(*expected)), true
}

// buildFilterCondition pushes comparison filters down into a filter
// expression. Unsupported operators are skipped and left to client-side
// evaluation.
func buildFilterCondition(filters []ports.Filter) (expression.ConditionBuilder, bool) {
	var cond expression.ConditionBuilder
	have := false
	for _, f := range filters {
		name := expression.Name(fieldAttribute(f.Field))
		value := expression.Value(f.Value.ToAny())

		var next expression.ConditionBuilder
		switch f.Operator {
		case ports.OpEqual:
			next = name.Equal(value)
		case ports.OpNotEqual:
			next = name.NotEqual(value)
		case ports.OpGreaterThan:
			next = name.GreaterThan(value)
		case ports.OpGreaterThanOrEqual:
			next = name.GreaterThanEqual(value)
		case ports.OpLessThan:
			next = name.LessThan(value)
		case ports.OpLessThanOrEqual:
			next = name.LessThanEqual(value)
		default:
			continue
		}

		if !have {
			cond = next
			have = true
		} else {
			cond = cond.And(next)
		}
	}
	return cond, have
}

// marshalDocument converts a document into its full item form
func (s *Store) marshalDocument(doc *document.Document) (map[string]types.AttributeValue, error) {
	item := documentItem{
		PK:         collectionKey(doc.Collection),
		SK:         documentKey(doc.ID),
		EntityType: "DOCUMENT",
		Collection: doc.Collection,
		DocID:      doc.ID,
		Version:    doc.Version,
		CreatedAt:  doc.CreatedAt.Format(time.RFC3339Nano),
		CreatedBy:  doc.CreatedBy,
		UpdatedAt:  doc.UpdatedAt.Format(time.RFC3339Nano),
		UpdatedBy:  doc.UpdatedBy,
		History:    marshalHistory(doc.History),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, appErrors.NewStorageError("marshal", err)
	}
	for name, v := range doc.Fields {
		fav, err := attributevalue.Marshal(v.ToAny())
		if err != nil {
			return nil, appErrors.NewStorageError("marshal", err)
		}
		av[fieldAttribute(name)] = fav
	}
	return av, nil
}

// buildMergeUpdate produces an update expression that sets metadata
// and the document's present fields, leaving other field attributes
// untouched.
func (s *Store) buildMergeUpdate(doc *document.Document) expression.UpdateBuilder {
	update := expression.
		Set(expression.Name("EntityType"), expression.Value("DOCUMENT")).
		Set(expression.Name("Collection"), expression.Value(doc.Collection)).
		Set(expression.Name("DocID"), expression.Value(doc.ID)).
		Set(expression.Name("Version"), expression.Value(doc.Version)).
		Set(expression.Name("CreatedAt"), expression.Value(doc.CreatedAt.Format(time.RFC3339Nano))).
		Set(expression.Name("CreatedBy"), expression.Value(doc.CreatedBy)).
		Set(expression.Name("UpdatedAt"), expression.Value(doc.UpdatedAt.Format(time.RFC3339Nano))).
		Set(expression.Name("UpdatedBy"), expression.Value(doc.UpdatedBy)).
		Set(expression.Name("History"), expression.Value(marshalHistory(doc.History)))

	for name, v := range doc.Fields {
		update = update.Set(expression.Name(fieldAttribute(name)), expression.Value(v.ToAny()))
	}
	return update
}

// unmarshalDocument converts a stored item back into a document
func (s *Store) unmarshalDocument(item map[string]types.AttributeValue) (*document.Document, error) {
	var meta documentItem
	if err := attributevalue.UnmarshalMap(item, &meta); err != nil {
		return nil, appErrors.NewStorageError("unmarshal", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, meta.CreatedAt)
	if err != nil {
		return nil, appErrors.NewStorageError("unmarshal", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, meta.UpdatedAt)
	if err != nil {
		return nil, appErrors.NewStorageError("unmarshal", err)
	}

	fields := make(map[string]document.Value)
	for name, av := range item {
		if len(name) <= len(fieldPrefix) || name[:len(fieldPrefix)] != fieldPrefix {
			continue
		}
		var raw interface{}
		if err := attributevalue.Unmarshal(av, &raw); err != nil {
			return nil, appErrors.NewStorageError("unmarshal", err)
		}
		fields[name[len(fieldPrefix):]] = document.FromAny(raw)
	}

	history, err := unmarshalHistory(meta.History)
	if err != nil {
		return nil, err
	}

	return &document.Document{
		ID:         meta.DocID,
		Collection: meta.Collection,
		Fields:     fields,
		Version:    meta.Version,
		CreatedAt:  createdAt,
		CreatedBy:  meta.CreatedBy,
		UpdatedAt:  updatedAt,
		UpdatedBy:  meta.UpdatedBy,
		History:    history,
	}, nil
}

func marshalHistory(history []document.ChangeRecord) []historyItem {
	items := make([]historyItem, 0, len(history))
	for _, rec := range history {
		diffs := make([]diffItem, 0, len(rec.FieldDiffs))
		for field, diff := range rec.FieldDiffs {
			items2 := diffItem{Field: field}
			if !diff.From.IsUndefined() {
				items2.From = diff.From.ToAny()
				items2.FromDefined = true
			}
			if !diff.To.IsUndefined() {
				items2.To = diff.To.ToAny()
				items2.ToDefined = true
			}
			diffs = append(diffs, items2)
		}
		items = append(items, historyItem{
			Timestamp: rec.Timestamp.Format(time.RFC3339Nano),
			ActorID:   rec.ActorID,
			Kind:      string(rec.Kind),
			Diffs:     diffs,
		})
	}
	return items
}

func unmarshalHistory(items []historyItem) ([]document.ChangeRecord, error) {
	history := make([]document.ChangeRecord, 0, len(items))
	for _, item := range items {
		ts, err := time.Parse(time.RFC3339Nano, item.Timestamp)
		if err != nil {
			return nil, appErrors.NewStorageError("unmarshal", err)
		}
		diffs := make(map[string]document.FieldDiff, len(item.Diffs))
		for _, d := range item.Diffs {
			diff := document.FieldDiff{From: document.Undefined(), To: document.Undefined()}
			if d.FromDefined {
				diff.From = document.FromAny(d.From)
			}
			if d.ToDefined {
				diff.To = document.FromAny(d.To)
			}
			diffs[d.Field] = diff
		}
		history = append(history, document.ChangeRecord{
			Timestamp:  ts,
			ActorID:    item.ActorID,
			Kind:       document.ChangeKind(item.Kind),
			FieldDiffs: diffs,
		})
	}
	return history, nil
}
