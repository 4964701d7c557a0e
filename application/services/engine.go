package services

import (
	"context"

	"taskhub-backend/application/ports"
	"taskhub-backend/domain/document"
	appErrors "taskhub-backend/pkg/errors"
	"taskhub-backend/pkg/extensions"
	"taskhub-backend/pkg/observability"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// WriteRequest bundles the arguments of a versioned write
type WriteRequest struct {
	Collection string
	ID         string
	Fields     map[string]document.Value
	Actor      string
}

// BatchRequest bundles a batch execution
type BatchRequest struct {
	Ops     []BatchOperation
	Options BatchOptions
}

// TransactionRequest bundles a transaction run
type TransactionRequest struct {
	Fn      TransactionFn
	Options TransactionOptions
}

// QueryRequest bundles a collection query
type QueryRequest struct {
	Collection string
	Spec       ports.QuerySpec
}

// AggregationRequest bundles an aggregation query
type AggregationRequest struct {
	Collection string
	Input      AggregationInput
}

// SearchRequest bundles a full-text search
type SearchRequest struct {
	Collection string
	Input      SearchInput
	Options    SearchOptions
}

// GraphRequest bundles a graph traversal
type GraphRequest struct {
	Collection string
	Input      GraphQueryInput
	Options    GraphOptions
}

// Engine is the facade over all engine operations. It is constructed
// once by the process entry point and passed to collaborators; the
// cross-cutting middleware chains are composed here, at construction,
// not per call.
type Engine struct {
	store         ports.Store
	logger        *zap.Logger
	validate      *validator.Validate
	subscriptions *SubscriptionService

	writeOp       extensions.Operation[WriteRequest, *document.Document]
	batchOp       extensions.Operation[BatchRequest, *BatchResult]
	transactionOp extensions.Operation[TransactionRequest, *TransactionResult]
	queryOp       extensions.Operation[QueryRequest, *QueryResult]
	aggregateOp   extensions.Operation[AggregationRequest, *AggregationResult]
	searchOp      extensions.Operation[SearchRequest, *SearchResult]
	graphOp       extensions.Operation[GraphRequest, *GraphResult]
}

// NewEngine assembles the engine over a store. Metrics and tracer are
// optional; nil disables the corresponding middleware.
func NewEngine(store ports.Store, logger *zap.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *Engine {
	write := NewWriteService(store, logger)
	batch := NewBatchService(store, logger)
	transactions := NewTransactionService(store, logger)
	query := NewQueryService(store, logger)
	aggregation := NewAggregationService(query, logger)
	search := NewSearchService(query, logger)
	graph := NewGraphService(store, query, logger)

	e := &Engine{
		store:         store,
		logger:        logger,
		validate:      validator.New(),
		subscriptions: NewSubscriptionService(store, graph, logger),
	}

	e.writeOp = decorateOp(func(ctx context.Context, req WriteRequest) (*document.Document, error) {
		return write.Write(ctx, req.Collection, req.ID, req.Fields, req.Actor)
	}, "Write", logger, metrics, tracer)

	e.batchOp = decorateOp(func(ctx context.Context, req BatchRequest) (*BatchResult, error) {
		return batch.ExecuteBatch(ctx, req.Ops, req.Options)
	}, "ExecuteBatch", logger, metrics, tracer)

	e.transactionOp = decorateOp(func(ctx context.Context, req TransactionRequest) (*TransactionResult, error) {
		return transactions.RunTransaction(ctx, req.Fn, req.Options)
	}, "RunTransaction", logger, metrics, tracer)

	e.queryOp = decorateOp(func(ctx context.Context, req QueryRequest) (*QueryResult, error) {
		return query.Query(ctx, req.Collection, req.Spec)
	}, "Query", logger, metrics, tracer)

	e.aggregateOp = decorateOp(func(ctx context.Context, req AggregationRequest) (*AggregationResult, error) {
		return aggregation.AggregateQuery(ctx, req.Collection, req.Input)
	}, "AggregateQuery", logger, metrics, tracer)

	e.searchOp = decorateOp(func(ctx context.Context, req SearchRequest) (*SearchResult, error) {
		return search.FullTextSearch(ctx, req.Collection, req.Input, req.Options)
	}, "FullTextSearch", logger, metrics, tracer)

	e.graphOp = decorateOp(func(ctx context.Context, req GraphRequest) (*GraphResult, error) {
		return graph.GraphQuery(ctx, req.Collection, req.Input, req.Options)
	}, "GraphQuery", logger, metrics, tracer)

	return e
}

// decorateOp wraps an operation with tracing, logging and metrics
func decorateOp[Req, Res any](op extensions.Operation[Req, Res], name string, logger *zap.Logger, metrics *observability.Metrics, tracer *observability.Tracer) extensions.Operation[Req, Res] {
	var middlewares []extensions.Middleware[Req, Res]
	if tracer != nil {
		middlewares = append(middlewares, extensions.Tracing[Req, Res](tracer, name))
	}
	middlewares = append(middlewares, extensions.Logging[Req, Res](logger, name))
	if metrics != nil {
		middlewares = append(middlewares, extensions.Metrics[Req, Res](metrics, name))
	}
	return extensions.Decorate(op, middlewares...)
}

// Write performs a single versioned document write
func (e *Engine) Write(ctx context.Context, collection, id string, fields map[string]document.Value, actor string) (*document.Document, error) {
	return e.writeOp(ctx, WriteRequest{Collection: collection, ID: id, Fields: fields, Actor: actor})
}

// ExecuteBatch runs a chunked batch of writes and deletes
func (e *Engine) ExecuteBatch(ctx context.Context, ops []BatchOperation, opts BatchOptions) (*BatchResult, error) {
	return e.batchOp(ctx, BatchRequest{Ops: ops, Options: opts})
}

// RunTransaction executes read-then-write logic with optimistic retry
func (e *Engine) RunTransaction(ctx context.Context, fn TransactionFn, opts TransactionOptions) (*TransactionResult, error) {
	return e.transactionOp(ctx, TransactionRequest{Fn: fn, Options: opts})
}

// Query filters, sorts and paginates a collection
func (e *Engine) Query(ctx context.Context, collection string, spec ports.QuerySpec) (*QueryResult, error) {
	return e.queryOp(ctx, QueryRequest{Collection: collection, Spec: spec})
}

// AggregateQuery computes group-by buckets and accumulators
func (e *Engine) AggregateQuery(ctx context.Context, collection string, input AggregationInput) (*AggregationResult, error) {
	return e.aggregateOp(ctx, AggregationRequest{Collection: collection, Input: input})
}

// FullTextSearch scores and highlights documents against a query
func (e *Engine) FullTextSearch(ctx context.Context, collection string, input SearchInput, opts SearchOptions) (*SearchResult, error) {
	if err := e.validate.Struct(input); err != nil {
		return nil, appErrors.NewValidationError(err.Error())
	}
	return e.searchOp(ctx, SearchRequest{Collection: collection, Input: input, Options: opts})
}

// GraphQuery traverses document relationships breadth-first
func (e *Engine) GraphQuery(ctx context.Context, collection string, input GraphQueryInput, opts GraphOptions) (*GraphResult, error) {
	if err := e.validate.Struct(input); err != nil {
		return nil, appErrors.NewValidationError(err.Error())
	}
	return e.graphOp(ctx, GraphRequest{Collection: collection, Input: input, Options: opts})
}

// Subscribe registers a buffered change subscription
func (e *Engine) Subscribe(ctx context.Context, collection string, input SubscribeInput, opts SubscribeOptions) (Unsubscribe, error) {
	return e.subscriptions.Subscribe(ctx, collection, input, opts)
}

// SubscribeGraph registers a live graph subscription
func (e *Engine) SubscribeGraph(ctx context.Context, collection string, input GraphSubscribeInput, opts SubscribeOptions) (Unsubscribe, error) {
	return e.subscriptions.SubscribeGraph(ctx, collection, input, opts)
}
