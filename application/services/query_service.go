package services

import (
	"context"

	"taskhub-backend/application/ports"
	"taskhub-backend/domain/document"
	"taskhub-backend/pkg/common"

	"go.uber.org/zap"
)

// QueryResult is a page of documents with pagination hints
type QueryResult struct {
	Results    []*document.Document
	Pagination common.Page
}

// QueryService filters, sorts and paginates over a collection.
// Filters and sort clauses apply in the order given; no reordering or
// optimization is performed.
type QueryService struct {
	store  ports.Store
	logger *zap.Logger
}

// NewQueryService creates a query engine
func NewQueryService(store ports.Store, logger *zap.Logger) *QueryService {
	return &QueryService{
		store:  store,
		logger: logger,
	}
}

// Query runs the spec against a collection. HasMore is a heuristic:
// true exactly when the result count equals the limit.
func (s *QueryService) Query(ctx context.Context, collection string, spec ports.QuerySpec) (*QueryResult, error) {
	docs, err := s.store.Query(ctx, collection, spec)
	if err != nil {
		return nil, err
	}

	var lastID string
	if len(docs) > 0 {
		lastID = docs[len(docs)-1].ID
	}

	s.logger.Debug("Query completed",
		zap.String("collection", collection),
		zap.Int("results", len(docs)),
	)

	return &QueryResult{
		Results:    docs,
		Pagination: common.NewPage(len(docs), spec.Limit, lastID),
	}, nil
}
