// Package services contains the engine operations: versioned writes,
// batch execution, transactions, query, aggregation, search, graph
// traversal and change subscriptions, plus the Engine facade that
// composes them.
package services

import (
	"context"
	"time"

	"taskhub-backend/application/ports"
	"taskhub-backend/domain/document"
	appErrors "taskhub-backend/pkg/errors"

	"go.uber.org/zap"
)

// WriteService performs single-document versioned writes: one read,
// one merge write, with field diffing and bounded change history.
type WriteService struct {
	store  ports.Store
	logger *zap.Logger
	clock  func() time.Time
}

// NewWriteService creates a versioned write service
func NewWriteService(store ports.Store, logger *zap.Logger) *WriteService {
	return &WriteService{
		store:  store,
		logger: logger,
		clock:  time.Now,
	}
}

// Write creates or updates a document. An absent document is treated
// as an empty version-0 base. Fields absent from the payload are left
// untouched in the store; Undefined values are stripped before
// persistence while Null persists as null.
func (s *WriteService) Write(ctx context.Context, collection, id string, fields map[string]document.Value, actor string) (*document.Document, error) {
	current, err := s.store.Get(ctx, collection, id)
	if err != nil && !appErrors.IsNotFound(err) {
		return nil, err
	}

	staged := stageWrite(current, collection, id, fields, actor, s.clock())
	if err := s.store.Put(ctx, staged, true); err != nil {
		return nil, err
	}

	s.logger.Debug("Document written",
		zap.String("collection", collection),
		zap.String("id", id),
		zap.Uint64("version", staged.Version),
	)

	return mergedView(current, staged), nil
}

// stageWrite computes the next versioned state of a document without
// committing it. The returned document carries only the payload fields
// so it can feed a merge write; current may be nil for a create.
func stageWrite(current *document.Document, collection, id string, fields map[string]document.Value, actor string, now time.Time) *document.Document {
	cleaned := document.CleanFields(fields)

	var before map[string]document.Value
	var version uint64
	var history []document.ChangeRecord
	createdAt, createdBy := now, actor
	kind := document.ChangeCreate
	if current != nil {
		before = current.Fields
		version = current.Version
		history = current.History
		createdAt, createdBy = current.CreatedAt, current.CreatedBy
		kind = document.ChangeUpdate
	}

	rec := document.ChangeRecord{
		Timestamp:  now,
		ActorID:    actor,
		Kind:       kind,
		FieldDiffs: document.DiffFields(before, cleaned),
	}

	return &document.Document{
		ID:         id,
		Collection: collection,
		Fields:     cleaned,
		Version:    version + 1,
		CreatedAt:  createdAt,
		CreatedBy:  createdBy,
		UpdatedAt:  now,
		UpdatedBy:  actor,
		History:    document.AppendHistory(history, rec),
	}
}

// mergedView overlays the staged payload fields onto the prior state so
// the caller sees the document as the merge write left it.
func mergedView(current, staged *document.Document) *document.Document {
	view := staged.Clone()
	if current == nil {
		return view
	}
	merged := make(map[string]document.Value, len(current.Fields)+len(staged.Fields))
	for name, v := range current.Fields {
		merged[name] = v
	}
	for name, v := range staged.Fields {
		merged[name] = v
	}
	view.Fields = merged
	return view
}
