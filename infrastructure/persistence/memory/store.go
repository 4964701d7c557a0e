// Package memory provides an in-memory document store. It is the
// default backend for local development and the storage double used by
// the engine tests; it implements the full store port including change
// listeners.
package memory

import (
	"context"
	"sync"

	"taskhub-backend/application/ports"
	"taskhub-backend/domain/document"
	appErrors "taskhub-backend/pkg/errors"
)

const maxBatchSize = 500

// Store is a thread-safe in-memory document store
type Store struct {
	mu           sync.RWMutex
	collections  map[string]map[string]*document.Document
	listeners    map[int]*listener
	nextListener int
}

type listener struct {
	collection string
	spec       ports.QuerySpec
	fn         func(ports.ChangeEvent)
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]*document.Document),
		listeners:   make(map[int]*listener),
	}
}

// Get retrieves a document by collection and id
func (s *Store) Get(ctx context.Context, collection, id string) (*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, appErrors.NewNotFoundError("document " + collection + "/" + id)
	}
	return doc.Clone(), nil
}

// Put persists a document, merging into any existing field state when
// merge is true.
func (s *Store) Put(ctx context.Context, doc *document.Document, merge bool) error {
	s.mu.Lock()
	event := s.applyPut(doc, merge)
	s.mu.Unlock()

	s.dispatch(doc.Collection, event)
	return nil
}

// Delete removes a document. Deleting an absent document is a no-op.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	event, ok := s.applyDelete(collection, id)
	s.mu.Unlock()

	if ok {
		s.dispatch(collection, event)
	}
	return nil
}

// Query returns the documents of a collection matching the spec,
// sorted and limited.
func (s *Store) Query(ctx context.Context, collection string, spec ports.QuerySpec) ([]*document.Document, error) {
	s.mu.RLock()
	var docs []*document.Document
	for _, doc := range s.collections[collection] {
		if spec.Matches(doc) {
			docs = append(docs, doc.Clone())
		}
	}
	s.mu.RUnlock()

	ports.SortDocuments(docs, spec.Sort)
	return ports.ApplyLimit(docs, spec.Limit), nil
}

// CommitBatch applies all ops atomically. Every version precondition is
// validated before any op is applied, so a Conflict error leaves the
// store untouched.
func (s *Store) CommitBatch(ctx context.Context, ops []ports.BatchWriteOp) error {
	if len(ops) > maxBatchSize {
		return appErrors.NewValidationError("batch exceeds maximum size")
	}

	s.mu.Lock()
	for _, op := range ops {
		if err := s.checkPrecondition(op); err != nil {
			s.mu.Unlock()
			return err
		}
	}

	type pending struct {
		collection string
		event      ports.ChangeEvent
	}
	var events []pending
	for _, op := range ops {
		switch op.Kind {
		case ports.BatchOpPut:
			events = append(events, pending{op.Collection, s.applyPut(op.Doc, op.Merge)})
		case ports.BatchOpDelete:
			if event, ok := s.applyDelete(op.Collection, op.ID); ok {
				events = append(events, pending{op.Collection, event})
			}
		}
	}
	s.mu.Unlock()

	for _, p := range events {
		s.dispatch(p.collection, p.event)
	}
	return nil
}

// Listen registers a change listener scoped to one collection. Events
// are delivered synchronously after the triggering write commits.
func (s *Store) Listen(ctx context.Context, collection string, spec ports.QuerySpec, fn func(ports.ChangeEvent)) (ports.Unsubscribe, error) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = &listener{collection: collection, spec: spec, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}, nil
}

// MaxBatchSize returns the hard cap on ops per CommitBatch call
func (s *Store) MaxBatchSize() int {
	return maxBatchSize
}

// applyPut stores the document and returns the resulting change event.
// Caller holds the write lock.
func (s *Store) applyPut(doc *document.Document, merge bool) ports.ChangeEvent {
	coll, ok := s.collections[doc.Collection]
	if !ok {
		coll = make(map[string]*document.Document)
		s.collections[doc.Collection] = coll
	}

	stored := doc.Clone()
	existing, existed := coll[doc.ID]
	if merge && existed {
		merged := make(map[string]document.Value, len(existing.Fields)+len(stored.Fields))
		for name, v := range existing.Fields {
			merged[name] = v
		}
		for name, v := range stored.Fields {
			merged[name] = v
		}
		stored.Fields = merged
	}
	coll[doc.ID] = stored

	kind := ports.ChangeAdded
	if existed {
		kind = ports.ChangeModified
	}
	return ports.ChangeEvent{Kind: kind, Doc: stored.Clone()}
}

// applyDelete removes the document and returns its removal event.
// Caller holds the write lock.
func (s *Store) applyDelete(collection, id string) (ports.ChangeEvent, bool) {
	existing, ok := s.collections[collection][id]
	if !ok {
		return ports.ChangeEvent{}, false
	}
	delete(s.collections[collection], id)
	return ports.ChangeEvent{Kind: ports.ChangeRemoved, Doc: existing.Clone()}, true
}

// checkPrecondition validates one op's expected version against current
// state. Caller holds the write lock.
func (s *Store) checkPrecondition(op ports.BatchWriteOp) error {
	if op.ExpectedVersion == nil {
		return nil
	}
	current, exists := s.collections[op.Collection][op.ID]
	key := op.Collection + "/" + op.ID
	if *op.ExpectedVersion == 0 {
		if exists {
			return appErrors.NewConflictError("document " + key + " already exists")
		}
		return nil
	}
	if !exists {
		return appErrors.NewConflictError("document " + key + " no longer exists")
	}
	if current.Version != *op.ExpectedVersion {
		return appErrors.NewConflictError("version mismatch on document " + key)
	}
	return nil
}

// dispatch delivers an event to every listener whose spec matches.
// Must be called without holding the mutex; listeners may re-enter the
// store.
func (s *Store) dispatch(collection string, event ports.ChangeEvent) {
	s.mu.RLock()
	var targets []*listener
	for _, l := range s.listeners {
		if l.collection == collection && l.spec.Matches(event.Doc) {
			targets = append(targets, l)
		}
	}
	s.mu.RUnlock()

	for _, l := range targets {
		l.fn(event)
	}
}
