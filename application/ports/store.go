package ports

import (
	"context"

	"taskhub-backend/domain/document"
)

// Store is the document store port. The engine treats the underlying
// store as an opaque collaborator offering these primitives; adapters
// live under infrastructure/persistence.
type Store interface {
	// Get retrieves a document, returning a NotFound error when absent
	Get(ctx context.Context, collection, id string) (*document.Document, error)

	// Put persists a document. With merge=true, stored fields missing
	// from doc.Fields are left untouched; metadata and history are
	// always replaced wholesale.
	Put(ctx context.Context, doc *document.Document, merge bool) error

	// Delete removes a document. Deleting an absent document is a no-op.
	Delete(ctx context.Context, collection, id string) error

	// Query returns the documents matching spec, filtered, sorted and
	// limited by the store.
	Query(ctx context.Context, collection string, spec QuerySpec) ([]*document.Document, error)

	// CommitBatch applies the given write operations atomically: either
	// every op applies or none does. A failed version precondition
	// surfaces as a Conflict error.
	CommitBatch(ctx context.Context, ops []BatchWriteOp) error

	// Listen registers a change listener for documents matching the
	// spec's filters. Stores without change feeds return a Validation
	// error.
	Listen(ctx context.Context, collection string, spec QuerySpec, fn func(ChangeEvent)) (Unsubscribe, error)

	// MaxBatchSize is the hard upper bound on ops per CommitBatch call
	MaxBatchSize() int
}

// BatchOpKind defines the kind of batch write operation
type BatchOpKind string

const (
	BatchOpPut    BatchOpKind = "put"
	BatchOpDelete BatchOpKind = "delete"
)

// BatchWriteOp is a single staged write inside an atomic commit.
type BatchWriteOp struct {
	Kind       BatchOpKind
	Collection string
	ID         string

	// Doc is the staged document state for put ops
	Doc *document.Document

	// Merge selects merge-write semantics for put ops
	Merge bool

	// ExpectedVersion, when set, is an optimistic precondition: the
	// stored document's version must equal it (0 means the document
	// must not exist). Violations fail the whole batch with a Conflict
	// error.
	ExpectedVersion *uint64
}

// ChangeKind classifies a store change event
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// ChangeEvent is one store-level document change. Doc carries the state
// after the change; for removals it carries the last known state.
type ChangeEvent struct {
	Kind ChangeKind
	Doc  *document.Document
}

// Unsubscribe detaches a listener. Implementations must be idempotent.
type Unsubscribe func()
