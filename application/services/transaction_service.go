package services

import (
	"context"
	"time"

	"taskhub-backend/application/ports"
	"taskhub-backend/domain/document"
	appErrors "taskhub-backend/pkg/errors"

	"go.uber.org/zap"
)

// defaultMaxAttempts is the optimistic retry budget for a transaction
const defaultMaxAttempts = 5

// TransactionFn is user-supplied transaction logic. Writes made through
// the handle are queued, not applied; the store commits them only after
// the function returns.
type TransactionFn func(tx *Txn) (interface{}, error)

// TransactionOptions controls retry and deadline behavior
type TransactionOptions struct {
	// MaxAttempts caps optimistic retries; zero means the default
	MaxAttempts int

	// Timeout, when positive, bounds the whole retry loop
	Timeout time.Duration

	// Actor is recorded as the writer on every queued write
	Actor string
}

// TransactionResult carries the user function's return value and the
// number of writes committed.
type TransactionResult struct {
	Value      interface{}
	Operations int
}

// TransactionService executes read-then-write transactions with
// optimistic retry. All reads happen while the user function runs; all
// writes are deferred and committed atomically afterwards, conditioned
// on the versions observed by the reads.
type TransactionService struct {
	store  ports.Store
	logger *zap.Logger
	clock  func() time.Time
}

// NewTransactionService creates a transaction coordinator
func NewTransactionService(store ports.Store, logger *zap.Logger) *TransactionService {
	return &TransactionService{
		store:  store,
		logger: logger,
		clock:  time.Now,
	}
}

// RunTransaction invokes fn with a transaction handle, then commits
// its queued writes atomically. A version conflict at commit re-invokes
// fn from scratch, up to the attempt budget; exhausting the budget or
// the deadline is a TransactionError. Errors returned by fn propagate
// unchanged and are not retried.
func (s *TransactionService) RunTransaction(ctx context.Context, fn TransactionFn, opts TransactionOptions) (*TransactionResult, error) {
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, appErrors.NewTransactionError("transaction deadline exceeded", err)
		}

		tx := &Txn{
			ctx:   ctx,
			store: s.store,
			actor: opts.Actor,
			clock: s.clock,
			reads: make(map[string]*document.Document),
			bases: make(map[string]uint64),
		}

		value, err := fn(tx)
		if err != nil {
			return nil, err
		}

		writes, err := tx.resolveWrites()
		if err != nil {
			return nil, err
		}

		if len(writes) == 0 {
			return &TransactionResult{Value: value}, nil
		}

		err = s.store.CommitBatch(ctx, writes)
		if err == nil {
			return &TransactionResult{Value: value, Operations: len(writes)}, nil
		}
		if !appErrors.IsConflict(err) {
			return nil, err
		}

		lastErr = err
		s.logger.Debug("Transaction conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", maxAttempts),
		)
	}

	return nil, appErrors.NewTransactionError("retry budget exhausted", lastErr)
}

// Txn is the handle exposed to transaction logic. Gets read through the
// store once and are cached for the attempt; Set, Update and Delete
// queue deferred writes.
type Txn struct {
	ctx   context.Context
	store ports.Store
	actor string
	clock func() time.Time

	// reads caches documents by key so a transaction observes a stable
	// snapshot and never sees its own queued writes.
	reads map[string]*document.Document

	// bases records the store version observed per key, zero for
	// absent documents. They become the commit preconditions.
	bases map[string]uint64

	queue []queuedWrite
}

type queuedWrite struct {
	kind       ports.BatchOpKind
	collection string
	id         string
	fields     map[string]document.Value
	mustExist  bool
}

// Get reads a document within the transaction. The first read per key
// hits the store; later reads return the cached snapshot, including
// after the key has been written through this handle.
func (t *Txn) Get(collection, id string) (*document.Document, error) {
	key := collection + "/" + id
	if doc, ok := t.reads[key]; ok {
		if doc == nil {
			return nil, appErrors.NewNotFoundError("document " + key)
		}
		return doc.Clone(), nil
	}

	doc, err := t.store.Get(t.ctx, collection, id)
	if err != nil {
		if appErrors.IsNotFound(err) {
			t.reads[key] = nil
			t.bases[key] = 0
		}
		return nil, err
	}
	t.reads[key] = doc
	t.bases[key] = doc.Version
	return doc.Clone(), nil
}

// Set queues a create-or-update write
func (t *Txn) Set(collection, id string, fields map[string]document.Value) {
	t.queue = append(t.queue, queuedWrite{
		kind:       ports.BatchOpPut,
		collection: collection,
		id:         id,
		fields:     fields,
	})
}

// Update queues a write that requires the document to exist; a missing
// document aborts the transaction with a NotFoundError.
func (t *Txn) Update(collection, id string, fields map[string]document.Value) {
	t.queue = append(t.queue, queuedWrite{
		kind:       ports.BatchOpPut,
		collection: collection,
		id:         id,
		fields:     fields,
		mustExist:  true,
	})
}

// Delete queues a document removal
func (t *Txn) Delete(collection, id string) {
	t.queue = append(t.queue, queuedWrite{
		kind:       ports.BatchOpDelete,
		collection: collection,
		id:         id,
	})
}

// resolveWrites turns the queued writes into store ops. Each write
// re-reads the current in-transaction state of its key so diffs and
// versions chain correctly when a key is written more than once; the
// commit precondition stays the version first observed from the store.
func (t *Txn) resolveWrites() ([]ports.BatchWriteOp, error) {
	// pending tracks the staged state per key so later writes in the
	// queue build on earlier ones.
	pending := make(map[string]*document.Document)
	deleted := make(map[string]bool)
	resolved := make(map[string]ports.BatchWriteOp)
	var order []string
	now := t.clock()

	for _, w := range t.queue {
		key := w.collection + "/" + w.id
		base, err := t.baseVersion(w.collection, w.id, key)
		if err != nil {
			return nil, err
		}

		if w.kind == ports.BatchOpDelete {
			delete(pending, key)
			deleted[key] = true
			if _, seen := resolved[key]; !seen {
				order = append(order, key)
			}
			expected := base
			resolved[key] = ports.BatchWriteOp{
				Kind:            ports.BatchOpDelete,
				Collection:      w.collection,
				ID:              w.id,
				ExpectedVersion: &expected,
			}
			continue
		}

		current := pending[key]
		if current == nil && !deleted[key] {
			current = t.reads[key]
		}
		if w.mustExist && current == nil {
			return nil, appErrors.NewNotFoundError("document " + key)
		}

		staged := stageWrite(current, w.collection, w.id, w.fields, t.actor, now)
		if prev := pending[key]; prev != nil {
			// one committed op per key: fold earlier staged payloads
			// into this one so the merge write carries them all
			staged = mergedView(prev, staged)
		}
		pending[key] = staged
		delete(deleted, key)
		if _, seen := resolved[key]; !seen {
			order = append(order, key)
		}
		expected := base
		resolved[key] = ports.BatchWriteOp{
			Kind:            ports.BatchOpPut,
			Collection:      w.collection,
			ID:              w.id,
			Doc:             staged,
			Merge:           true,
			ExpectedVersion: &expected,
		}
	}

	writes := make([]ports.BatchWriteOp, 0, len(order))
	for _, key := range order {
		writes = append(writes, resolved[key])
	}
	return writes, nil
}

// baseVersion returns the store version observed for a key, reading it
// now if the transaction never touched it.
func (t *Txn) baseVersion(collection, id, key string) (uint64, error) {
	if base, ok := t.bases[key]; ok {
		return base, nil
	}
	doc, err := t.store.Get(t.ctx, collection, id)
	if err != nil {
		if appErrors.IsNotFound(err) {
			t.reads[key] = nil
			t.bases[key] = 0
			return 0, nil
		}
		return 0, err
	}
	t.reads[key] = doc
	t.bases[key] = doc.Version
	return doc.Version, nil
}
