package services

import (
	"context"
	"time"

	"taskhub-backend/application/ports"
	"taskhub-backend/domain/document"
	appErrors "taskhub-backend/pkg/errors"

	"go.uber.org/zap"
)

// defaultChunkSize is the default number of ops committed per chunk,
// clamped to the store's hard cap.
const defaultChunkSize = 500

// BatchOperationKind defines the kind of batch operation
type BatchOperationKind string

const (
	BatchWrite  BatchOperationKind = "write"
	BatchDelete BatchOperationKind = "delete"
)

// BatchOperation is one write or delete in a batch
type BatchOperation struct {
	Kind       BatchOperationKind
	Collection string
	ID         string
	Fields     map[string]document.Value
}

// BatchOptions controls batch execution
type BatchOptions struct {
	// ContinueOnError collects failures and keeps going instead of
	// aborting on the first one.
	ContinueOnError bool

	// ChunkSize caps ops per atomic commit; zero means the default
	ChunkSize int

	// Actor is recorded as the writer on every staged document
	Actor string

	// OnProgress, when set, is invoked after each chunk
	OnProgress func(BatchProgress)
}

// BatchProgress reports batch state after a chunk completes
type BatchProgress struct {
	ChunkIndex  int
	TotalChunks int
	Processed   int
	Successful  int
	Failed      int
}

// BatchFailure records one failed op
type BatchFailure struct {
	Index      int
	Collection string
	ID         string
	Err        error
}

// BatchResult summarizes a batch run. Chunks commit atomically, but
// the batch as a whole may apply partially; the counts are the record
// of what actually happened.
type BatchResult struct {
	Successful []string
	Failed     []BatchFailure
	Total      int
}

// BatchService chunks and commits many writes with partial-failure
// accounting.
type BatchService struct {
	store  ports.Store
	logger *zap.Logger
	clock  func() time.Time
}

// NewBatchService creates a batch executor
func NewBatchService(store ports.Store, logger *zap.Logger) *BatchService {
	return &BatchService{
		store:  store,
		logger: logger,
		clock:  time.Now,
	}
}

// ExecuteBatch stages versioned writes chunk by chunk and commits each
// chunk atomically. With ContinueOnError false the first staging or
// commit error aborts the whole call; otherwise failures are collected
// and the next chunk proceeds. Chunk N commits before chunk N+1 stages.
func (s *BatchService) ExecuteBatch(ctx context.Context, ops []BatchOperation, opts BatchOptions) (*BatchResult, error) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if max := s.store.MaxBatchSize(); chunkSize > max {
		chunkSize = max
	}

	result := &BatchResult{Total: len(ops)}
	totalChunks := (len(ops) + chunkSize - 1) / chunkSize

	for chunk := 0; chunk < totalChunks; chunk++ {
		start := chunk * chunkSize
		end := start + chunkSize
		if end > len(ops) {
			end = len(ops)
		}

		staged, failures, err := s.stageChunk(ctx, ops[start:end], start, opts.Actor)
		if err != nil && !opts.ContinueOnError {
			return result, err
		}
		result.Failed = append(result.Failed, failures...)

		if len(staged) > 0 {
			if err := s.store.CommitBatch(ctx, stagedOps(staged)); err != nil {
				for _, st := range staged {
					result.Failed = append(result.Failed, BatchFailure{
						Index:      st.index,
						Collection: st.op.Collection,
						ID:         st.op.ID,
						Err:        err,
					})
				}
				if !opts.ContinueOnError {
					return result, err
				}
			} else {
				for _, st := range staged {
					result.Successful = append(result.Successful, st.op.Collection+"/"+st.op.ID)
				}
			}
		}

		if opts.OnProgress != nil {
			opts.OnProgress(BatchProgress{
				ChunkIndex:  chunk,
				TotalChunks: totalChunks,
				Processed:   end,
				Successful:  len(result.Successful),
				Failed:      len(result.Failed),
			})
		}
	}

	s.logger.Info("Batch completed",
		zap.Int("total", result.Total),
		zap.Int("successful", len(result.Successful)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

type stagedOp struct {
	index int
	op    BatchOperation
	write ports.BatchWriteOp
}

// stageChunk prepares the store ops for one chunk. Write ops read the
// current document to compute diffs and the next version; delete ops
// skip staging entirely. The returned error is the first staging
// failure, for the abort-early policy.
func (s *BatchService) stageChunk(ctx context.Context, ops []BatchOperation, offset int, actor string) ([]stagedOp, []BatchFailure, error) {
	now := s.clock()
	var staged []stagedOp
	var failures []BatchFailure
	var firstErr error

	for i, op := range ops {
		index := offset + i
		if op.Kind == BatchDelete {
			staged = append(staged, stagedOp{
				index: index,
				op:    op,
				write: ports.BatchWriteOp{
					Kind:       ports.BatchOpDelete,
					Collection: op.Collection,
					ID:         op.ID,
				},
			})
			continue
		}

		current, err := s.store.Get(ctx, op.Collection, op.ID)
		if err != nil && !appErrors.IsNotFound(err) {
			failures = append(failures, BatchFailure{Index: index, Collection: op.Collection, ID: op.ID, Err: err})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		var baseVersion uint64
		if current != nil {
			baseVersion = current.Version
		}
		expected := baseVersion
		staged = append(staged, stagedOp{
			index: index,
			op:    op,
			write: ports.BatchWriteOp{
				Kind:            ports.BatchOpPut,
				Collection:      op.Collection,
				ID:              op.ID,
				Doc:             stageWrite(current, op.Collection, op.ID, op.Fields, actor, now),
				Merge:           true,
				ExpectedVersion: &expected,
			},
		})
	}
	return staged, failures, firstErr
}

func stagedOps(staged []stagedOp) []ports.BatchWriteOp {
	writes := make([]ports.BatchWriteOp, len(staged))
	for i, st := range staged {
		writes[i] = st.write
	}
	return writes
}
