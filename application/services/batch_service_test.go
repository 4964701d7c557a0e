package services

import (
	"context"
	"fmt"
	"testing"

	"taskhub-backend/domain/document"
	"taskhub-backend/infrastructure/persistence/memory"
	appErrors "taskhub-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeOp(id string, n float64) BatchOperation {
	return BatchOperation{
		Kind:       BatchWrite,
		Collection: "tasks",
		ID:         id,
		Fields:     map[string]document.Value{"n": document.Number(n)},
	}
}

func TestBatchService_ExecuteBatch_AllSucceed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewBatchService(store, zap.NewNop())

	result, err := svc.ExecuteBatch(ctx, []BatchOperation{
		writeOp("t1", 1), writeOp("t2", 2), writeOp("t3", 3),
	}, BatchOptions{Actor: "batch"})

	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Len(t, result.Successful, 3)
	assert.Empty(t, result.Failed)

	doc, err := store.Get(ctx, "tasks", "t2")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), doc.Version)
	assert.Equal(t, "batch", doc.UpdatedBy)
}

func TestBatchService_ExecuteBatch_PartialFailureContinues(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{
		Store:     memory.NewStore(),
		failGetID: "t2",
		getErr:    appErrors.NewStorageError("Get", assert.AnError),
	}
	svc := NewBatchService(store, zap.NewNop())

	result, err := svc.ExecuteBatch(ctx, []BatchOperation{
		writeOp("t1", 1), writeOp("t2", 2), writeOp("t3", 3),
	}, BatchOptions{ContinueOnError: true})

	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Len(t, result.Successful, 2)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].Index)
	assert.Equal(t, "t2", result.Failed[0].ID)
}

func TestBatchService_ExecuteBatch_AbortsWithoutContinueOnError(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{
		Store:     memory.NewStore(),
		failGetID: "t1",
		getErr:    appErrors.NewStorageError("Get", assert.AnError),
	}
	svc := NewBatchService(store, zap.NewNop())

	_, err := svc.ExecuteBatch(ctx, []BatchOperation{
		writeOp("t1", 1), writeOp("t2", 2),
	}, BatchOptions{})

	require.Error(t, err)
	assert.True(t, appErrors.IsStorage(err))
}

func TestBatchService_ExecuteBatch_ChunkingAndProgress(t *testing.T) {
	ctx := context.Background()
	svc := NewBatchService(memory.NewStore(), zap.NewNop())

	var progress []BatchProgress
	result, err := svc.ExecuteBatch(ctx, []BatchOperation{
		writeOp("t1", 1), writeOp("t2", 2), writeOp("t3", 3), writeOp("t4", 4), writeOp("t5", 5),
	}, BatchOptions{
		ChunkSize:  2,
		OnProgress: func(p BatchProgress) { progress = append(progress, p) },
	})

	require.NoError(t, err)
	assert.Len(t, result.Successful, 5)
	require.Len(t, progress, 3)
	assert.Equal(t, 0, progress[0].ChunkIndex)
	assert.Equal(t, 3, progress[0].TotalChunks)
	assert.Equal(t, 2, progress[0].Processed)
	assert.Equal(t, 5, progress[2].Processed)
	assert.Equal(t, 5, progress[2].Successful)
}

func TestBatchService_ExecuteBatch_DeleteSkipsStaging(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewBatchService(store, zap.NewNop())

	_, err := svc.ExecuteBatch(ctx, []BatchOperation{writeOp("t1", 1)}, BatchOptions{})
	require.NoError(t, err)

	result, err := svc.ExecuteBatch(ctx, []BatchOperation{{
		Kind:       BatchDelete,
		Collection: "tasks",
		ID:         "t1",
	}}, BatchOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Successful, 1)

	_, err = store.Get(ctx, "tasks", "t1")
	assert.True(t, appErrors.IsNotFound(err))
}

func TestBatchService_ExecuteBatch_ChunkSizeClampedToStoreCap(t *testing.T) {
	ctx := context.Background()
	svc := NewBatchService(memory.NewStore(), zap.NewNop())

	ops := make([]BatchOperation, 600)
	for i := range ops {
		ops[i] = writeOp(fmt.Sprintf("t%d", i), float64(i))
	}

	var progress []BatchProgress
	result, err := svc.ExecuteBatch(ctx, ops, BatchOptions{
		ChunkSize:  10000,
		OnProgress: func(p BatchProgress) { progress = append(progress, p) },
	})

	require.NoError(t, err)
	assert.Len(t, result.Successful, 600)
	assert.Len(t, progress, 2, "600 ops at the 500 cap need two chunks")
}
