package services

import (
	"context"
	"testing"

	"taskhub-backend/application/ports"
	"taskhub-backend/domain/document"
	"taskhub-backend/infrastructure/persistence/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedTasks(t *testing.T, store ports.Store) {
	t.Helper()
	write := NewWriteService(store, zap.NewNop())
	tasks := []struct {
		id       string
		status   string
		priority float64
	}{
		{"t1", "open", 3},
		{"t2", "done", 1},
		{"t3", "open", 1},
		{"t4", "open", 2},
	}
	for _, task := range tasks {
		_, err := write.Write(context.Background(), "tasks", task.id, map[string]document.Value{
			"status":   document.String(task.status),
			"priority": document.Number(task.priority),
		}, "seed")
		require.NoError(t, err)
	}
}

func TestQueryService_Query_FilterSortLimit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedTasks(t, store)
	svc := NewQueryService(store, zap.NewNop())

	result, err := svc.Query(ctx, "tasks", ports.QuerySpec{
		Filters: []ports.Filter{{Field: "status", Operator: ports.OpEqual, Value: document.String("open")}},
		Sort:    []ports.SortClause{{Field: "priority", Order: ports.SortAscending}},
		Limit:   2,
	})

	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "t3", result.Results[0].ID)
	assert.Equal(t, "t4", result.Results[1].ID)
	assert.True(t, result.Pagination.HasMore, "full page implies more may exist")
	assert.Equal(t, "t4", result.Pagination.LastID)
}

func TestQueryService_Query_HasMoreHeuristic(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedTasks(t, store)
	svc := NewQueryService(store, zap.NewNop())

	result, err := svc.Query(ctx, "tasks", ports.QuerySpec{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, result.Results, 4)
	assert.False(t, result.Pagination.HasMore, "short page means exhausted")

	result, err = svc.Query(ctx, "tasks", ports.QuerySpec{})
	require.NoError(t, err)
	assert.Len(t, result.Results, 4)
	assert.False(t, result.Pagination.HasMore, "no limit never reports more")
}

func TestQueryService_Query_RangeOperators(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedTasks(t, store)
	svc := NewQueryService(store, zap.NewNop())

	result, err := svc.Query(ctx, "tasks", ports.QuerySpec{
		Filters: []ports.Filter{{Field: "priority", Operator: ports.OpGreaterThanOrEqual, Value: document.Number(2)}},
	})

	require.NoError(t, err)
	assert.Len(t, result.Results, 2)
}
