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

func newAggregationFixture(t *testing.T) (*AggregationService, ports.Store) {
	t.Helper()
	store := memory.NewStore()
	write := NewWriteService(store, zap.NewNop())

	rows := []struct {
		id     string
		status string
		hours  document.Value
	}{
		{"t1", "open", document.Number(4)},
		{"t2", "open", document.Number(6)},
		{"t3", "done", document.Number(10)},
		{"t4", "done", document.Null()},
		{"t5", "done", document.Undefined()},
	}
	for _, row := range rows {
		_, err := write.Write(context.Background(), "tasks", row.id, map[string]document.Value{
			"status": document.String(row.status),
			"hours":  row.hours,
		}, "seed")
		require.NoError(t, err)
	}

	query := NewQueryService(store, zap.NewNop())
	return NewAggregationService(query, zap.NewNop()), store
}

func TestAggregationService_AggregateQuery_Ungrouped(t *testing.T) {
	svc, _ := newAggregationFixture(t)

	result, err := svc.AggregateQuery(context.Background(), "tasks", AggregationInput{
		Aggregates: []AggregateSpec{
			{Name: "totalHours", Field: "hours", Op: AggSum},
			{Name: "avgHours", Field: "hours", Op: AggAvg},
			{Name: "maxHours", Field: "hours", Op: AggMax},
			{Name: "tracked", Field: "hours", Op: AggCount},
		},
	})

	require.NoError(t, err)
	require.NotNil(t, result.Aggregates)

	acc := result.Aggregates["totalHours"]
	require.NotNil(t, acc)
	assert.Equal(t, 3, acc.Count, "null and missing values do not count")
	assert.Equal(t, 20.0, acc.Sum)
	assert.InDelta(t, 20.0/3.0, acc.Avg, 1e-9)
	assert.Equal(t, document.Number(10), acc.Max)
	assert.Equal(t, document.Number(4), acc.Min)

	assert.Equal(t, document.Number(3), result.Aggregates["tracked"].Value(AggCount))
}

func TestAggregationService_AggregateQuery_GroupedBucketsAreIndependent(t *testing.T) {
	svc, _ := newAggregationFixture(t)

	result, err := svc.AggregateQuery(context.Background(), "tasks", AggregationInput{
		GroupBy: []string{"status"},
		Aggregates: []AggregateSpec{
			{Name: "hours", Field: "hours", Op: AggSum},
		},
		OrderBy: []ports.SortClause{{Field: "status", Order: ports.SortDescending}},
	})

	require.NoError(t, err)
	assert.Nil(t, result.Aggregates, "grouped queries report per-bucket aggregates")
	require.Len(t, result.Groups, 2)

	byKey := make(map[string]*AggregateGroup)
	for _, g := range result.Groups {
		byKey[g.Key] = g
	}

	open := byKey["open"]
	require.NotNil(t, open)
	assert.Equal(t, 10.0, open.Aggregates["hours"].Sum)
	assert.Equal(t, 2, open.Aggregates["hours"].Count)
	assert.Equal(t, document.String("open"), open.GroupBy["status"])

	done := byKey["done"]
	require.NotNil(t, done)
	assert.Equal(t, 10.0, done.Aggregates["hours"].Sum)
	assert.Equal(t, 1, done.Aggregates["hours"].Count, "null and missing skip the accumulator")
}

func TestAggregationService_AggregateQuery_WhereNarrowsSource(t *testing.T) {
	svc, _ := newAggregationFixture(t)

	result, err := svc.AggregateQuery(context.Background(), "tasks", AggregationInput{
		Where: []ports.Filter{{Field: "status", Operator: ports.OpEqual, Value: document.String("open")}},
		Aggregates: []AggregateSpec{
			{Name: "hours", Field: "hours", Op: AggSum},
		},
	})

	require.NoError(t, err)
	assert.Len(t, result.Results, 2)
	assert.Equal(t, 10.0, result.Aggregates["hours"].Sum)
}

func TestAccumulator_Add_RunningAverage(t *testing.T) {
	acc := &Accumulator{Min: document.Undefined(), Max: document.Undefined()}

	acc.Add(document.Number(2))
	assert.Equal(t, 2.0, acc.Avg)
	acc.Add(document.Number(4))
	assert.Equal(t, 3.0, acc.Avg)
	acc.Add(document.Null())
	assert.Equal(t, 3.0, acc.Avg, "null contributes nothing")
}
