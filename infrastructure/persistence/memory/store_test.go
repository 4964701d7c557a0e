package memory

import (
	"context"
	"testing"

	"taskhub-backend/application/ports"
	"taskhub-backend/domain/document"
	appErrors "taskhub-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDoc(collection, id string, version uint64, fields map[string]document.Value) *document.Document {
	return &document.Document{
		ID:         id,
		Collection: collection,
		Fields:     fields,
		Version:    version,
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	s := NewStore()

	_, err := s.Get(context.Background(), "tasks", "missing")

	require.Error(t, err)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestStore_Put_MergePreservesOtherFields(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Put(ctx, newDoc("tasks", "t1", 1, map[string]document.Value{
		"title":  document.String("first"),
		"status": document.String("open"),
	}), false))

	require.NoError(t, s.Put(ctx, newDoc("tasks", "t1", 2, map[string]document.Value{
		"status": document.String("done"),
	}), true))

	doc, err := s.Get(ctx, "tasks", "t1")
	require.NoError(t, err)
	assert.Equal(t, document.String("first"), doc.Field("title"))
	assert.Equal(t, document.String("done"), doc.Field("status"))
	assert.Equal(t, uint64(2), doc.Version)
}

func TestStore_Get_ReturnsClone(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Put(ctx, newDoc("tasks", "t1", 1, map[string]document.Value{
		"title": document.String("v"),
	}), false))

	doc, err := s.Get(ctx, "tasks", "t1")
	require.NoError(t, err)
	doc.Fields["title"] = document.String("mutated")

	again, err := s.Get(ctx, "tasks", "t1")
	require.NoError(t, err)
	assert.Equal(t, document.String("v"), again.Field("title"))
}

func TestStore_Query_FilterSortLimit(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for i, status := range []string{"open", "done", "open", "open"} {
		require.NoError(t, s.Put(ctx, newDoc("tasks", string(rune('a'+i)), 1, map[string]document.Value{
			"status":   document.String(status),
			"priority": document.Number(float64(i)),
		}), false))
	}

	docs, err := s.Query(ctx, "tasks", ports.QuerySpec{
		Filters: []ports.Filter{{Field: "status", Operator: ports.OpEqual, Value: document.String("open")}},
		Sort:    []ports.SortClause{{Field: "priority", Order: ports.SortDescending}},
		Limit:   2,
	})

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, 3.0, docs[0].Field("priority").AsNumber())
	assert.Equal(t, 2.0, docs[1].Field("priority").AsNumber())
}

func TestStore_CommitBatch_AtomicOnConflict(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Put(ctx, newDoc("tasks", "t1", 3, map[string]document.Value{
		"title": document.String("kept"),
	}), false))

	stale := uint64(2)
	fresh := uint64(0)
	err := s.CommitBatch(ctx, []ports.BatchWriteOp{
		{
			Kind:            ports.BatchOpPut,
			Collection:      "tasks",
			ID:              "t2",
			Doc:             newDoc("tasks", "t2", 1, map[string]document.Value{"title": document.String("new")}),
			ExpectedVersion: &fresh,
		},
		{
			Kind:            ports.BatchOpPut,
			Collection:      "tasks",
			ID:              "t1",
			Doc:             newDoc("tasks", "t1", 4, map[string]document.Value{"title": document.String("clobbered")}),
			ExpectedVersion: &stale,
		},
	})

	require.Error(t, err)
	assert.True(t, appErrors.IsConflict(err))

	// nothing applied
	_, err = s.Get(ctx, "tasks", "t2")
	assert.True(t, appErrors.IsNotFound(err))
	doc, err := s.Get(ctx, "tasks", "t1")
	require.NoError(t, err)
	assert.Equal(t, document.String("kept"), doc.Field("title"))
}

func TestStore_CommitBatch_MustNotExistPrecondition(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Put(ctx, newDoc("tasks", "t1", 1, nil), false))

	mustNotExist := uint64(0)
	err := s.CommitBatch(ctx, []ports.BatchWriteOp{{
		Kind:            ports.BatchOpPut,
		Collection:      "tasks",
		ID:              "t1",
		Doc:             newDoc("tasks", "t1", 1, nil),
		ExpectedVersion: &mustNotExist,
	}})

	assert.True(t, appErrors.IsConflict(err))
}

func TestStore_Listen_DeliversMatchingEvents(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	var events []ports.ChangeEvent
	unsub, err := s.Listen(ctx, "tasks", ports.QuerySpec{
		Filters: []ports.Filter{{Field: "status", Operator: ports.OpEqual, Value: document.String("open")}},
	}, func(e ports.ChangeEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, s.Put(ctx, newDoc("tasks", "t1", 1, map[string]document.Value{
		"status": document.String("open"),
	}), false))
	require.NoError(t, s.Put(ctx, newDoc("tasks", "t2", 1, map[string]document.Value{
		"status": document.String("done"),
	}), false))
	require.NoError(t, s.Delete(ctx, "tasks", "t1"))

	require.Len(t, events, 2)
	assert.Equal(t, ports.ChangeAdded, events[0].Kind)
	assert.Equal(t, "t1", events[0].Doc.ID)
	assert.Equal(t, ports.ChangeRemoved, events[1].Kind)
}

func TestStore_Listen_UnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	count := 0
	unsub, err := s.Listen(ctx, "tasks", ports.QuerySpec{}, func(ports.ChangeEvent) { count++ })
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, newDoc("tasks", "t1", 1, nil), false))
	unsub()
	unsub() // idempotent
	require.NoError(t, s.Put(ctx, newDoc("tasks", "t2", 1, nil), false))

	assert.Equal(t, 1, count)
}

func TestStore_Delete_AbsentIsNoOp(t *testing.T) {
	s := NewStore()
	assert.NoError(t, s.Delete(context.Background(), "tasks", "missing"))
}
