package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"taskhub-backend/application/ports"
	"taskhub-backend/domain/document"
	"taskhub-backend/infrastructure/persistence/memory"
	appErrors "taskhub-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSubscriptionFixture(t *testing.T) (*SubscriptionService, *WriteService) {
	t.Helper()
	store := memory.NewStore()
	write := NewWriteService(store, zap.NewNop())
	query := NewQueryService(store, zap.NewNop())
	graph := NewGraphService(store, query, zap.NewNop())
	return NewSubscriptionService(store, graph, zap.NewNop()), write
}

func TestSubscriptionService_Subscribe_RequiresHandler(t *testing.T) {
	svc, _ := newSubscriptionFixture(t)

	_, err := svc.Subscribe(context.Background(), "tasks", SubscribeInput{}, SubscribeOptions{})

	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}

func TestSubscriptionService_Subscribe_ThresholdCoalescing(t *testing.T) {
	ctx := context.Background()
	svc, write := newSubscriptionFixture(t)

	var batches []ChangeBatch
	unsub, err := svc.Subscribe(ctx, "tasks", SubscribeInput{
		OnEvent: func(b ChangeBatch) { batches = append(batches, b) },
	}, SubscribeOptions{BufferWindow: time.Hour})
	require.NoError(t, err)

	for i := 0; i < 150; i++ {
		_, err := write.Write(ctx, "tasks", fmt.Sprintf("t%d", i), map[string]document.Value{
			"n": document.Number(float64(i)),
		}, "seed")
		require.NoError(t, err)
	}

	// the threshold flushed exactly once; the remainder waits buffered
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Added, 100)

	unsub()

	require.Len(t, batches, 2, "unsubscribe force-flushes the remainder")
	assert.Len(t, batches[1].Added, 50)
}

func TestSubscriptionService_Subscribe_WindowFlush(t *testing.T) {
	ctx := context.Background()
	svc, write := newSubscriptionFixture(t)

	flushed := make(chan ChangeBatch, 1)
	unsub, err := svc.Subscribe(ctx, "tasks", SubscribeInput{
		OnEvent: func(b ChangeBatch) { flushed <- b },
	}, SubscribeOptions{BufferWindow: 50 * time.Millisecond})
	require.NoError(t, err)
	defer unsub()

	for i := 0; i < 3; i++ {
		_, err := write.Write(ctx, "tasks", fmt.Sprintf("t%d", i), map[string]document.Value{
			"n": document.Number(float64(i)),
		}, "seed")
		require.NoError(t, err)
	}

	select {
	case batch := <-flushed:
		assert.Len(t, batch.Added, 3)
	case <-time.After(time.Second):
		t.Fatal("window flush never fired")
	}
}

func TestSubscriptionService_Subscribe_BucketsByKind(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	query := NewQueryService(store, zap.NewNop())
	graph := NewGraphService(store, query, zap.NewNop())
	svc := NewSubscriptionService(store, graph, zap.NewNop())
	write := NewWriteService(store, zap.NewNop())

	var batches []ChangeBatch
	unsub, err := svc.Subscribe(ctx, "tasks", SubscribeInput{
		OnEvent: func(b ChangeBatch) { batches = append(batches, b) },
	}, SubscribeOptions{BufferWindow: time.Hour})
	require.NoError(t, err)

	_, err = write.Write(ctx, "tasks", "t1", map[string]document.Value{"n": document.Number(1)}, "a")
	require.NoError(t, err)
	_, err = write.Write(ctx, "tasks", "t1", map[string]document.Value{"n": document.Number(2)}, "a")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "tasks", "t1"))

	unsub()

	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Added, 1)
	assert.Len(t, batches[0].Modified, 1)
	assert.Len(t, batches[0].Removed, 1)
}

func TestSubscriptionService_Subscribe_IdempotentUnsubscribe(t *testing.T) {
	ctx := context.Background()
	svc, write := newSubscriptionFixture(t)

	flushes := 0
	unsub, err := svc.Subscribe(ctx, "tasks", SubscribeInput{
		OnEvent: func(ChangeBatch) { flushes++ },
	}, SubscribeOptions{BufferWindow: time.Hour})
	require.NoError(t, err)

	_, err = write.Write(ctx, "tasks", "t1", map[string]document.Value{"n": document.Number(1)}, "a")
	require.NoError(t, err)

	unsub()
	unsub()

	assert.Equal(t, 1, flushes, "second unsubscribe must not double-flush")
}

func TestSubscriptionService_Subscribe_FilteredEvents(t *testing.T) {
	ctx := context.Background()
	svc, write := newSubscriptionFixture(t)

	var batches []ChangeBatch
	unsub, err := svc.Subscribe(ctx, "tasks", SubscribeInput{
		Where:   []ports.Filter{{Field: "status", Operator: ports.OpEqual, Value: document.String("open")}},
		OnEvent: func(b ChangeBatch) { batches = append(batches, b) },
	}, SubscribeOptions{BufferWindow: time.Hour})
	require.NoError(t, err)

	_, err = write.Write(ctx, "tasks", "t1", map[string]document.Value{"status": document.String("open")}, "a")
	require.NoError(t, err)
	_, err = write.Write(ctx, "tasks", "t2", map[string]document.Value{"status": document.String("done")}, "a")
	require.NoError(t, err)

	unsub()

	require.Len(t, batches, 1)
	require.Len(t, batches[0].Added, 1)
	assert.Equal(t, "t1", batches[0].Added[0].ID)
}

func TestSubscriptionService_SubscribeGraph_DiffsNodeSets(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	write := NewWriteService(store, zap.NewNop())
	query := NewQueryService(store, zap.NewNop())
	graph := NewGraphService(store, query, zap.NewNop())
	svc := NewSubscriptionService(store, graph, zap.NewNop())

	_, err := write.Write(ctx, "projects", "p1", map[string]document.Value{
		"name": document.String("launch"),
	}, "seed")
	require.NoError(t, err)

	graphFilter := []ports.Filter{{Field: "project", Operator: ports.OpEqual, Value: document.String("p1")}}
	batches := make(chan GraphChangeBatch, 4)
	unsub, err := svc.SubscribeGraph(ctx, "tasks", GraphSubscribeInput{
		Graph:   GraphQueryInput{Where: graphFilter},
		OnEvent: func(b GraphChangeBatch) { batches <- b },
	}, SubscribeOptions{BufferWindow: 20 * time.Millisecond})
	require.NoError(t, err)
	defer unsub()

	waitBatch := func() GraphChangeBatch {
		t.Helper()
		select {
		case b := <-batches:
			return b
		case <-time.After(time.Second):
			t.Fatal("graph flush never fired")
			return GraphChangeBatch{}
		}
	}

	_, err = write.Write(ctx, "tasks", "t1", map[string]document.Value{
		"project": document.String("p1"),
		"title":   document.String("draft"),
	}, "a")
	require.NoError(t, err)

	added := waitBatch()
	require.Len(t, added.Added, 1)
	assert.Equal(t, "t1", added.Added[0].ID)

	_, err = write.Write(ctx, "tasks", "t1", map[string]document.Value{
		"project": document.String("p1"),
		"title":   document.String("final"),
	}, "a")
	require.NoError(t, err)

	modified := waitBatch()
	require.Len(t, modified.Modified, 1)
	assert.Equal(t, document.String("final"), modified.Modified[0].Data["title"])

	require.NoError(t, store.Delete(ctx, "tasks", "t1"))

	removed := waitBatch()
	require.Len(t, removed.Removed, 1)
	assert.Equal(t, "t1", removed.Removed[0].ID)
}
