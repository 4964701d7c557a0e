package services

import (
	"context"
	"sync"
	"time"

	"taskhub-backend/application/ports"
	"taskhub-backend/domain/document"
	appErrors "taskhub-backend/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// flushThreshold forces an immediate flush once this many events
	// are pending.
	flushThreshold = 100

	// defaultBufferWindow is the fixed delay from the first unflushed
	// event to the timer-driven flush.
	defaultBufferWindow = time.Second
)

// ChangeBatch is one coalesced delivery of buffered store events
type ChangeBatch struct {
	Added    []*document.Document
	Modified []*document.Document
	Removed  []*document.Document
}

// SubscribeInput describes a change subscription
type SubscribeInput struct {
	Where   []ports.Filter
	OrderBy []ports.SortClause
	Limit   int
	OnEvent func(ChangeBatch)
}

// SubscribeOptions tunes buffering
type SubscribeOptions struct {
	// BufferWindow is the fixed flush delay; zero means the default
	BufferWindow time.Duration
}

// Unsubscribe detaches a subscription. Idempotent; the first call
// cancels the pending timer, force-flushes buffered events and removes
// the store listener.
type Unsubscribe func()

// SubscriptionService buffers store change events into time-windowed
// batches. A flush fires when the buffer reaches the threshold or when
// the window elapses after the first unflushed event; the window is
// fixed, later events do not extend it.
type SubscriptionService struct {
	store  ports.Store
	graph  *GraphService
	logger *zap.Logger
}

// NewSubscriptionService creates a subscription buffer service
func NewSubscriptionService(store ports.Store, graph *GraphService, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		store:  store,
		graph:  graph,
		logger: logger,
	}
}

// Subscribe registers a buffered change listener on a collection
func (s *SubscriptionService) Subscribe(ctx context.Context, collection string, input SubscribeInput, opts SubscribeOptions) (Unsubscribe, error) {
	if input.OnEvent == nil {
		return nil, appErrors.NewValidationError("onEvent handler is required")
	}

	window := opts.BufferWindow
	if window <= 0 {
		window = defaultBufferWindow
	}

	sub := &subscription{
		id:      uuid.NewString(),
		window:  window,
		onEvent: input.OnEvent,
		logger:  s.logger,
	}

	spec := ports.QuerySpec{Filters: input.Where, Sort: input.OrderBy, Limit: input.Limit}
	detach, err := s.store.Listen(ctx, collection, spec, sub.handle)
	if err != nil {
		return nil, err
	}
	sub.detach = detach

	s.logger.Debug("Subscription registered",
		zap.String("subscription", sub.id),
		zap.String("collection", collection),
	)
	return sub.unsubscribe, nil
}

// subscription is the buffering state machine for one subscriber:
// idle until an event arrives, buffering until the threshold or the
// window flushes, back to idle after delivery.
type subscription struct {
	id      string
	window  time.Duration
	onEvent func(ChangeBatch)
	detach  ports.Unsubscribe
	logger  *zap.Logger

	mu       sync.Mutex
	pending  []ports.ChangeEvent
	timer    *time.Timer
	flushing bool
	closed   bool
	once     sync.Once
}

// handle receives one store event. The threshold flush runs
// synchronously so a burst of events produces full batches in order.
func (sub *subscription) handle(event ports.ChangeEvent) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.pending = append(sub.pending, event)
	reached := len(sub.pending) >= flushThreshold
	if !reached && sub.timer == nil {
		// fixed window from the first unflushed event; later events
		// never extend it
		sub.timer = time.AfterFunc(sub.window, sub.flush)
	}
	sub.mu.Unlock()

	if reached {
		sub.flush()
	}
}

// flush coalesces and delivers the pending events. A flush requested
// while another is in flight is skipped, never interleaved; events
// arriving meanwhile buffer for the next one.
func (sub *subscription) flush() {
	sub.mu.Lock()
	if sub.flushing || len(sub.pending) == 0 {
		sub.mu.Unlock()
		return
	}
	sub.flushing = true
	events := sub.pending
	sub.pending = nil
	if sub.timer != nil {
		sub.timer.Stop()
		sub.timer = nil
	}
	sub.mu.Unlock()

	sub.onEvent(coalesce(events))

	sub.mu.Lock()
	sub.flushing = false
	sub.mu.Unlock()
}

func (sub *subscription) unsubscribe() {
	sub.once.Do(func() {
		sub.mu.Lock()
		sub.closed = true
		if sub.timer != nil {
			sub.timer.Stop()
			sub.timer = nil
		}
		sub.mu.Unlock()

		sub.flush()
		sub.detach()
	})
}

// coalesce buckets events by kind, preserving arrival order
func coalesce(events []ports.ChangeEvent) ChangeBatch {
	var batch ChangeBatch
	for _, e := range events {
		switch e.Kind {
		case ports.ChangeAdded:
			batch.Added = append(batch.Added, e.Doc)
		case ports.ChangeModified:
			batch.Modified = append(batch.Modified, e.Doc)
		case ports.ChangeRemoved:
			batch.Removed = append(batch.Removed, e.Doc)
		}
	}
	return batch
}

// GraphChangeBatch reports node-level graph changes between flushes
type GraphChangeBatch struct {
	Added    []*GraphNode
	Modified []*GraphNode
	Removed  []*GraphNode
}

// GraphSubscribeInput describes a live graph subscription: the graph
// query to re-run per flush and the node-level change handler.
type GraphSubscribeInput struct {
	Where   []ports.Filter
	OrderBy []ports.SortClause
	Limit   int
	Graph   GraphQueryInput
	Options GraphOptions
	OnEvent func(GraphChangeBatch)
}

// SubscribeGraph layers the subscription buffer with graph traversal:
// every flush re-runs the graph query and diffs the node set against
// the previous snapshot by structural equality.
func (s *SubscriptionService) SubscribeGraph(ctx context.Context, collection string, input GraphSubscribeInput, opts SubscribeOptions) (Unsubscribe, error) {
	if input.OnEvent == nil {
		return nil, appErrors.NewValidationError("onEvent handler is required")
	}

	snapshot := make(map[string]*GraphNode)
	var snapMu sync.Mutex

	refresh := func(ChangeBatch) {
		result, err := s.graph.GraphQuery(ctx, collection, input.Graph, input.Options)
		if err != nil {
			s.logger.Error("Live graph refresh failed",
				zap.String("collection", collection),
				zap.Error(err),
			)
			return
		}

		snapMu.Lock()
		var batch GraphChangeBatch
		current := make(map[string]*GraphNode, len(result.Results))
		for _, node := range result.Results {
			key := node.Collection + "/" + node.ID
			current[key] = node
			last, seen := snapshot[key]
			if !seen {
				batch.Added = append(batch.Added, node)
			} else if !fieldsEqual(last.Data, node.Data) {
				batch.Modified = append(batch.Modified, node)
			}
		}
		for key, node := range snapshot {
			if _, ok := current[key]; !ok {
				batch.Removed = append(batch.Removed, node)
			}
		}
		snapshot = current
		snapMu.Unlock()

		if len(batch.Added) > 0 || len(batch.Modified) > 0 || len(batch.Removed) > 0 {
			input.OnEvent(batch)
		}
	}

	return s.Subscribe(ctx, collection, SubscribeInput{
		Where:   input.Where,
		OrderBy: input.OrderBy,
		Limit:   input.Limit,
		OnEvent: refresh,
	}, opts)
}

// fieldsEqual compares two field maps by structural equality
func fieldsEqual(a, b map[string]document.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}
