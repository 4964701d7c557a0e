package services

import (
	"context"
	"strings"

	"taskhub-backend/application/ports"
	"taskhub-backend/domain/document"
	"taskhub-backend/pkg/cache"
	"taskhub-backend/pkg/common"
	appErrors "taskhub-backend/pkg/errors"

	"go.uber.org/zap"
)

const (
	// maxTraversalDepth is the hard hop-count ceiling; requested depths
	// above it are clamped.
	maxTraversalDepth = 5

	// defaultMaxNodes caps the total nodes one traversal may emit
	defaultMaxNodes = 1000

	// defaultEdgeCacheSize bounds the memoized relationship cache per
	// engine instance.
	defaultEdgeCacheSize = 512
)

// Direction orients a relationship spec
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// RelSpec describes one relationship to follow during traversal.
// Outbound follows id values held on the current node's field; inbound
// finds documents whose field points back at the current node.
type RelSpec struct {
	Collection string    `validate:"required"`
	Direction  Direction `validate:"required,oneof=outbound inbound"`
	Field      string    `validate:"required"`
	Type       string
	Where      []ports.Filter
	OrderBy    []ports.SortClause
	Limit      int
}

// GraphQueryInput describes a traversal. Start nodes come either from
// StartID or from running Where/OrderBy/Limit against the start
// collection.
type GraphQueryInput struct {
	StartID       string
	Relationships []RelSpec `validate:"dive"`
	Depth         int
	Where         []ports.Filter
	OrderBy       []ports.SortClause
	Limit         int
}

// GraphOptions tunes traversal bounds and output
type GraphOptions struct {
	IncludePath bool

	// MaxNodes caps emitted nodes; zero means the default
	MaxNodes int
}

// NodeRef identifies a node on a traversal path
type NodeRef struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
}

// GraphNode is one traversed document with its discovery context
type GraphNode struct {
	ID               string
	Collection       string
	Data             map[string]document.Value
	Depth            int
	RelationshipType string
	Path             []NodeRef
}

// GraphResult is the traversal output. HasMore reports whether the
// node cap cut the walk short.
type GraphResult struct {
	Results    []*GraphNode
	Pagination common.GraphPage
}

// GraphService walks document relationships breadth-first with
// memoized edge resolution. The edge cache lives for the service
// instance and is bounded LRU, so long traversal-heavy workloads
// cannot grow it without limit.
type GraphService struct {
	store  ports.Store
	query  *QueryService
	logger *zap.Logger
	edges  *cache.LRU[string, []*document.Document]
}

// NewGraphService creates a graph traversal engine
func NewGraphService(store ports.Store, query *QueryService, logger *zap.Logger) *GraphService {
	return &GraphService{
		store:  store,
		query:  query,
		logger: logger,
		edges:  cache.NewLRU[string, []*document.Document](defaultEdgeCacheSize),
	}
}

// GraphQuery traverses relationships breadth-first from the start
// nodes. Nodes are deduplicated globally by collection and id, first
// discovery wins; traversal halts when the queue drains or the node
// cap is reached.
func (s *GraphService) GraphQuery(ctx context.Context, collection string, input GraphQueryInput, opts GraphOptions) (*GraphResult, error) {
	maxNodes := opts.MaxNodes
	if maxNodes <= 0 {
		maxNodes = defaultMaxNodes
	}
	maxDepth := input.Depth
	if maxDepth > maxTraversalDepth {
		maxDepth = maxTraversalDepth
	}

	seeds, err := s.startNodes(ctx, collection, input)
	if err != nil {
		return nil, err
	}

	visited := make(map[string]bool)
	var results []*GraphNode
	var queue []*GraphNode
	capped := false

	admit := func(node *GraphNode) bool {
		key := node.Collection + "/" + node.ID
		if visited[key] {
			return true
		}
		if len(results) >= maxNodes {
			capped = true
			return false
		}
		visited[key] = true
		results = append(results, node)
		queue = append(queue, node)
		return true
	}

	for _, doc := range seeds {
		node := &GraphNode{
			ID:         doc.ID,
			Collection: doc.Collection,
			Data:       doc.Fields,
			Depth:      0,
		}
		if opts.IncludePath {
			node.Path = []NodeRef{{ID: doc.ID, Collection: doc.Collection}}
		}
		if !admit(node) {
			break
		}
	}

	for len(queue) > 0 && !capped {
		node := queue[0]
		queue = queue[1:]
		if node.Depth >= maxDepth {
			continue
		}

		for _, rel := range input.Relationships {
			related, err := s.resolveRelated(ctx, node, rel)
			if err != nil {
				return nil, err
			}
			for _, doc := range related {
				child := &GraphNode{
					ID:               doc.ID,
					Collection:       doc.Collection,
					Data:             doc.Fields,
					Depth:            node.Depth + 1,
					RelationshipType: rel.Type,
				}
				if opts.IncludePath {
					child.Path = append(append([]NodeRef{}, node.Path...), NodeRef{ID: doc.ID, Collection: doc.Collection})
				}
				if !admit(child) {
					break
				}
			}
			if capped {
				break
			}
		}
	}

	s.logger.Debug("Graph traversal completed",
		zap.String("collection", collection),
		zap.Int("nodes", len(results)),
		zap.Bool("capped", capped),
	)

	return &GraphResult{
		Results: results,
		Pagination: common.GraphPage{
			HasMore:        capped,
			NodesProcessed: len(results),
		},
	}, nil
}

// startNodes resolves the depth-0 seeds
func (s *GraphService) startNodes(ctx context.Context, collection string, input GraphQueryInput) ([]*document.Document, error) {
	if input.StartID != "" {
		doc, err := s.store.Get(ctx, collection, input.StartID)
		if err != nil {
			return nil, err
		}
		return []*document.Document{doc}, nil
	}
	page, err := s.query.Query(ctx, collection, ports.QuerySpec{
		Filters: input.Where,
		Sort:    input.OrderBy,
		Limit:   input.Limit,
	})
	if err != nil {
		return nil, err
	}
	return page.Results, nil
}

// resolveRelated fetches the documents one relationship leads to from
// a node, memoizing per traversed edge so repeated walks through the
// same edge skip the store.
func (s *GraphService) resolveRelated(ctx context.Context, node *GraphNode, rel RelSpec) ([]*document.Document, error) {
	cacheKey := strings.Join([]string{node.Collection, node.ID, rel.Collection, rel.Type}, "|")
	if docs, ok := s.edges.Get(cacheKey); ok {
		return docs, nil
	}

	var docs []*document.Document
	var err error
	if rel.Direction == DirectionInbound {
		docs, err = s.resolveInbound(ctx, node, rel)
	} else {
		docs, err = s.resolveOutbound(ctx, node, rel)
	}
	if err != nil {
		return nil, err
	}

	s.edges.Set(cacheKey, docs)
	return docs, nil
}

// resolveInbound queries the target collection for documents whose
// field equals the node's id.
func (s *GraphService) resolveInbound(ctx context.Context, node *GraphNode, rel RelSpec) ([]*document.Document, error) {
	filters := append([]ports.Filter{{
		Field:    rel.Field,
		Operator: ports.OpEqual,
		Value:    document.String(node.ID),
	}}, rel.Where...)

	page, err := s.query.Query(ctx, rel.Collection, ports.QuerySpec{
		Filters: filters,
		Sort:    rel.OrderBy,
		Limit:   rel.Limit,
	})
	if err != nil {
		return nil, err
	}
	return page.Results, nil
}

// resolveOutbound follows the id value or id list held on the node's
// field into the target collection.
func (s *GraphService) resolveOutbound(ctx context.Context, node *GraphNode, rel RelSpec) ([]*document.Document, error) {
	v, ok := node.Data[rel.Field]
	if !ok {
		return nil, nil
	}

	var ids []string
	switch v.Kind() {
	case document.KindString:
		ids = []string{v.AsString()}
	case document.KindList:
		for _, item := range v.AsList() {
			if item.Kind() == document.KindString {
				ids = append(ids, item.AsString())
			}
		}
	}

	spec := ports.QuerySpec{Filters: rel.Where}
	var docs []*document.Document
	for _, id := range ids {
		doc, err := s.store.Get(ctx, rel.Collection, id)
		if err != nil {
			if appErrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if spec.Matches(doc) {
			docs = append(docs, doc)
		}
	}

	ports.SortDocuments(docs, rel.OrderBy)
	return ports.ApplyLimit(docs, rel.Limit), nil
}
