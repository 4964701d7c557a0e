package services

import (
	"context"
	"fmt"
	"strings"

	"taskhub-backend/application/ports"
	"taskhub-backend/domain/document"
	"taskhub-backend/pkg/common"

	"go.uber.org/zap"
)

// groupKeyDelimiter joins the ordered group-by field values into one
// bucket key.
const groupKeyDelimiter = "|"

// AggregateOp is a supported accumulator operation
type AggregateOp string

const (
	AggCount AggregateOp = "count"
	AggSum   AggregateOp = "sum"
	AggMin   AggregateOp = "min"
	AggMax   AggregateOp = "max"
	AggAvg   AggregateOp = "avg"
)

// AggregateSpec names one accumulator over a source field
type AggregateSpec struct {
	Name  string
	Field string
	Op    AggregateOp
}

// Accumulator holds the running state of one aggregate. Count tracks
// contributing documents; Avg is recomputed as Sum/Count after each
// contribution.
type Accumulator struct {
	Count int
	Sum   float64
	Min   document.Value
	Max   document.Value
	Avg   float64
}

// Add folds one field value into the accumulator. Null and missing
// values are skipped entirely and do not affect any component.
func (a *Accumulator) Add(v document.Value) {
	if v.IsUndefined() || v.IsNull() {
		return
	}
	a.Count++
	if v.Kind() == document.KindNumber {
		a.Sum += v.AsNumber()
	}
	a.Avg = a.Sum / float64(a.Count)
	if a.Min.IsUndefined() || document.Compare(v, a.Min) < 0 {
		a.Min = v
	}
	if a.Max.IsUndefined() || document.Compare(v, a.Max) > 0 {
		a.Max = v
	}
}

// Value returns the accumulator component selected by op
func (a *Accumulator) Value(op AggregateOp) document.Value {
	switch op {
	case AggCount:
		return document.Number(float64(a.Count))
	case AggSum:
		return document.Number(a.Sum)
	case AggAvg:
		return document.Number(a.Avg)
	case AggMin:
		return a.Min
	case AggMax:
		return a.Max
	default:
		return document.Undefined()
	}
}

// AggregationInput describes an aggregation over a collection
type AggregationInput struct {
	GroupBy    []string
	Aggregates []AggregateSpec
	Where      []ports.Filter
	OrderBy    []ports.SortClause
	Limit      int
}

// AggregateGroup is one group-by bucket with its own accumulators
type AggregateGroup struct {
	Key        string
	GroupBy    map[string]document.Value
	Aggregates map[string]*Accumulator
}

// AggregationResult carries the source page plus the folded aggregates.
// Groups is populated when GroupBy is non-empty, Aggregates otherwise.
type AggregationResult struct {
	Results    []*document.Document
	Aggregates map[string]*Accumulator
	Groups     []*AggregateGroup
	Pagination common.Page
}

// AggregationService computes group-by buckets and running accumulators
// on top of the query engine.
type AggregationService struct {
	query  *QueryService
	logger *zap.Logger
}

// NewAggregationService creates an aggregation engine
func NewAggregationService(query *QueryService, logger *zap.Logger) *AggregationService {
	return &AggregationService{
		query:  query,
		logger: logger,
	}
}

// AggregateQuery runs the query engine and folds every result once
// through each configured accumulator. Each bucket gets a fresh
// accumulator set, never a shared one.
func (s *AggregationService) AggregateQuery(ctx context.Context, collection string, input AggregationInput) (*AggregationResult, error) {
	page, err := s.query.Query(ctx, collection, ports.QuerySpec{
		Filters: input.Where,
		Sort:    input.OrderBy,
		Limit:   input.Limit,
	})
	if err != nil {
		return nil, err
	}

	result := &AggregationResult{
		Results:    page.Results,
		Pagination: page.Pagination,
	}

	if len(input.GroupBy) == 0 {
		result.Aggregates = newAccumulators(input.Aggregates)
		for _, doc := range page.Results {
			foldDocument(result.Aggregates, input.Aggregates, doc)
		}
		return result, nil
	}

	buckets := make(map[string]*AggregateGroup)
	var order []string
	for _, doc := range page.Results {
		key := groupKey(doc, input.GroupBy)
		group, ok := buckets[key]
		if !ok {
			group = &AggregateGroup{
				Key:        key,
				GroupBy:    make(map[string]document.Value, len(input.GroupBy)),
				Aggregates: newAccumulators(input.Aggregates),
			}
			for _, field := range input.GroupBy {
				group.GroupBy[field] = doc.Field(field)
			}
			buckets[key] = group
			order = append(order, key)
		}
		foldDocument(group.Aggregates, input.Aggregates, doc)
	}

	result.Groups = make([]*AggregateGroup, 0, len(order))
	for _, key := range order {
		result.Groups = append(result.Groups, buckets[key])
	}

	s.logger.Debug("Aggregation completed",
		zap.String("collection", collection),
		zap.Int("documents", len(page.Results)),
		zap.Int("groups", len(result.Groups)),
	)
	return result, nil
}

func newAccumulators(specs []AggregateSpec) map[string]*Accumulator {
	accs := make(map[string]*Accumulator, len(specs))
	for _, spec := range specs {
		accs[spec.Name] = &Accumulator{
			Min: document.Undefined(),
			Max: document.Undefined(),
		}
	}
	return accs
}

func foldDocument(accs map[string]*Accumulator, specs []AggregateSpec, doc *document.Document) {
	for _, spec := range specs {
		accs[spec.Name].Add(doc.Field(spec.Field))
	}
}

// groupKey builds the bucket key from the ordered group-by values
func groupKey(doc *document.Document, groupBy []string) string {
	parts := make([]string, len(groupBy))
	for i, field := range groupBy {
		parts[i] = fmt.Sprintf("%v", doc.Field(field).ToAny())
	}
	return strings.Join(parts, groupKeyDelimiter)
}
