package ports

import (
	"sort"

	"taskhub-backend/domain/document"
)

// FilterOperator defines the type of comparison
type FilterOperator string

const (
	OpEqual              FilterOperator = "eq"
	OpNotEqual           FilterOperator = "ne"
	OpGreaterThan        FilterOperator = "gt"
	OpGreaterThanOrEqual FilterOperator = "gte"
	OpLessThan           FilterOperator = "lt"
	OpLessThanOrEqual    FilterOperator = "lte"
	OpIn                 FilterOperator = "in"
	OpContains           FilterOperator = "contains"
)

// Filter represents a query filter condition
type Filter struct {
	Field    string
	Operator FilterOperator
	Value    document.Value
}

// SortOrder defines the sorting direction
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// SortClause defines one ordering clause
type SortClause struct {
	Field string
	Order SortOrder
}

// QuerySpec represents store-agnostic query parameters. Filters and
// sort clauses apply in the order given; no reordering or optimization
// is performed.
type QuerySpec struct {
	Filters []Filter
	Sort    []SortClause
	Limit   int
}

// Matches evaluates a single filter against a document
func (f Filter) Matches(doc *document.Document) bool {
	v := doc.Field(f.Field)
	switch f.Operator {
	case OpEqual:
		return v.Equal(f.Value)
	case OpNotEqual:
		return !v.Equal(f.Value)
	case OpGreaterThan:
		return document.Compare(v, f.Value) > 0
	case OpGreaterThanOrEqual:
		return document.Compare(v, f.Value) >= 0
	case OpLessThan:
		return document.Compare(v, f.Value) < 0
	case OpLessThanOrEqual:
		return document.Compare(v, f.Value) <= 0
	case OpIn:
		return f.Value.Contains(v)
	case OpContains:
		return v.Contains(f.Value)
	default:
		return false
	}
}

// Matches reports whether a document passes every filter of the spec.
// Sort and limit are not considered.
func (q QuerySpec) Matches(doc *document.Document) bool {
	for _, f := range q.Filters {
		if !f.Matches(doc) {
			return false
		}
	}
	return true
}

// SortDocuments orders documents in place by the given clauses, applied
// in order, using a stable sort. Missing fields order before present
// ones.
func SortDocuments(docs []*document.Document, clauses []SortClause) {
	if len(clauses) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, c := range clauses {
			cmp := document.Compare(docs[i].Field(c.Field), docs[j].Field(c.Field))
			if cmp == 0 {
				continue
			}
			if c.Order == SortDescending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// ApplyLimit truncates docs to the given limit; zero or negative means
// unlimited.
func ApplyLimit(docs []*document.Document, limit int) []*document.Document {
	if limit > 0 && len(docs) > limit {
		return docs[:limit]
	}
	return docs
}
