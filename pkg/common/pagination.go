package common

// Page carries cursor pagination metadata for engine query results.
// HasMore is a heuristic: true iff the result set filled the requested
// limit. It is exact only when the store guarantees no ties at the
// boundary, so it is an approximation, not exact pagination.
type Page struct {
	HasMore bool   `json:"has_more"`
	LastID  string `json:"last_id,omitempty"`
}

// NewPage builds pagination metadata from a result set
func NewPage(count, limit int, lastID string) Page {
	return Page{
		HasMore: limit > 0 && count == limit,
		LastID:  lastID,
	}
}

// GraphPage carries pagination metadata for graph traversals. HasMore
// reports whether the node cap was hit before the frontier drained.
type GraphPage struct {
	HasMore        bool `json:"has_more"`
	NodesProcessed int  `json:"nodes_processed"`
}
