package document

import (
	"time"
)

// HistoryLimit caps the number of change records retained per document.
// The oldest records are evicted first.
const HistoryLimit = 50

// ChangeKind represents the kind of change captured by a ChangeRecord
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// FieldDiff captures a single field transition. From is Undefined when
// the field did not exist before the change.
type FieldDiff struct {
	From Value `json:"from"`
	To   Value `json:"to"`
}

// ChangeRecord is one entry in a document's audit trail
type ChangeRecord struct {
	Timestamp  time.Time            `json:"timestamp"`
	ActorID    string               `json:"actor_id"`
	Kind       ChangeKind           `json:"kind"`
	FieldDiffs map[string]FieldDiff `json:"field_diffs,omitempty"`
}

// Document is the engine's view of a stored document: user fields plus
// versioning metadata and a bounded change history.
type Document struct {
	ID         string           `json:"id"`
	Collection string           `json:"collection"`
	Fields     map[string]Value `json:"fields"`
	Version    uint64           `json:"version"`
	CreatedAt  time.Time        `json:"created_at"`
	CreatedBy  string           `json:"created_by"`
	UpdatedAt  time.Time        `json:"updated_at"`
	UpdatedBy  string           `json:"updated_by"`
	History    []ChangeRecord   `json:"history,omitempty"`
}

// Field returns the named field, Undefined when absent
func (d *Document) Field(name string) Value {
	if d == nil || d.Fields == nil {
		return Undefined()
	}
	v, ok := d.Fields[name]
	if !ok {
		return Undefined()
	}
	return v
}

// Key returns the document's global identity as collection/id
func (d *Document) Key() string {
	return d.Collection + "/" + d.ID
}

// Clone returns a deep copy of the document. Store adapters hand out
// clones so callers can never alias stored state.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Fields = make(map[string]Value, len(d.Fields))
	for k, v := range d.Fields {
		cp.Fields[k] = v
	}
	cp.History = make([]ChangeRecord, len(d.History))
	copy(cp.History, d.History)
	return &cp
}

// AppendHistory appends a change record, evicting the oldest entries
// beyond HistoryLimit while preserving insertion order.
func AppendHistory(history []ChangeRecord, rec ChangeRecord) []ChangeRecord {
	history = append(history, rec)
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}
	return history
}
