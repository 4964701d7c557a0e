package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffFields_OnlyChangedFieldRecorded(t *testing.T) {
	before := map[string]Value{"a": Number(1), "b": Number(2)}
	after := map[string]Value{"a": Number(1), "b": Number(3)}

	diffs := DiffFields(before, after)

	require.Len(t, diffs, 1)
	d, ok := diffs["b"]
	require.True(t, ok)
	assert.Equal(t, Number(2), d.From)
	assert.Equal(t, Number(3), d.To)
}

func TestDiffFields_NewFieldHasUndefinedFrom(t *testing.T) {
	diffs := DiffFields(map[string]Value{}, map[string]Value{"x": String("v")})

	require.Len(t, diffs, 1)
	assert.True(t, diffs["x"].From.IsUndefined())
	assert.Equal(t, String("v"), diffs["x"].To)
}

func TestDiffFields_UntouchedFieldsIgnored(t *testing.T) {
	// merge-write semantics: fields absent from the payload stay in the
	// store, so their absence is not a change
	before := map[string]Value{"a": Number(1), "b": Number(2)}
	after := map[string]Value{"b": Number(2)}

	diffs := DiffFields(before, after)

	assert.Empty(t, diffs)
}

func TestAppendHistory_EvictsOldestBeyondLimit(t *testing.T) {
	var history []ChangeRecord
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < HistoryLimit+10; i++ {
		history = AppendHistory(history, ChangeRecord{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Kind:      ChangeUpdate,
		})
	}

	require.Len(t, history, HistoryLimit)
	assert.Equal(t, base.Add(10*time.Second), history[0].Timestamp, "oldest retained record")
	assert.Equal(t, base.Add(time.Duration(HistoryLimit+9)*time.Second), history[len(history)-1].Timestamp)
}

func TestDocument_Clone_IsDeep(t *testing.T) {
	doc := &Document{
		ID:         "d1",
		Collection: "tasks",
		Fields:     map[string]Value{"title": String("original")},
		Version:    3,
	}

	clone := doc.Clone()
	clone.Fields["title"] = String("changed")
	clone.Version = 9

	assert.Equal(t, String("original"), doc.Fields["title"])
	assert.Equal(t, uint64(3), doc.Version)
}
