package document

// DiffFields compares the prior field map against the cleaned new
// payload and returns one FieldDiff per changed field. Only fields
// present in the new payload are considered: merge writes leave other
// stored fields untouched, so their absence is not a change. The new
// payload must already be cleaned of Undefined values.
func DiffFields(before, after map[string]Value) map[string]FieldDiff {
	diffs := make(map[string]FieldDiff)
	for name, newValue := range after {
		oldValue, ok := before[name]
		if !ok {
			oldValue = Undefined()
		}
		if !oldValue.Equal(newValue) {
			diffs[name] = FieldDiff{From: oldValue, To: newValue}
		}
	}
	return diffs
}
