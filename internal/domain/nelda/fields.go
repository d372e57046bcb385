package nelda

import (
	"fmt"
	"sort"
)

// Value is the closed set of codings a NELDA variable can take.
type Value string

const (
	Yes           Value = "Yes"
	No            Value = "No"
	Unsure        Value = "Unsure"
	NotApplicable Value = "N/A"
)

// Values lists every allowed coding, in the order prompts present them.
var Values = []Value{Yes, No, Unsure, NotApplicable}

// FieldCount is the number of coded variables per election.
const FieldCount = 58

var expectedFields = func() []string {
	out := make([]string, FieldCount)
	for i := range out {
		out[i] = fmt.Sprintf("NELDA%d", i+1)
	}
	return out
}()

// ExpectedFields returns NELDA1..NELDA58 in canonical order.
func ExpectedFields() []string {
	out := make([]string, len(expectedFields))
	copy(out, expectedFields)
	return out
}

// Valid reports whether v is one of the allowed codings.
func (v Value) Valid() bool {
	switch v {
	case Yes, No, Unsure, NotApplicable:
		return true
	}
	return false
}

// ValueStrings returns Values as plain strings (schema enums).
func ValueStrings() []string {
	out := make([]string, len(Values))
	for i, v := range Values {
		out[i] = string(v)
	}
	return out
}

// Record maps NELDA variables to their coding. It may be partial.
type Record map[string]Value

// RecordFrom builds a Record from decoded generator output, dropping
// entries whose value is outside the enum.
func RecordFrom(m map[string]string) Record {
	r := make(Record, len(m))
	for k, v := range m {
		if val := Value(v); val.Valid() {
			r[k] = val
		}
	}
	return r
}

// Merge copies keys from other that r does not have yet. Existing keys are
// never overwritten. It returns the number of keys added.
func (r Record) Merge(other Record) int {
	added := 0
	for k, v := range other {
		if _, ok := r[k]; ok {
			continue
		}
		r[k] = v
		added++
	}
	return added
}

// Keys returns the record's fields sorted by NELDA number.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return fieldLess(keys[i], keys[j]) })
	return keys
}

// Missing returns the fields of expected that have no entry in actual,
// preserving the order of expected. It never returns nil.
func Missing(expected []string, actual Record) []string {
	out := make([]string, 0, len(expected))
	for _, f := range expected {
		if _, ok := actual[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}

func fieldLess(a, b string) bool {
	var na, nb int
	_, errA := fmt.Sscanf(a, "NELDA%d", &na)
	_, errB := fmt.Sscanf(b, "NELDA%d", &nb)
	if errA != nil || errB != nil {
		return a < b
	}
	return na < nb
}
