package batch

import "strings"

// Index maps primary key -> secondary key -> value for one provider
// response. It is built per descriptor call and never shared.
type Index struct {
	values map[string]map[string]float64
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{values: make(map[string]map[string]float64)}
}

// Touch records that the provider returned data for primary, even if none
// of it is usable.
func (x *Index) Touch(primary string) {
	k := strings.ToLower(primary)
	if _, ok := x.values[k]; !ok {
		x.values[k] = make(map[string]float64)
	}
}

// Set stores v under (primary, secondary). An empty secondary marks a scalar
// entry that answers every secondary key.
func (x *Index) Set(primary, secondary string, v float64) {
	x.Touch(primary)
	x.values[strings.ToLower(primary)][strings.ToLower(secondary)] = v
}

// Lookup returns the value under (primary, secondary). hasPrimary reports
// whether the provider returned anything for primary at all.
func (x *Index) Lookup(primary, secondary string) (v float64, hasPrimary, found bool) {
	if x == nil {
		return 0, false, false
	}
	inner, ok := x.values[strings.ToLower(primary)]
	if !ok {
		return 0, false, false
	}
	if v, ok := inner[strings.ToLower(secondary)]; ok {
		return v, true, true
	}
	if v, ok := inner[""]; ok {
		return v, true, true
	}
	return 0, true, false
}

// Len reports the number of primary keys.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.values)
}
