package features

import "time"

// Table is a column-oriented batch of feature values. Columns keep the order
// in which they were first added so downstream consumers see a stable layout.
type Table struct {
	n int

	numeric     map[string][]float64
	categorical map[string][]string
	times       map[string][]time.Time

	numericOrder     []string
	categoricalOrder []string
}

// NewTable creates an empty table holding n rows.
func NewTable(n int) *Table {
	return &Table{
		n:           n,
		numeric:     make(map[string][]float64),
		categorical: make(map[string][]string),
		times:       make(map[string][]time.Time),
	}
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.n }

// SetNumeric stores a numeric column, replacing any existing values.
func (t *Table) SetNumeric(name string, vals []float64) {
	if _, ok := t.numeric[name]; !ok {
		t.numericOrder = append(t.numericOrder, name)
	}
	t.numeric[name] = vals
}

// SetCategorical stores a categorical column, replacing any existing values.
func (t *Table) SetCategorical(name string, vals []string) {
	if _, ok := t.categorical[name]; !ok {
		t.categoricalOrder = append(t.categoricalOrder, name)
	}
	t.categorical[name] = vals
}

// SetTime stores a time column, replacing any existing values.
func (t *Table) SetTime(name string, vals []time.Time) {
	t.times[name] = vals
}

// Numeric returns a numeric column by name.
func (t *Table) Numeric(name string) ([]float64, bool) {
	vals, ok := t.numeric[name]
	return vals, ok
}

// Categorical returns a categorical column by name.
func (t *Table) Categorical(name string) ([]string, bool) {
	vals, ok := t.categorical[name]
	return vals, ok
}

// Time returns a time column by name.
func (t *Table) Time(name string) ([]time.Time, bool) {
	vals, ok := t.times[name]
	return vals, ok
}

// Has reports whether the table holds a column of any kind with that name.
func (t *Table) Has(name string) bool {
	if _, ok := t.numeric[name]; ok {
		return true
	}
	if _, ok := t.categorical[name]; ok {
		return true
	}
	_, ok := t.times[name]
	return ok
}

// NumericColumns returns the numeric column names in insertion order.
func (t *Table) NumericColumns() []string {
	out := make([]string, len(t.numericOrder))
	copy(out, t.numericOrder)
	return out
}

// CategoricalColumns returns the categorical column names in insertion order.
func (t *Table) CategoricalColumns() []string {
	out := make([]string, len(t.categoricalOrder))
	copy(out, t.categoricalOrder)
	return out
}
