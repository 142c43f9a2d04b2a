package delta

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Row is a fixed-width tuple of values. The width is implied by the edge it travels on, rows do
// not describe themselves. Rows are treated as immutable once they have been emitted.
type Row []Value

// NewRow creates a row from the given values.
func NewRow(values ...Value) Row { return Row(values) }

// Width returns the number of columns.
func (r Row) Width() int { return len(r) }

// At returns the value at column i, or an error if the row is narrower than i+1.
func (r Row) At(i int) (Value, error) {
	if i < 0 || i >= len(r) {
		return Value{}, fmt.Errorf("column %d out of range for row of width %d", i, len(r))
	}
	return r[i], nil
}

// Equal reports structural equality.
func (r Row) Equal(other Row) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if r[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no backing array with r.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	ret := make(Row, len(r))
	copy(ret, r)
	return ret
}

// Without returns a copy of r with column i removed.
func (r Row) Without(i int) Row {
	ret := make(Row, 0, len(r)-1)
	ret = append(ret, r[:i]...)
	return append(ret, r[i+1:]...)
}

// Select returns a new row built from the given columns, in order.
func (r Row) Select(columns []int) Row {
	ret := make(Row, len(columns))
	for i, c := range columns {
		ret[i] = r[c]
	}
	return ret
}

// Key encodes the values at the given columns into a string usable as a map key. Distinct value
// sequences always produce distinct keys.
func (r Row) Key(columns []int) string {
	var b strings.Builder
	for _, c := range columns {
		writeKey(&b, r[c])
	}
	return b.String()
}

// Key encodes a sequence of values the same way Row.Key does.
func Key(values ...Value) string {
	var b strings.Builder
	for _, v := range values {
		writeKey(&b, v)
	}
	return b.String()
}

func writeKey(b *strings.Builder, v Value) {
	switch v.kind {
	case IntKind:
		b.WriteByte('i')
		b.WriteString(strconv.FormatInt(v.i, 10))
		b.WriteByte(';')
	case TextKind:
		b.WriteByte('t')
		b.WriteString(strconv.Itoa(len(v.s)))
		b.WriteByte(':')
		b.WriteString(v.s)
	default:
		b.WriteByte('n')
	}
}

// String returns a human readable representation.
func (r Row) String() string {
	parts := make([]string, len(r))
	for i, v := range r {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

type wireRow struct {
	Data []Value `json:"data"`
}

// MarshalJSON encodes the row as {"data":[...]}.
func (r Row) MarshalJSON() ([]byte, error) {
	data := []Value(r)
	if data == nil {
		data = []Value{}
	}
	return json.Marshal(wireRow{Data: data})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (r *Row) UnmarshalJSON(b []byte) error {
	var w wireRow
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("invalid row %s: %w", string(b), err)
	}
	*r = Row(w.Data)
	return nil
}
