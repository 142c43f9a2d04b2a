package delta

import (
	"encoding/json"
	"fmt"
)

// ColumnType is the declared type of a column. A None value is accepted in a column of any type.
type ColumnType int

const (
	IntColumn ColumnType = iota
	TextColumn
)

func (t ColumnType) String() string {
	switch t {
	case IntColumn:
		return "Int"
	case TextColumn:
		return "Text"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// MarshalJSON encodes the type by name.
func (t ColumnType) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

// UnmarshalJSON decodes a type name.
func (t *ColumnType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "Int":
		*t = IntColumn
	case "Text":
		*t = TextColumn
	default:
		return fmt.Errorf("unknown column type %q", s)
	}
	return nil
}

// Accepts reports whether v may be stored in a column of this type.
func (t ColumnType) Accepts(v Value) bool {
	switch v.Kind() {
	case NoneKind:
		return true
	case IntKind:
		return t == IntColumn
	case TextKind:
		return t == TextColumn
	}
	return false
}

// Column is a named, typed column.
type Column struct {
	Name string     `json:"name,omitempty"`
	Type ColumnType `json:"type"`
}

// Schema is the list of columns of a relation.
type Schema []Column

// Width returns the number of columns.
func (s Schema) Width() int { return len(s) }

// Check verifies that a row has the width and the column types declared by the schema.
func (s Schema) Check(r Row) error {
	if len(r) != len(s) {
		return fmt.Errorf("row %s has width %d, schema expects %d", r, len(r), len(s))
	}
	for i, c := range s {
		if !c.Type.Accepts(r[i]) {
			return fmt.Errorf("row %s: column %d (%s) expects %s, got %s", r, i, c.Name,
				c.Type, r[i].Kind())
		}
	}
	return nil
}
