package delta

import (
	"cmp"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind is the tag of a Value.
type ValueKind int

const (
	// NoneKind marks an absent value.
	NoneKind ValueKind = iota
	// IntKind marks an integer value.
	IntKind
	// TextKind marks a text value.
	TextKind
)

func (k ValueKind) String() string {
	switch k {
	case NoneKind:
		return "None"
	case IntKind:
		return "Int"
	case TextKind:
		return "Text"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// ParseValueKind parses the wire name of a value kind.
func ParseValueKind(s string) (ValueKind, error) {
	switch s {
	case "None":
		return NoneKind, nil
	case "Int":
		return IntKind, nil
	case "Text":
		return TextKind, nil
	default:
		return NoneKind, fmt.Errorf("unknown value kind %q", s)
	}
}

// Value is a tagged scalar: absent, integer or text. Values are comparable, so they can be used
// directly as map keys.
type Value struct {
	kind ValueKind
	i    int64
	s    string
}

// None returns the absent value.
func None() Value { return Value{} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: IntKind, i: i} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: TextKind, s: s} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNone() bool    { return v.kind == NoneKind }

// AsInt returns the integer payload and whether the value is an Int.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == IntKind }


// Compare orders values: None < Int < Text, then by payload.
func Compare(a, b Value) int {
	if c := cmp.Compare(a.kind, b.kind); c != 0 {
		return c
	}
	switch a.kind {
	case IntKind:
		return cmp.Compare(a.i, b.i)
	case TextKind:
		return cmp.Compare(a.s, b.s)
	default:
		return 0
	}
}

// String renders the value the way the tables print it: None is rendered as "*".
func (v Value) String() string {
	switch v.kind {
	case IntKind:
		return strconv.FormatInt(v.i, 10)
	case TextKind:
		return v.s
	default:
		return "*"
	}
}

type wireValue struct {
	T string          `json:"t"`
	C json.RawMessage `json:"c,omitempty"`
}

// MarshalJSON encodes the value as {"t":<kind>,"c":<payload>}.
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{T: v.kind.String()}
	switch v.kind {
	case IntKind:
		w.C = json.RawMessage(strconv.FormatInt(v.i, 10))
	case TextKind:
		b, err := json.Marshal(v.s)
		if err != nil {
			return nil, err
		}
		w.C = b
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the tagged form written by MarshalJSON.
func (v *Value) UnmarshalJSON(b []byte) error {
	var w wireValue
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("invalid value %s: %w", string(b), err)
	}

	kind, err := ParseValueKind(w.T)
	if err != nil {
		return err
	}

	switch kind {
	case IntKind:
		var i int64
		if err := json.Unmarshal(w.C, &i); err != nil {
			return fmt.Errorf("invalid Int payload %s: %w", string(w.C), err)
		}
		*v = Int(i)
	case TextKind:
		var s string
		if err := json.Unmarshal(w.C, &s); err != nil {
			return fmt.Errorf("invalid Text payload %s: %w", string(w.C), err)
		}
		*v = Text(s)
	default:
		*v = None()
	}

	return nil
}
