package delta

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ChangeKind says whether a Change inserts or deletes its rows.
type ChangeKind int

const (
	Insertion ChangeKind = iota
	Deletion
)

func (k ChangeKind) String() string {
	switch k {
	case Insertion:
		return "Insertion"
	case Deletion:
		return "Deletion"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// MarshalJSON encodes the kind by name.
func (k ChangeKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind name.
func (k *ChangeKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "Insertion":
		*k = Insertion
	case "Deletion":
		*k = Deletion
	default:
		return fmt.Errorf("unknown change kind %q", s)
	}
	return nil
}

// Change is a typed multiset delta: a batch of rows that are all inserted or all deleted.
// Duplicate rows are meaningful.
type Change struct {
	Kind  ChangeKind `json:"typing"`
	Batch []Row      `json:"batch"`
}

// NewInsertion returns an Insertion change for the given rows.
func NewInsertion(rows ...Row) Change {
	return Change{Kind: Insertion, Batch: nonNil(rows)}
}

// NewDeletion returns a Deletion change for the given rows.
func NewDeletion(rows ...Row) Change {
	return Change{Kind: Deletion, Batch: nonNil(rows)}
}

// IsEmpty is true if the batch holds no rows.
func (c Change) IsEmpty() bool { return len(c.Batch) == 0 }

// DeepCopy returns a copy whose rows share no memory with c.
func (c Change) DeepCopy() Change {
	batch := make([]Row, len(c.Batch))
	for i, r := range c.Batch {
		batch[i] = r.Clone()
	}
	return Change{Kind: c.Kind, Batch: batch}
}

// String returns a human readable representation.
func (c Change) String() string {
	rows := make([]string, len(c.Batch))
	for i, r := range c.Batch {
		rows[i] = r.String()
	}
	return fmt.Sprintf("%s{%s}", c.Kind, strings.Join(rows, ", "))
}

// MarshalJSON makes sure an empty batch is encoded as [] rather than null.
func (c Change) MarshalJSON() ([]byte, error) {
	type plain Change
	p := plain(c)
	p.Batch = nonNil(p.Batch)
	return json.Marshal(p)
}

// DeepCopyChanges copies a sequence of changes.
func DeepCopyChanges(changes []Change) []Change {
	ret := make([]Change, len(changes))
	for i, c := range changes {
		ret[i] = c.DeepCopy()
	}
	return ret
}

func nonNil(rows []Row) []Row {
	if rows == nil {
		return []Row{}
	}
	return rows
}

// Envelope associates a sequence of changes with the root or view they concern. Inbound
// envelopes name a root, outbound envelopes name the view (leaf) that produced them.
type Envelope struct {
	RootID  string   `json:"root_id"`
	Changes []Change `json:"changes"`
}

// NewEnvelope creates an envelope.
func NewEnvelope(id string, changes ...Change) Envelope {
	if changes == nil {
		changes = []Change{}
	}
	return Envelope{RootID: id, Changes: changes}
}

// DeepCopy returns a copy of the envelope.
func (e Envelope) DeepCopy() Envelope {
	return Envelope{RootID: e.RootID, Changes: DeepCopyChanges(e.Changes)}
}
