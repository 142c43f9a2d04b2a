package delta

import (
	"sort"
	"strings"
)

// ZSet is a multiset of rows with integer multiplicities, possibly negative. Folding a stream of
// changes into a ZSet yields the net effect of the stream: insertions add one, deletions subtract
// one. Rows whose multiplicity drops to zero are removed.
type ZSet struct {
	rows   map[string]Row // key -> row
	counts map[string]int // key -> multiplicity
}

// ZSetEntry is a row with its multiplicity.
type ZSetEntry struct {
	Row          Row
	Multiplicity int
}

// NewZSet creates an empty ZSet.
func NewZSet() *ZSet {
	return &ZSet{rows: map[string]Row{}, counts: map[string]int{}}
}

// AddRow adds a row with the given multiplicity. The row is copied.
func (z *ZSet) AddRow(r Row, count int) {
	if count == 0 {
		return
	}

	key := Key(r...)
	if _, ok := z.counts[key]; !ok {
		z.rows[key] = r.Clone()
	}
	z.counts[key] += count

	if z.counts[key] == 0 {
		delete(z.counts, key)
		delete(z.rows, key)
	}
}

// Apply folds changes into the ZSet.
func (z *ZSet) Apply(changes ...Change) {
	for _, ch := range changes {
		mul := 1
		if ch.Kind == Deletion {
			mul = -1
		}
		for _, r := range ch.Batch {
			z.AddRow(r, mul)
		}
	}
}

// IsSet returns true if every multiplicity is one.
func (z *ZSet) IsSet() bool {
	for _, c := range z.counts {
		if c != 1 {
			return false
		}
	}
	return true
}

// Entries returns the rows with their multiplicities in lexicographic row order.
func (z *ZSet) Entries() []ZSetEntry {
	ret := make([]ZSetEntry, 0, len(z.counts))
	for key, count := range z.counts {
		ret = append(ret, ZSetEntry{Row: z.rows[key].Clone(), Multiplicity: count})
	}
	sort.Slice(ret, func(i, j int) bool { return CompareRows(ret[i].Row, ret[j].Row) < 0 })
	return ret
}

// Equal returns true if the two ZSets hold the same rows with the same multiplicities.
func (z *ZSet) Equal(other *ZSet) bool {
	if len(z.counts) != len(other.counts) {
		return false
	}
	for key, count := range z.counts {
		if other.counts[key] != count {
			return false
		}
	}
	return true
}

func (z *ZSet) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, e := range z.Entries() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.Row.String())
		if e.Multiplicity != 1 {
			b.WriteString("x")
			b.WriteString(Int(int64(e.Multiplicity)).String())
		}
	}
	b.WriteString("}")
	return b.String()
}

// CompareRows orders rows lexicographically by Compare, shorter rows first on a common prefix.
func CompareRows(a, b Row) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}
