package dataflow

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dflow/pkg/delta"
)

var _ = Describe("AggregationOp", func() {
	var op *AggregationOp

	BeforeEach(func() {
		op = NewAggregation([]int{0})
	})

	It("should retract and reinsert on a repeated group", func() {
		out, err := op.Apply([]delta.Change{ins(row(1, 10), row(1, 20))})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]delta.Change{
			ins(row(1, 1)),
			del(row(1, 1)),
			ins(row(1, 2)),
		}))
	})

	It("should emit a lone deletion when the last row of a group goes", func() {
		_, err := op.Apply([]delta.Change{ins(row(1, 10), row(1, 20))})
		Expect(err).NotTo(HaveOccurred())

		out, err := op.Apply([]delta.Change{del(row(1, 10))})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]delta.Change{del(row(1, 2)), ins(row(1, 1))}))

		out, err = op.Apply([]delta.Change{del(row(1, 20))})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]delta.Change{del(row(1, 1))}))
		Expect(op.Groups()).To(BeEmpty())

		// the group starts afresh
		out, err = op.Apply([]delta.Change{ins(row(1, 30))})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]delta.Change{ins(row(1, 1))}))
	})

	It("should ignore deletions of unknown groups", func() {
		out, err := op.Apply([]delta.Change{del(row(7, 1))})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeEmpty())
		Expect(op.Count(delta.Int(7))).To(BeZero())
	})

	It("should count all rows in one group with an empty group-by", func() {
		op = NewAggregation(nil)
		out, err := op.Apply([]delta.Change{ins(row(1), row(2, "x"))})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]delta.Change{ins(row(1)), del(row(1)), ins(row(2))}))
		Expect(op.Count()).To(Equal(int64(2)))
	})

	It("should not mutate rows it has emitted", func() {
		out, err := op.Apply([]delta.Change{ins(row(1, 10))})
		Expect(err).NotTo(HaveOccurred())
		first := out[0].Batch[0]
		_, err = op.Apply([]delta.Change{ins(row(1, 20))})
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(Equal(row(1, 1)))
	})

	It("should keep the counts equal to the live rows", func() {
		rnd := rand.New(rand.NewSource(42))
		live := map[int][]delta.Row{}
		view := delta.NewZSet()

		for step := 0; step < 2000; step++ {
			g := rnd.Intn(4)
			var ch delta.Change
			if rnd.Intn(3) > 0 || len(live[g]) == 0 {
				r := row(g, rnd.Intn(5))
				live[g] = append(live[g], r)
				ch = ins(r)
			} else {
				i := rnd.Intn(len(live[g]))
				r := live[g][i]
				live[g] = append(live[g][:i], live[g][i+1:]...)
				ch = del(r)
			}

			out, err := op.Apply([]delta.Change{ch})
			Expect(err).NotTo(HaveOccurred())
			view.Apply(out...)

			expected := delta.NewZSet()
			for g, rows := range live {
				Expect(op.Count(delta.Int(int64(g)))).To(Equal(int64(len(rows))))
				if len(rows) > 0 {
					expected.AddRow(row(g, len(rows)), 1)
				}
			}
			Expect(view.Equal(expected)).To(BeTrue(), "%s != %s", view, expected)
		}
	})
})
