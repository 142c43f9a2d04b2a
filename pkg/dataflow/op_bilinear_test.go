package dataflow

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dflow/pkg/delta"
)

var _ = Describe("InnerJoinOp", func() {
	var op *InnerJoinOp

	BeforeEach(func() {
		op = NewInnerJoin(0, 1, 0, 0)
	})

	It("should emit an empty batch when there is no match", func() {
		out, err := op.ApplySide(Left, []delta.Change{ins(row(5, "L"))})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]delta.Change{ins()}))

		out, err = op.ApplySide(Right, []delta.Change{ins(row(5, "R"))})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]delta.Change{ins(row("L", 5, "R"))}))
	})

	It("should keep the merge order fixed regardless of the side", func() {
		op = NewInnerJoin(0, 1, 1, 0)
		_, err := op.ApplySide(Right, []delta.Change{ins(row(5, "R1"), row(5, "R2"))})
		Expect(err).NotTo(HaveOccurred())

		out, err := op.ApplySide(Left, []delta.Change{ins(row("a", 5, "b"))})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]delta.Change{ins(row("a", "b", 5, "R1"), row("a", "b", 5, "R2"))}))
	})

	It("should remove one occurrence on deletion", func() {
		_, err := op.ApplySide(Left, []delta.Change{ins(row(1, "x"), row(1, "x"))})
		Expect(err).NotTo(HaveOccurred())
		_, err = op.ApplySide(Right, []delta.Change{ins(row(1, "y"))})
		Expect(err).NotTo(HaveOccurred())

		out, err := op.ApplySide(Left, []delta.Change{del(row(1, "x"))})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]delta.Change{del(row("x", 1, "y"))}))
		Expect(op.Index(Left, delta.Int(1))).To(Equal([]delta.Row{row(1, "x")}))
	})

	It("should ignore deletions of missing rows", func() {
		_, err := op.ApplySide(Right, []delta.Change{ins(row(1, "y"))})
		Expect(err).NotTo(HaveOccurred())

		out, err := op.ApplySide(Left, []delta.Change{del(row(1, "x"))})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]delta.Change{del()}))
		Expect(op.Index(Left, delta.Int(1))).To(BeEmpty())
	})

	It("should drop empty index buckets", func() {
		_, err := op.ApplySide(Left, []delta.Change{ins(row(1, "x")), del(row(1, "x"))})
		Expect(err).NotTo(HaveOccurred())
		Expect(op.index[Left]).To(BeEmpty())
	})

	It("should reject rows without the join column", func() {
		op = NewInnerJoin(0, 1, 0, 2)
		_, err := op.ApplySide(Right, []delta.Change{ins(row(1, 2))})
		Expect(err).To(HaveOccurred())
	})

	It("should maintain the cross product under random interleavings", func() {
		rnd := rand.New(rand.NewSource(7))
		live := [2][]delta.Row{}
		view := delta.NewZSet()

		for step := 0; step < 1500; step++ {
			side := Side(rnd.Intn(2))
			var ch delta.Change
			switch {
			case rnd.Intn(10) == 0:
				// deleting a row that was never inserted is a no-op
				ch = del(row(rnd.Intn(3), "ghost", 0))
			case rnd.Intn(3) > 0 || len(live[side]) == 0:
				r := row(rnd.Intn(3), side.String(), rnd.Intn(3))
				live[side] = append(live[side], r)
				ch = ins(r)
			default:
				i := rnd.Intn(len(live[side]))
				ch = del(live[side][i])
				live[side] = append(live[side][:i:i], live[side][i+1:]...)
			}

			out, err := op.ApplySide(side, []delta.Change{ch})
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))
			view.Apply(out...)

			expected := delta.NewZSet()
			for _, l := range live[Left] {
				for _, r := range live[Right] {
					if l[0] == r[0] {
						expected.Apply(ins(append(l[1:].Clone(), r...)))
					}
				}
			}
			Expect(view.Equal(expected)).To(BeTrue(), "%s != %s", view, expected)
		}
	})
})
