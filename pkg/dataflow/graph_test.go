package dataflow

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dflow/pkg/api/graph/v1alpha1"
	"github.com/l7mp/dflow/pkg/delta"
)

// AuthorStory(author, story) ⋈ γ[story](StoryVoter(story, voter)) -> votes(author, story, count)
const voteGraph = `
operators:
  - kind: Root
    root:
      id: AuthorStory
      keyIndex: 1
      schema: [{name: AuthorUserID, type: Int}, {name: StoryID, type: Int}]
  - kind: Root
    root:
      id: StoryVoter
      keyIndex: 1
      schema: [{name: StoryID, type: Int}, {name: VoterUserID, type: Int}]
  - kind: Aggregation
    aggregation: {groupBy: [0]}
  - kind: InnerJoin
    innerJoin: {parents: [0, 2], joinColumns: [1, 0]}
  - kind: Leaf
    leaf:
      name: votes
      keyIndex: 1
      columnNames: [AuthorUserID, StoryID, StoryVoteCount]
  - kind: Selection
    selection: {column: 0, value: {t: Int, c: 10}}
  - kind: Leaf
    leaf: {name: authorTen, keyIndex: 1}
edges:
  - {parent: 0, child: 3}
  - {parent: 1, child: 2}
  - {parent: 2, child: 3}
  - {parent: 3, child: 4}
  - {parent: 0, child: 5}
  - {parent: 5, child: 6}
paths:
  - {path: /votes, view: votes, permission: ReadWrite}
`

func build(yaml string) (*Graph, error) {
	spec, err := v1alpha1.Parse([]byte(yaml))
	if err != nil {
		return nil, err
	}
	return Build(spec, Options{Logger: GinkgoLogr})
}

var _ = Describe("Graph", func() {
	var g *Graph

	BeforeEach(func() {
		var err error
		g, err = build(voteGraph)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should report its structure", func() {
		Expect(g.NodeCount()).To(Equal(7))
		Expect(g.EdgeCount()).To(Equal(6))
		Expect(g.Roots()).To(Equal([]string{"AuthorStory", "StoryVoter"}))
		Expect(g.Leaves()).To(Equal([]string{"authorTen", "votes"}))

		roots, err := g.RootsOf("votes")
		Expect(err).NotTo(HaveOccurred())
		Expect(roots).To(Equal([]string{"AuthorStory", "StoryVoter"}))
		roots, err = g.RootsOf("authorTen")
		Expect(err).NotTo(HaveOccurred())
		Expect(roots).To(Equal([]string{"AuthorStory"}))

		w, ok := g.Width(4)
		Expect(ok).To(BeTrue())
		Expect(w).To(Equal(3))
	})

	It("should maintain the vote counts incrementally", func() {
		sink := NewChannelSink(16)
		Expect(g.Attach("votes", sink)).To(Succeed())
		Eventually(sink.ResultChan()).Should(Receive(Equal(delta.NewEnvelope("votes", ins()))))

		Expect(g.Submit("AuthorStory", ins(row(10, 100)))).To(Succeed())
		Eventually(sink.ResultChan()).Should(Receive(Equal(delta.NewEnvelope("votes", ins()))))

		Expect(g.Submit("StoryVoter", ins(row(100, 1)))).To(Succeed())
		Eventually(sink.ResultChan()).Should(Receive(Equal(
			delta.NewEnvelope("votes", ins(row(10, 100, 1))))))

		Expect(g.Submit("StoryVoter", ins(row(100, 2)))).To(Succeed())
		Eventually(sink.ResultChan()).Should(Receive(Equal(
			delta.NewEnvelope("votes", del(row(10, 100, 1)), ins(row(10, 100, 2))))))

		snap, err := g.Snapshot("votes")
		Expect(err).NotTo(HaveOccurred())
		Expect(snap).To(Equal(ins(row(10, 100, 2))))

		r, ok, err := g.Read("votes", delta.Int(100))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(r).To(Equal(row(10, 100, 2)))

		Expect(g.LeafCounts()).To(Equal(map[string]int{"votes": 1, "authorTen": 1}))
		Expect(g.String()).To(ContainSubstring("view votes (AuthorUserID, StoryID, StoryVoteCount):\n  [10, 100, 2]\n"))

		Expect(g.Submit("StoryVoter", del(row(100, 1)))).To(Succeed())
		Expect(g.Submit("StoryVoter", del(row(100, 2)))).To(Succeed())
		snap, err = g.Snapshot("votes")
		Expect(err).NotTo(HaveOccurred())
		Expect(snap).To(Equal(ins()))
	})

	It("should deliver every delta exactly once after the snapshot", func() {
		Expect(g.Submit("AuthorStory", ins(row(10, 100), row(10, 200)))).To(Succeed())

		sink := NewChannelSink(16)
		Expect(g.Attach("authorTen", sink)).To(Succeed())
		Expect(g.Submit("AuthorStory", ins(row(10, 300), row(11, 400)))).To(Succeed())
		Expect(g.Detach("authorTen", sink)).To(Succeed())
		Expect(g.Submit("AuthorStory", ins(row(10, 500)))).To(Succeed())

		Eventually(sink.ResultChan()).Should(Receive(Equal(
			delta.NewEnvelope("authorTen", ins(row(10, 100), row(10, 200))))))
		Eventually(sink.ResultChan()).Should(Receive(Equal(
			delta.NewEnvelope("authorTen", ins(row(10, 300))))))
		Consistently(sink.ResultChan()).ShouldNot(Receive())
	})

	It("should report unknown roots and leaves", func() {
		err := g.Submit("Nope", ins(row(1, 2)))
		Expect(errors.Is(err, ErrUnknownRoot)).To(BeTrue())
		Expect(errors.Is(g.Attach("nope", NewChannelSink(1)), ErrUnknownLeaf)).To(BeTrue())
		_, err = g.Snapshot("nope")
		Expect(errors.Is(err, ErrUnknownLeaf)).To(BeTrue())
		_, err = g.RootsOf("nope")
		Expect(errors.Is(err, ErrUnknownLeaf)).To(BeTrue())
	})

	It("should reject rows that do not match the root schema", func() {
		err := g.Submit("AuthorStory", ins(row(10, "100")))
		Expect(errors.Is(err, ErrRowShapeMismatch)).To(BeTrue())
		Expect(g.LeafCounts()).To(Equal(map[string]int{"votes": 0, "authorTen": 0}))

		Expect(g.Submit("AuthorStory", ins(row(10, 100)))).To(Succeed())
		Expect(g.LeafCounts()).To(Equal(map[string]int{"votes": 0, "authorTen": 1}))
	})
})

var _ = Describe("Graph without schemas", func() {
	It("should abort only the failing propagation on a row shape mismatch", func() {
		g, err := build(`
operators:
  - {kind: Root, root: {id: r, keyIndex: 0}}
  - {kind: Selection, selection: {column: 2, value: {t: Text, c: x}}}
  - {kind: Leaf, leaf: {name: v, keyIndex: 0}}
edges: [{parent: 0, child: 1}, {parent: 1, child: 2}]`)
		Expect(err).NotTo(HaveOccurred())

		err = g.Submit("r", ins(row(1, 2)))
		Expect(errors.Is(err, ErrRowShapeMismatch)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("node 1"))

		Expect(g.Submit("r", ins(row(1, 2, "x")))).To(Succeed())
		Expect(g.LeafCounts()).To(Equal(map[string]int{"v": 1}))
	})

	It("should reject rows that do not match the view schema", func() {
		g, err := build(`
operators:
  - {kind: Root, root: {id: r, keyIndex: 0}}
  - {kind: Leaf, leaf: {name: v, keyIndex: 0, schema: [{name: a, type: Int}, {name: b, type: Int}]}}
edges: [{parent: 0, child: 1}]`)
		Expect(err).NotTo(HaveOccurred())

		err = g.Submit("r", ins(row(1, "not-an-int")))
		Expect(errors.Is(err, ErrRowShapeMismatch)).To(BeTrue())
		snap, err := g.Snapshot("v")
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.Batch).To(BeEmpty())
	})

	It("should fan out to every child in edge order", func() {
		g := New(Options{})
		r, err := g.AddNode(NewRoot("r", 0, nil))
		Expect(err).NotTo(HaveOccurred())
		l1, err := g.AddNode(NewLeaf("first", 0, nil, nil))
		Expect(err).NotTo(HaveOccurred())
		l2, err := g.AddNode(NewLeaf("second", 0, nil, nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(g.AddEdge(r, l2)).To(Succeed())
		Expect(g.AddEdge(r, l1)).To(Succeed())
		Expect(g.Validate()).To(Succeed())

		order := &orderSink{}
		Expect(g.Attach("first", order)).To(Succeed())
		Expect(g.Attach("second", order)).To(Succeed())
		Expect(g.Submit("r", ins(row(1)))).To(Succeed())
		Expect(order.views).To(Equal([]string{"first", "second", "second", "first"}))
	})
})

type orderSink struct{ views []string }

func (s *orderSink) Send(env delta.Envelope) error {
	s.views = append(s.views, env.RootID)
	return nil
}

var _ = DescribeTable("Build should reject malformed specs",
	func(yaml string) {
		spec, err := v1alpha1.Parse([]byte(yaml))
		if err != nil {
			// caught by field validation already
			return
		}
		_, err = Build(spec, Options{})
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, ErrMalformedSpec)).To(BeTrue())
	},
	Entry("duplicate root", `
operators:
  - {kind: Root, root: {id: r, keyIndex: 0}}
  - {kind: Root, root: {id: r, keyIndex: 0}}`),
	Entry("duplicate leaf", `
operators:
  - {kind: Root, root: {id: r, keyIndex: 0}}
  - {kind: Leaf, leaf: {name: v, keyIndex: 0}}
  - {kind: Leaf, leaf: {name: v, keyIndex: 0}}
edges: [{parent: 0, child: 1}, {parent: 0, child: 2}]`),
	Entry("dangling edge", `
operators:
  - {kind: Root, root: {id: r, keyIndex: 0}}
edges: [{parent: 0, child: 3}]`),
	Entry("cycle", `
operators:
  - {kind: Root, root: {id: r, keyIndex: 0}}
  - {kind: Projection, projection: {columns: [0]}}
  - {kind: Projection, projection: {columns: [0]}}
edges: [{parent: 0, child: 1}, {parent: 1, child: 2}, {parent: 2, child: 1}]`),
	Entry("edge into a root", `
operators:
  - {kind: Root, root: {id: r, keyIndex: 0}}
  - {kind: Root, root: {id: s, keyIndex: 0}}
edges: [{parent: 0, child: 1}]`),
	Entry("edge out of a leaf", `
operators:
  - {kind: Root, root: {id: r, keyIndex: 0}}
  - {kind: Leaf, leaf: {name: v, keyIndex: 0}}
  - {kind: Projection, projection: {columns: [0]}}
edges: [{parent: 0, child: 1}, {parent: 1, child: 2}]`),
	Entry("orphan node", `
operators:
  - {kind: Root, root: {id: r, keyIndex: 0}}
  - {kind: Leaf, leaf: {name: v, keyIndex: 0}}`),
	Entry("join fed by a non-parent", `
operators:
  - {kind: Root, root: {id: r, keyIndex: 0}}
  - {kind: Root, root: {id: s, keyIndex: 0}}
  - {kind: Root, root: {id: t, keyIndex: 0}}
  - {kind: InnerJoin, innerJoin: {parents: [0, 1], joinColumns: [0, 0]}}
edges: [{parent: 0, child: 3}, {parent: 2, child: 3}]`),
	Entry("join missing a parent edge", `
operators:
  - {kind: Root, root: {id: r, keyIndex: 0}}
  - {kind: Root, root: {id: s, keyIndex: 0}}
  - {kind: InnerJoin, innerJoin: {parents: [0, 1], joinColumns: [0, 0]}}
edges: [{parent: 0, child: 2}]`),
	Entry("join with identical parents", `
operators:
  - {kind: Root, root: {id: r, keyIndex: 0}}
  - {kind: InnerJoin, innerJoin: {parents: [0, 0], joinColumns: [0, 0]}}
edges: [{parent: 0, child: 1}]`),
	Entry("column out of the inferred width", `
operators:
  - {kind: Root, root: {id: r, keyIndex: 0, schema: [{type: Int}, {type: Text}]}}
  - {kind: Selection, selection: {column: 2, value: {t: Int, c: 1}}}
edges: [{parent: 0, child: 1}]`),
	Entry("view schema of the wrong width", `
operators:
  - {kind: Root, root: {id: r, keyIndex: 0, schema: [{type: Int}, {type: Text}]}}
  - {kind: Leaf, leaf: {name: v, keyIndex: 0, schema: [{type: Int}]}}
edges: [{parent: 0, child: 1}]`),
	Entry("path to an unknown view", `
operators:
  - {kind: Root, root: {id: r, keyIndex: 0}}
  - {kind: Leaf, leaf: {name: v, keyIndex: 0}}
edges: [{parent: 0, child: 1}]
paths: [{path: /x, view: w, permission: Read}]`),
)
