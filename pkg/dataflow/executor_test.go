package dataflow

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/dflow/pkg/delta"
)

var _ = Describe("Executor", func() {
	var (
		g      *Graph
		e      *Executor
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		var err error
		g, err = build(`
operators:
  - {kind: Root, root: {id: r, keyIndex: 0}}
  - {kind: Aggregation, aggregation: {groupBy: []}}
  - {kind: Leaf, leaf: {name: count, keyIndex: 0}}
  - {kind: Leaf, leaf: {name: rows, keyIndex: 0}}
edges: [{parent: 0, child: 1}, {parent: 1, child: 2}, {parent: 0, child: 3}]`)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel = context.WithCancel(context.Background())
		e = NewExecutor(g, GinkgoLogr)
		go func() {
			defer GinkgoRecover()
			Expect(e.Start(ctx)).To(Succeed())
		}()
	})

	AfterEach(func() {
		cancel()
	})

	It("should serialize concurrent submissions", func() {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()
				Expect(e.Submit(ctx, "r", ins(row(i)))).To(Succeed())
			}(i)
		}
		wg.Wait()

		snap, err := e.Snapshot(ctx, "count")
		Expect(err).NotTo(HaveOccurred())
		Expect(snap).To(Equal(ins(row(50))))
		Expect(g.LeafCounts()["rows"]).To(Equal(50))
	})

	It("should deliver in submission order", func() {
		sink := NewChannelSink(16)
		Expect(e.Attach(ctx, "rows", sink)).To(Succeed())
		for i := 0; i < 5; i++ {
			Expect(e.Submit(ctx, "r", ins(row(i)))).To(Succeed())
		}
		Expect(e.Detach(ctx, "rows", sink)).To(Succeed())

		Eventually(sink.ResultChan()).Should(Receive(Equal(delta.NewEnvelope("rows", ins()))))
		for i := 0; i < 5; i++ {
			Eventually(sink.ResultChan()).Should(Receive(Equal(delta.NewEnvelope("rows", ins(row(i))))))
		}
	})

	It("should pass errors to the caller", func() {
		err := e.Submit(ctx, "nope", ins(row(1)))
		Expect(errors.Is(err, ErrUnknownRoot)).To(BeTrue())
		Expect(e.Submit(ctx, "r", ins(row(1)))).To(Succeed())
	})

	It("should refuse requests once stopped", func() {
		cancel()
		Eventually(func() error {
			return e.Submit(context.Background(), "r", ins(row(1)))
		}).Should(MatchError(ErrExecutorStopped))
	})

	It("should refuse to start twice", func() {
		Expect(e.Submit(ctx, "r", ins(row(1)))).To(Succeed())
		Expect(e.Start(ctx)).To(MatchError(ErrExecutorStarted))

		cancel()
		Eventually(func() error {
			return e.Submit(context.Background(), "r", ins(row(2)))
		}).Should(MatchError(ErrExecutorStopped))
		Expect(e.Start(context.Background())).To(MatchError(ErrExecutorStarted))
	})
})
