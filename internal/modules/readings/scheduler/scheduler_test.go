package scheduler_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"bsf-dashboard/internal/modules/readings/scheduler"
	"bsf-dashboard/internal/modules/readings/types"
)

type fetchResult struct {
	rows []types.RawReading
	ok   bool
}

type pendingFetch struct {
	ctx   context.Context
	reply chan fetchResult
}

// fakeFetcher parks every FetchAll call until the test resolves it.
type fakeFetcher struct {
	mu    sync.Mutex
	calls []*pendingFetch
}

func (f *fakeFetcher) SourceName() string { return "fake" }

func (f *fakeFetcher) FetchAll(ctx context.Context) ([]types.RawReading, bool) {
	c := &pendingFetch{ctx: ctx, reply: make(chan fetchResult, 1)}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	select {
	case r := <-c.reply:
		return r.rows, r.ok
	case <-ctx.Done():
		return []types.RawReading{}, false
	}
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) resolve(i int, rows []types.RawReading, ok bool) {
	f.mu.Lock()
	c := f.calls[i]
	f.mu.Unlock()
	c.reply <- fetchResult{rows: rows, ok: ok}
}

func rows(timestamps ...int64) []types.RawReading {
	out := make([]types.RawReading, len(timestamps))
	for i, ts := range timestamps {
		out[i] = types.RawReading{
			Temperature: types.NumberValue(20),
			Humidity:    types.NumberValue(50),
			Timestamp:   ts,
			ScanIndex:   i,
		}
	}
	return out
}

func timestampsOf(s types.Snapshot) []int64 {
	out := make([]int64, len(s.Batch.Readings))
	for i, r := range s.Batch.Readings {
		out[i] = r.Timestamp
	}
	return out
}

var _ = Describe("Poller", func() {
	var (
		fetcher *fakeFetcher
		poller  *scheduler.Poller
		ctx     context.Context
		cancel  context.CancelFunc
		fixed   time.Time
	)

	BeforeEach(func() {
		fetcher = &fakeFetcher{}
		fixed = time.Unix(10_000, 0)
		ctx, cancel = context.WithCancel(context.Background())
		poller = scheduler.New("home", fetcher, time.Hour,
			scheduler.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			scheduler.WithLocation(time.UTC),
			scheduler.WithClock(func() time.Time { return fixed }),
		)
	})

	AfterEach(func() {
		poller.Stop()
		cancel()
	})

	Describe("Start", func() {
		It("fetches immediately and reports loading until the first completion", func() {
			Expect(poller.State()).To(Equal(scheduler.Idle))
			poller.Start(ctx)
			Expect(poller.State()).To(Equal(scheduler.Polling))
			Expect(poller.Snapshot().Loading).To(BeTrue())

			Eventually(fetcher.count).Should(Equal(1))
			fetcher.resolve(0, rows(3000, 1000), true)

			Eventually(func() bool { return poller.Snapshot().Loading }).Should(BeFalse())
			snap := poller.Snapshot()
			Expect(timestampsOf(snap)).To(Equal([]int64{1000, 3000}))
			Expect(snap.Batch.Readings[0].DisplayID).To(Equal(1))
			Expect(snap.Batch.FetchedAt).To(Equal(fixed))
			Expect(snap.Batch.PollID).NotTo(BeEmpty())
			Expect(snap.Batch.Failed).To(BeFalse())
		})

		It("is a no-op when already polling", func() {
			poller.Start(ctx)
			poller.Start(ctx)
			Eventually(fetcher.count).Should(Equal(1))
			Consistently(fetcher.count, 50*time.Millisecond).Should(Equal(1))
		})

		It("clears loading with an empty failed batch when the fetch fails", func() {
			poller.Start(ctx)
			Eventually(fetcher.count).Should(Equal(1))
			fetcher.resolve(0, []types.RawReading{}, false)

			Eventually(func() bool { return poller.Snapshot().Loading }).Should(BeFalse())
			snap := poller.Snapshot()
			Expect(snap.Batch.Failed).To(BeTrue())
			Expect(snap.Batch.Readings).To(BeEmpty())
		})
	})

	Describe("periodic fetches", func() {
		It("fetches again on every tick", func() {
			poller = scheduler.New("chart", fetcher, 20*time.Millisecond,
				scheduler.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
			)
			poller.Start(ctx)
			Eventually(fetcher.count, time.Second).Should(BeNumerically(">=", 3))
		})
	})

	Describe("overlapping fetches", func() {
		BeforeEach(func() {
			poller.Start(ctx)
			Eventually(fetcher.count).Should(Equal(1))
			go func() { _, _ = poller.Refresh(context.Background()) }()
			Eventually(fetcher.count).Should(Equal(2))
		})

		It("keeps the newest-started batch when the older fetch completes last", func() {
			fetcher.resolve(1, rows(2000), true)
			Eventually(func() []int64 { return timestampsOf(poller.Snapshot()) }).Should(Equal([]int64{2000}))

			fetcher.resolve(0, rows(1000), true)
			Consistently(func() []int64 { return timestampsOf(poller.Snapshot()) }, 50*time.Millisecond).Should(Equal([]int64{2000}))
			Expect(poller.Snapshot().Batch.Seq).To(Equal(uint64(2)))
		})

		It("applies both in turn when they complete in start order", func() {
			fetcher.resolve(0, rows(1000), true)
			Eventually(func() []int64 { return timestampsOf(poller.Snapshot()) }).Should(Equal([]int64{1000}))

			fetcher.resolve(1, rows(2000), true)
			Eventually(func() []int64 { return timestampsOf(poller.Snapshot()) }).Should(Equal([]int64{2000}))
		})
	})

	Describe("Stop", func() {
		It("cancels in-flight fetches and ignores their completion", func() {
			poller.Start(ctx)
			Eventually(fetcher.count).Should(Equal(1))
			fetcher.resolve(0, rows(1000), true)
			Eventually(func() []int64 { return timestampsOf(poller.Snapshot()) }).Should(Equal([]int64{1000}))

			go func() { _, _ = poller.Refresh(context.Background()) }()
			Eventually(fetcher.count).Should(Equal(2))

			poller.Stop()
			Expect(poller.State()).To(Equal(scheduler.Idle))

			fetcher.mu.Lock()
			inflight := fetcher.calls[1]
			fetcher.mu.Unlock()
			Eventually(inflight.ctx.Done()).Should(BeClosed())

			Consistently(func() []int64 { return timestampsOf(poller.Snapshot()) }, 50*time.Millisecond).Should(Equal([]int64{1000}))
			Expect(poller.Snapshot().Batch.Failed).To(BeFalse())
		})

		It("drops completions from a previous mount after a restart", func() {
			poller.Start(ctx)
			Eventually(fetcher.count).Should(Equal(1))
			poller.Stop()

			poller.Start(ctx)
			Eventually(fetcher.count).Should(Equal(2))
			fetcher.resolve(1, rows(5000), true)
			Eventually(func() []int64 { return timestampsOf(poller.Snapshot()) }).Should(Equal([]int64{5000}))
		})

		It("is safe to call twice", func() {
			poller.Start(ctx)
			poller.Stop()
			poller.Stop()
			Expect(poller.State()).To(Equal(scheduler.Idle))
		})
	})

	Describe("Refresh", func() {
		It("fails when the poller is idle", func() {
			_, err := poller.Refresh(context.Background())
			Expect(err).To(MatchError(scheduler.ErrNotPolling))
		})

		It("returns the snapshot after its own fetch is applied", func() {
			poller.Start(ctx)
			Eventually(fetcher.count).Should(Equal(1))
			fetcher.resolve(0, rows(1000), true)

			done := make(chan types.Snapshot, 1)
			go func() {
				defer GinkgoRecover()
				snap, err := poller.Refresh(context.Background())
				Expect(err).NotTo(HaveOccurred())
				done <- snap
			}()
			Eventually(fetcher.count).Should(Equal(2))
			fetcher.resolve(1, rows(1000, 4000), true)

			var snap types.Snapshot
			Eventually(done).Should(Receive(&snap))
			Expect(timestampsOf(snap)).To(Equal([]int64{1000, 4000}))
		})

		It("gives up waiting when the caller's context ends", func() {
			poller.Start(ctx)
			Eventually(fetcher.count).Should(Equal(1))

			reqCtx, reqCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer reqCancel()
			_, err := poller.Refresh(reqCtx)
			Expect(err).To(MatchError(context.DeadlineExceeded))
		})
	})

	Describe("View", func() {
		It("filters the latest batch without fetching", func() {
			poller.Start(ctx)
			Eventually(fetcher.count).Should(Equal(1))
			now := fixed.Unix()
			fetcher.resolve(0, rows(now-15*60, now-5*60), true)
			Eventually(func() int { return len(poller.Snapshot().Batch.Readings) }).Should(Equal(2))

			_, view := poller.View(types.Selection{Window: types.WindowPast10Minutes}, fixed)
			Expect(view.Readings).To(HaveLen(1))
			Expect(view.Readings[0].Timestamp).To(Equal(now - 5*60))
			Expect(view.Summary.Count).To(Equal(1))

			_, all := poller.View(types.Selection{Window: types.WindowAll}, fixed)
			Expect(all.Readings).To(HaveLen(2))
			Expect(fetcher.count()).To(Equal(1))
		})
	})

	Describe("Subscribe", func() {
		It("signals after each applied batch until unsubscribed", func() {
			ch := poller.Subscribe()
			poller.Start(ctx)
			Eventually(fetcher.count).Should(Equal(1))
			fetcher.resolve(0, rows(1000), true)
			Eventually(ch).Should(Receive())

			poller.Unsubscribe(ch)
			go func() { _, _ = poller.Refresh(context.Background()) }()
			Eventually(fetcher.count).Should(Equal(2))
			fetcher.resolve(1, rows(2000), true)
			Eventually(func() []int64 { return timestampsOf(poller.Snapshot()) }).Should(Equal([]int64{2000}))
			Consistently(ch, 50*time.Millisecond).ShouldNot(Receive())
		})
	})
})
