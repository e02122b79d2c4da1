package ranking

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/oriontv-cli/oriontv/probe"
	"github.com/oriontv-cli/oriontv/source"
)

func candidate(sourceKey string, order int, tier source.ResolutionTier, latency time.Duration, episodes int) *source.Candidate {
	urls := make([]string, episodes)
	for i := range urls {
		urls[i] = "http://" + sourceKey + ".example/ep.m3u8"
	}
	c := source.NewCandidate(&source.Item{
		SourceKey:  sourceKey,
		SourceName: sourceKey,
		ID:         "1",
		Title:      "Breaking Waves",
		Episodes:   urls,
	}, order)
	c.SetResolution(tier)
	if latency > 0 {
		c.SetLatency(latency)
	}
	return c
}

type stubMeasurer struct {
	calls   int64
	latency time.Duration
}

func (m *stubMeasurer) Measure(ctx context.Context, streamURL string) (probe.Verdict, error) {
	atomic.AddInt64(&m.calls, 1)
	return probe.Verdict{URL: streamURL, Usable: true, Latency: m.latency, CheckedAt: time.Now()}, nil
}

func TestScore(t *testing.T) {
	Convey("Resolution outweighs latency", t, func() {
		sharpButSlow := candidate("alpha", 0, source.Tier1080, 250*time.Millisecond, 3)
		fastButSoft := candidate("beta", 1, source.Tier720, 100*time.Millisecond, 3)

		So(Score(sharpButSlow), ShouldAlmostEqual, 4.0, 0.001)
		So(Score(fastButSoft), ShouldAlmostEqual, 3.4, 0.001)
		So(Score(sharpButSlow), ShouldBeGreaterThan, Score(fastButSoft))
	})

	Convey("An unmeasured candidate scores in the worst latency bucket", t, func() {
		unmeasured := candidate("alpha", 0, source.Tier1080, 0, 3)
		slow := candidate("beta", 1, source.Tier1080, 3*time.Second, 3)

		So(Score(unmeasured), ShouldAlmostEqual, Score(slow), 0.001)
	})
}

func TestSelectFallback(t *testing.T) {
	selector := NewSelector(nil)

	Convey("Given ranked candidates across three sources", t, func() {
		best := candidate("alpha", 0, source.Tier1080, 200*time.Millisecond, 5)
		middle := candidate("beta", 1, source.Tier720, 200*time.Millisecond, 5)
		worst := candidate("gamma", 2, source.Tier480, 200*time.Millisecond, 5)
		pool := []*source.Candidate{worst, middle, best}

		Convey("The best candidate wins", func() {
			picked, ok := selector.SelectFallback(context.Background(), pool, "", nil, 0)
			So(ok, ShouldBeTrue)
			So(picked.SourceKey, ShouldEqual, "alpha")
		})

		Convey("The excluded source is skipped", func() {
			picked, ok := selector.SelectFallback(context.Background(), pool, "alpha", nil, 0)
			So(ok, ShouldBeTrue)
			So(picked.SourceKey, ShouldEqual, "beta")
		})

		Convey("Failed sources are skipped", func() {
			failed := map[string]bool{"alpha": true, "beta": true}
			picked, ok := selector.SelectFallback(context.Background(), pool, "", func(k string) bool { return failed[k] }, 0)
			So(ok, ShouldBeTrue)
			So(picked.SourceKey, ShouldEqual, "gamma")
		})

		Convey("Candidates missing the wanted episode are skipped", func() {
			short := candidate("delta", 3, source.Tier1080, 100*time.Millisecond, 2)
			picked, ok := selector.SelectFallback(context.Background(), append(pool, short), "", nil, 4)
			So(ok, ShouldBeTrue)
			So(picked.SourceKey, ShouldEqual, "alpha")
		})

		Convey("Ruling out every candidate reports no fallback", func() {
			failed := map[string]bool{"alpha": true, "beta": true, "gamma": true}
			_, ok := selector.SelectFallback(context.Background(), pool, "", func(k string) bool { return failed[k] }, 0)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given candidates with equal scores", t, func() {
		first := candidate("alpha", 0, source.Tier720, 200*time.Millisecond, 3)
		second := candidate("beta", 1, source.Tier720, 200*time.Millisecond, 3)

		Convey("Discovery order breaks the tie", func() {
			picked, ok := selector.SelectFallback(context.Background(), []*source.Candidate{second, first}, "", nil, 0)
			So(ok, ShouldBeTrue)
			So(picked.SourceKey, ShouldEqual, "alpha")
		})
	})
}

func TestStaleRefresh(t *testing.T) {
	Convey("Given a candidate with no latency measurement", t, func() {
		measurer := &stubMeasurer{latency: 150 * time.Millisecond}
		selector := NewSelector(measurer)
		stale := candidate("alpha", 0, source.Tier1080, 0, 3)

		Convey("Selection triggers a background re-measure", func() {
			_, ok := selector.SelectFallback(context.Background(), []*source.Candidate{stale}, "", nil, 0)
			So(ok, ShouldBeTrue)

			So(func() int64 { // wait for the async measure to land
				deadline := time.Now().Add(2 * time.Second)
				for time.Now().Before(deadline) {
					if atomic.LoadInt64(&measurer.calls) > 0 {
						break
					}
					time.Sleep(5 * time.Millisecond)
				}
				return atomic.LoadInt64(&measurer.calls)
			}(), ShouldEqual, 1)
		})
	})

	Convey("Given stale candidates ruled out of the selection", t, func() {
		measurer := &stubMeasurer{latency: 150 * time.Millisecond}
		selector := NewSelector(measurer)
		excluded := candidate("alpha", 0, source.Tier1080, 0, 3)
		failed := candidate("beta", 1, source.Tier720, 0, 3)
		fresh := candidate("gamma", 2, source.Tier480, 200*time.Millisecond, 3)

		Convey("Only candidates still in the running are re-measured", func() {
			pool := []*source.Candidate{excluded, failed, fresh}
			picked, ok := selector.SelectFallback(context.Background(), pool, "alpha", func(k string) bool { return k == "beta" }, 0)
			So(ok, ShouldBeTrue)
			So(picked.SourceKey, ShouldEqual, "gamma")

			time.Sleep(50 * time.Millisecond)
			So(atomic.LoadInt64(&measurer.calls), ShouldEqual, 0)
		})
	})

	Convey("Given a freshly measured candidate", t, func() {
		measurer := &stubMeasurer{latency: 150 * time.Millisecond}
		selector := NewSelector(measurer)
		fresh := candidate("alpha", 0, source.Tier1080, 200*time.Millisecond, 3)

		Convey("No re-measure is scheduled", func() {
			_, ok := selector.SelectFallback(context.Background(), []*source.Candidate{fresh}, "", nil, 0)
			So(ok, ShouldBeTrue)

			time.Sleep(50 * time.Millisecond)
			So(atomic.LoadInt64(&measurer.calls), ShouldEqual, 0)
		})
	})
}
