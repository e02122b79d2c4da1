// Package ranking orders playback candidates by quality and responsiveness.
//
// A candidate's score blends its resolution tier with its measured startup
// latency, weighted toward resolution: a 1080p stream at 250ms outranks a
// 720p stream at 100ms. Candidates whose latency measurement has gone stale
// are re-measured in the background so the next decision uses fresh numbers.
package ranking

import (
	"context"
	"sort"
	"time"

	"github.com/oriontv-cli/oriontv/log"
	"github.com/oriontv-cli/oriontv/probe"
	"github.com/oriontv-cli/oriontv/source"
)

const (
	resolutionWeight = 0.6
	latencyWeight    = 0.4

	// latency measurements older than this trigger an async refresh.
	staleAfter = 10 * time.Minute
)

// Measurer refreshes a candidate's latency. Satisfied by probe.Prober.
type Measurer interface {
	Measure(ctx context.Context, streamURL string) (probe.Verdict, error)
}

// Selector picks the best available candidate for failover.
type Selector struct {
	measurer Measurer
}

func NewSelector(measurer Measurer) *Selector {
	return &Selector{measurer: measurer}
}

// latencyBucket maps a measured latency onto 0 (best) through 3 (worst).
// Unmeasured candidates land in the worst bucket rather than being skipped.
func latencyBucket(c *source.Candidate) int {
	latency, ok := c.Latency().Get()
	if !ok {
		return 3
	}
	switch {
	case latency < 300*time.Millisecond:
		return 0
	case latency < 600*time.Millisecond:
		return 1
	case latency < time.Second:
		return 2
	default:
		return 3
	}
}

// Score computes the composite ranking score for a candidate.
func Score(c *source.Candidate) float64 {
	return resolutionWeight*float64(c.Resolution().Weight()) +
		latencyWeight*float64(4-latencyBucket(c))
}

// Rank returns the candidates ordered best-first. Ties break on discovery
// order, which keeps the ranking stable across repeated calls.
func (s *Selector) Rank(candidates []*source.Candidate) []*source.Candidate {
	ranked := append([]*source.Candidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := Score(ranked[i]), Score(ranked[j])
		if si != sj {
			return si > sj
		}
		return ranked[i].Order < ranked[j].Order
	})
	return ranked
}

// SelectFallback picks the best candidate that is not excluded, has not
// already failed, and actually carries the wanted episode. Returns false
// when every candidate is ruled out.
//
// Candidates with stale latency are still eligible, scored on their old
// numbers; a background re-measure updates them for the next decision.
func (s *Selector) SelectFallback(
	ctx context.Context,
	candidates []*source.Candidate,
	excludeKey string,
	failed func(sourceKey string) bool,
	episodeIndex int,
) (*source.Candidate, bool) {
	eligible := make([]*source.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.SourceKey == excludeKey {
			continue
		}
		if failed != nil && failed(candidate.SourceKey) {
			continue
		}
		if !candidate.HasEpisode(episodeIndex) {
			continue
		}
		eligible = append(eligible, candidate)
	}

	// Only contenders are worth re-measuring.
	s.refreshStale(ctx, eligible, episodeIndex)

	if len(eligible) == 0 {
		return nil, false
	}
	return s.Rank(eligible)[0], true
}

func (s *Selector) refreshStale(ctx context.Context, candidates []*source.Candidate, episodeIndex int) {
	if s.measurer == nil {
		return
	}
	for _, candidate := range candidates {
		if !candidate.NeedsMeasurement(staleAfter) {
			continue
		}
		streamURL, ok := candidate.EpisodeURL(episodeIndex)
		if !ok {
			continue
		}

		candidate := candidate
		go func() {
			verdict, err := s.measurer.Measure(ctx, streamURL)
			if err != nil {
				log.Debugf("latency refresh for %s: %v", candidate.SourceKey, err)
				return
			}
			candidate.SetLatency(verdict.Latency)
		}()
	}
}
