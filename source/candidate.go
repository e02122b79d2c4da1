package source

import (
	"sync"
	"time"

	"github.com/samber/mo"
)

// Candidate is a (source, title) pairing under consideration for playback.
//
// Candidates are created by the search aggregator and mutated in place by the
// probe service and ranking engine as resolution/latency measurements complete.
// A candidate is unique by source key within one query session.
type Candidate struct {
	SourceKey   string
	SourceName  string
	ID          string
	Title       string
	EpisodeURLs []string

	// Order is the discovery position within the session, used as a stable tie-break.
	Order int

	mu         sync.Mutex
	resolution ResolutionTier
	latency    mo.Option[time.Duration]
	measuredAt mo.Option[time.Time]
}

// NewCandidate builds a candidate from a validated backend record.
func NewCandidate(item *Item, order int) *Candidate {
	return &Candidate{
		SourceKey:   item.SourceKey,
		SourceName:  item.SourceName,
		ID:          item.ID,
		Title:       item.Title,
		EpisodeURLs: item.Episodes,
		Order:       order,
	}
}

// HasEpisode reports whether the candidate carries an episode at the given index.
func (c *Candidate) HasEpisode(index int) bool {
	return index >= 0 && index < len(c.EpisodeURLs)
}

// EpisodeURL returns the stream URL at the given episode index.
func (c *Candidate) EpisodeURL(index int) (string, bool) {
	if !c.HasEpisode(index) {
		return "", false
	}
	return c.EpisodeURLs[index], true
}

// Resolution returns the detected stream resolution tier, TierUnknown until measured.
func (c *Candidate) Resolution() ResolutionTier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolution
}

// SetResolution records the detected stream resolution tier.
func (c *Candidate) SetResolution(tier ResolutionTier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolution = tier
}

// Latency returns the most recent latency measurement, None while unmeasured.
func (c *Candidate) Latency() mo.Option[time.Duration] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latency
}

// SetLatency records a latency measurement and stamps the measurement time.
func (c *Candidate) SetLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latency = mo.Some(d)
	c.measuredAt = mo.Some(time.Now())
}

// NeedsMeasurement reports whether the candidate has never been measured or the
// measurement is older than staleAfter.
func (c *Candidate) NeedsMeasurement(staleAfter time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	at, ok := c.measuredAt.Get()
	if !ok {
		return true
	}
	return time.Since(at) > staleAfter
}
