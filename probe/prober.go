// Package probe validates candidate stream URLs ahead of playback.
//
// A probe issues a small ranged GET against the stream URL and records
// whether the origin answered in time. Verdicts are cached so repeated
// failover decisions within a short window do not re-touch the network.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/spf13/viper"

	"github.com/oriontv-cli/oriontv/key"
	"github.com/oriontv-cli/oriontv/log"
	"github.com/oriontv-cli/oriontv/network"
)

// Verdict is the cached outcome of probing one URL.
type Verdict struct {
	URL        string
	Usable     bool
	Latency    time.Duration
	StatusCode int
	CheckedAt  time.Time
}

type cachedVerdict struct {
	verdict   Verdict
	expiresAt time.Time
}

type inflight struct {
	cancel context.CancelFunc
}

// Prober probes stream URLs and caches verdicts for a configurable TTL.
// At most one commit-path probe runs at a time; starting a new one abandons
// the stale one.
type Prober struct {
	client   *http.Client
	verdicts *xsync.MapOf[string, cachedVerdict]

	pendingMu sync.Mutex
	pending   *inflight

	// overrides for tests; zero values mean "read viper".
	timeout   time.Duration
	tolerance time.Duration
	ttl       time.Duration
}

// NewProber returns a prober backed by the shared HTTP client.
func NewProber() *Prober {
	return &Prober{
		client:   network.Client,
		verdicts: xsync.NewMapOf[string, cachedVerdict](),
	}
}

func (p *Prober) probeTimeout() time.Duration {
	if p.timeout > 0 {
		return p.timeout
	}
	return time.Duration(viper.GetInt(key.ProbeTimeoutSeconds)) * time.Second
}

func (p *Prober) probeTolerance() time.Duration {
	if p.tolerance > 0 {
		return p.tolerance
	}
	return time.Duration(viper.GetInt(key.ProbeToleranceMillis)) * time.Millisecond
}

func (p *Prober) cacheTTL() time.Duration {
	if p.ttl > 0 {
		return p.ttl
	}
	return time.Duration(viper.GetInt(key.ProbeCacheTTLMinutes)) * time.Minute
}

// Probe returns a verdict for the URL, reusing a cached one when fresh.
// Only one probe may be in flight at a time: a new probe cancels the stale
// one, whatever URL it was checking. Transport failures resolve to an
// unusable verdict and are cached like any other outcome; only a superseded
// or cancelled probe surfaces an error.
func (p *Prober) Probe(ctx context.Context, streamURL string) (Verdict, error) {
	if cached, ok := p.verdicts.Load(streamURL); ok && time.Now().Before(cached.expiresAt) {
		return cached.verdict, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout())
	defer cancel()

	mine := &inflight{cancel: cancel}
	p.pendingMu.Lock()
	if p.pending != nil {
		p.pending.cancel()
	}
	p.pending = mine
	p.pendingMu.Unlock()

	defer func() {
		p.pendingMu.Lock()
		if p.pending == mine {
			p.pending = nil
		}
		p.pendingMu.Unlock()
	}()

	verdict, err := p.measure(probeCtx, streamURL)
	if err != nil {
		// A superseded probe must not poison the cache for the next one.
		if errors.Is(err, context.Canceled) {
			return Verdict{}, err
		}
		verdict = Verdict{URL: streamURL, CheckedAt: time.Now()}
	}

	p.verdicts.Store(streamURL, cachedVerdict{
		verdict:   verdict,
		expiresAt: time.Now().Add(p.cacheTTL()),
	})
	return verdict, nil
}

// Measure always hits the network and refreshes the cache entry. Used for
// re-measuring stale latencies during ranking.
func (p *Prober) Measure(ctx context.Context, streamURL string) (Verdict, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout())
	defer cancel()

	verdict, err := p.measure(probeCtx, streamURL)
	if err != nil {
		return Verdict{}, err
	}

	p.verdicts.Store(streamURL, cachedVerdict{
		verdict:   verdict,
		expiresAt: time.Now().Add(p.cacheTTL()),
	})
	return verdict, nil
}

func (p *Prober) measure(ctx context.Context, streamURL string) (Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return Verdict{}, fmt.Errorf("probe %s: %w", streamURL, err)
	}

	// Manifests are tiny; a 1 KiB range suffices. Media segments get a
	// larger window so TTFB reflects real delivery.
	if IsManifestURL(streamURL) {
		req.Header.Set("Range", "bytes=0-1023")
	} else {
		req.Header.Set("Range", "bytes=0-65535")
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Debugf("probe %s failed after %s: %v", streamURL, elapsed, err)
		return Verdict{}, err
	}
	defer resp.Body.Close()

	responded := resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent
	verdict := Verdict{
		URL:        streamURL,
		Usable:     responded && elapsed < p.probeTolerance(),
		Latency:    elapsed,
		StatusCode: resp.StatusCode,
		CheckedAt:  time.Now(),
	}

	log.Debugf("probe %s: status=%d latency=%s usable=%t", streamURL, resp.StatusCode, elapsed, verdict.Usable)
	return verdict, nil
}

// Invalidate drops the cached verdict for a URL, forcing the next probe to
// hit the network. Called after a playback error on that URL.
func (p *Prober) Invalidate(streamURL string) {
	p.verdicts.Delete(streamURL)
}

// IsManifestURL reports whether the URL points at an HLS playlist.
func IsManifestURL(streamURL string) bool {
	lower := strings.ToLower(streamURL)
	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}
	return strings.HasSuffix(lower, ".m3u8") || strings.Contains(lower, "mpegurl")
}
