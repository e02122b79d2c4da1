// Package search fans a query out across every configured catalog backend,
// merges the answers, and caches them.
//
// Searches are concurrent but bounded: a shared worker pool caps parallelism
// and each backend gets its own request-rate limiter so one hot loop cannot
// hammer a provider. The first backend to answer unblocks the UI while the
// rest settle in the background.
package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/spf13/viper"
	"go.uber.org/ratelimit"

	"github.com/oriontv-cli/oriontv/key"
	"github.com/oriontv-cli/oriontv/log"
	"github.com/oriontv-cli/oriontv/source"
	"github.com/oriontv-cli/oriontv/verr"
)

// Result is the settled outcome of one aggregated search.
type Result struct {
	Query  string
	Items  []*source.Item
	Total  int              // sum of provider-reported match counts
	Errors map[string]error // failures by source key; partial results are still delivered

	// Enriched is non-nil only on the preferred-source path: it delivers the
	// exact-title alternates found by the background fan-out, then closes.
	Enriched <-chan []*source.Item
}

// Session is a running aggregated search.
//
// FirstHit delivers the first non-empty batch and is then closed; it is
// closed without a value when no backend returned anything. Settled delivers
// exactly one Result and is then closed.
type Session struct {
	FirstHit <-chan []*source.Item
	Settled  <-chan *Result
}

// Aggregator runs queries against all registered backends.
type Aggregator struct {
	backends []source.Backend
	pool     *ants.Pool
	limiters *xsync.MapOf[string, ratelimit.Limiter]
	cache    *Cache

	mu         sync.Mutex
	cancelPrev context.CancelFunc
	epoch      atomic.Uint64
}

// NewAggregator builds an aggregator over the given backends. The worker pool
// size and per-source request rate come from configuration.
func NewAggregator(backends []source.Backend, cache *Cache) (*Aggregator, error) {
	concurrency := viper.GetInt(key.SourcesConcurrency)
	if concurrency < 1 {
		concurrency = len(backends)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, err
	}

	return &Aggregator{
		backends: backends,
		pool:     pool,
		limiters: xsync.NewMapOf[string, ratelimit.Limiter](),
		cache:    cache,
	}, nil
}

// Close releases the worker pool.
func (a *Aggregator) Close() {
	a.pool.Release()
}

func (a *Aggregator) limiter(sourceKey string) ratelimit.Limiter {
	rps := viper.GetInt(key.SourcesRequestsPerSecond)
	if rps < 1 {
		rps = 5
	}
	limiter, _ := a.limiters.LoadOrCompute(sourceKey, func() ratelimit.Limiter {
		return ratelimit.New(rps)
	})
	return limiter
}

// Search runs an aggregated query and blocks until every backend settles.
// Cached results are served without touching the network. An empty result
// set yields verr.NoResultsError.
func (a *Aggregator) Search(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &verr.NoResultsError{Query: query}
	}

	if a.cache != nil {
		if items, total, ok := a.cache.Get(query); ok {
			log.Debugf("search %q served from cache (%d items)", query, len(items))
			return &Result{Query: query, Items: items, Total: total}, nil
		}
	}

	session := a.Start(ctx, query)
	result := <-session.Settled

	if err := ctx.Err(); err != nil {
		return nil, verr.ErrRequestCancelled
	}
	if len(result.Items) == 0 {
		return nil, &verr.NoResultsError{Query: query}
	}
	return result, nil
}

// Start launches an aggregated search and returns immediately. Starting a new
// session cancels the previous one; a stale session's results are discarded
// instead of overwriting the cache.
func (a *Aggregator) Start(ctx context.Context, query string) *Session {
	ctx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	if a.cancelPrev != nil {
		a.cancelPrev()
	}
	a.cancelPrev = cancel
	epoch := a.epoch.Add(1)
	a.mu.Unlock()

	firstHit := make(chan []*source.Item, 1)
	settled := make(chan *Result, 1)

	go a.run(ctx, cancel, epoch, query, firstHit, settled)

	return &Session{FirstHit: firstHit, Settled: settled}
}

func (a *Aggregator) run(
	ctx context.Context,
	cancel context.CancelFunc,
	epoch uint64,
	query string,
	firstHit chan<- []*source.Item,
	settled chan<- *Result,
) {
	defer cancel()

	var (
		wg        sync.WaitGroup
		merged    = xsync.NewMapOf[string, *source.Item]()
		errs      = xsync.NewMapOf[string, error]()
		total     atomic.Int64
		firstOnce sync.Once
	)

	for _, backend := range a.backends {
		backend := backend
		wg.Add(1)

		submit := func() {
			defer wg.Done()

			if ctx.Err() != nil {
				return
			}
			a.limiter(backend.Key()).Take()

			items, reported, err := backend.Search(ctx, query)
			if err != nil {
				if !verr.IsCancelled(err) {
					log.Warnf("search %q on %s: %v", query, backend.Key(), err)
					errs.Store(backend.Key(), err)
				}
				return
			}
			total.Add(int64(reported))

			fresh := make([]*source.Item, 0, len(items))
			for _, item := range items {
				if _, loaded := merged.LoadOrStore(backend.Key()+"\x00"+item.ID, item); !loaded {
					fresh = append(fresh, item)
				}
			}

			if len(fresh) > 0 {
				firstOnce.Do(func() {
					firstHit <- fresh
					close(firstHit)
				})
			}
		}

		if err := a.pool.Submit(submit); err != nil {
			// Pool released mid-flight; run inline so the session still settles.
			go submit()
		}
	}

	wg.Wait()
	firstOnce.Do(func() { close(firstHit) })

	result := &Result{Query: query, Total: int(total.Load()), Errors: map[string]error{}}
	merged.Range(func(_ string, item *source.Item) bool {
		result.Items = append(result.Items, item)
		return true
	})
	errs.Range(func(sourceKey string, err error) bool {
		result.Errors[sourceKey] = err
		return true
	})

	sort.Slice(result.Items, func(i, j int) bool {
		if result.Items[i].Title != result.Items[j].Title {
			return result.Items[i].Title < result.Items[j].Title
		}
		return result.Items[i].SourceKey < result.Items[j].SourceKey
	})

	if limit := viper.GetInt(key.SearchLimit); limit > 0 && len(result.Items) > limit {
		result.Items = result.Items[:limit]
	}

	// Stale sessions (superseded by a newer Start) must not publish.
	if a.cache != nil && ctx.Err() == nil && len(result.Items) > 0 && a.epoch.Load() == epoch {
		a.cache.Put(query, result.Items, result.Total)
	}

	settled <- result
	close(settled)
}

// SearchPreferred queries one backend first and returns as soon as it
// answers with hits; the remaining backends settle in the background and
// enrich the cache with exact-title matches. Falls back to a full aggregated
// search when the preferred backend comes up empty.
func (a *Aggregator) SearchPreferred(ctx context.Context, query, preferredKey string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &verr.NoResultsError{Query: query}
	}

	preferred, ok := source.Get(a.backends, preferredKey)
	if !ok {
		return a.Search(ctx, query)
	}

	a.limiter(preferred.Key()).Take()
	items, total, err := preferred.Search(ctx, query)
	if err != nil || len(items) == 0 {
		if err != nil && verr.IsCancelled(err) {
			return nil, verr.ErrRequestCancelled
		}
		return a.Search(ctx, query)
	}

	// Enrich in the background so an eventual failover has alternates ready.
	// The caller drains Result.Enriched at its own pace.
	title := items[0].Title
	enriched := make(chan []*source.Item, 1)
	go a.enrich(context.WithoutCancel(ctx), query, title, preferred.Key(), enriched)

	return &Result{Query: query, Items: items, Total: total, Enriched: enriched}, nil
}

// enrich fans the query out across the remaining backends and delivers the
// exact-title alternates on out, then closes it.
func (a *Aggregator) enrich(ctx context.Context, query, exactTitle, skipKey string, out chan<- []*source.Item) {
	defer close(out)

	session := a.Start(ctx, query)
	result := <-session.Settled

	matched := make([]*source.Item, 0, len(result.Items))
	for _, item := range result.Items {
		if item.SourceKey == skipKey || item.Title != exactTitle {
			continue
		}
		matched = append(matched, item)
	}

	log.Debugf("background enrich %q: %d exact alternates", query, len(matched))
	if len(matched) > 0 {
		out <- matched
	}
}
