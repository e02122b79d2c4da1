// Package query remembers what the user searched for and offers fuzzy
// suggestions when a new search comes up empty.
package query

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/metafates/gache"
	"github.com/samber/lo"

	"github.com/oriontv-cli/oriontv/filesystem"
	"github.com/oriontv-cli/oriontv/where"
)

const maxRemembered = 100

var cacher = gache.New[[]string](
	&gache.Options{
		Path:       where.Queries(),
		FileSystem: &filesystem.GacheFs{},
	},
)

// Get returns remembered queries, most recent first.
func Get() ([]string, error) {
	cached, expired, err := cacher.Get()
	if err != nil {
		return nil, err
	}
	if expired || cached == nil {
		return nil, nil
	}
	return cached, nil
}

// Remember stores a query at the head of the history, deduplicated.
func Remember(query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	queries, err := Get()
	if err != nil {
		return err
	}

	queries = lo.Filter(queries, func(q string, _ int) bool {
		return !strings.EqualFold(q, query)
	})
	queries = append([]string{query}, queries...)
	if len(queries) > maxRemembered {
		queries = queries[:maxRemembered]
	}

	return cacher.Set(queries)
}

// Suggest returns remembered queries fuzzily matching the given one, ranked
// by match quality.
func Suggest(query string) ([]string, error) {
	queries, err := Get()
	if err != nil {
		return nil, err
	}

	matches := fuzzy.RankFindNormalizedFold(query, queries)
	sort.Sort(matches)

	return lo.Map(matches, func(m fuzzy.Rank, _ int) string {
		return m.Target
	}), nil
}

// Forget clears the entire query history.
func Forget() error {
	return cacher.Set(nil)
}
