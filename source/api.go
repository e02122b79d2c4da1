package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/oriontv-cli/oriontv/log"
	"github.com/oriontv-cli/oriontv/network"
)

// APIBackend speaks the common vod-provider JSON contract: a videolist endpoint
// answering search (`wd`) and detail (`ids`) queries with tagged record lists.
type APIBackend struct {
	key     string
	name    string
	baseURL string
	client  *http.Client
}

// NewAPIBackend constructs a backend for one configured provider endpoint.
func NewAPIBackend(key, name, baseURL string) *APIBackend {
	return &APIBackend{
		key:     key,
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  network.Client,
	}
}

func (b *APIBackend) Key() string  { return b.key }
func (b *APIBackend) Name() string { return b.name }

// vodRecord mirrors the provider wire format. Only fields the client consumes are mapped.
type vodRecord struct {
	ID       json.Number `json:"vod_id"`
	Name     string      `json:"vod_name"`
	Year     string      `json:"vod_year"`
	TypeName string      `json:"type_name"`
	Pic      string      `json:"vod_pic"`
	PlayURL  string      `json:"vod_play_url"`
}

type vodResponse struct {
	Code  int         `json:"code"`
	Total int         `json:"total"`
	List  []vodRecord `json:"list"`
}

// Search queries the provider for titles matching the query.
func (b *APIBackend) Search(ctx context.Context, query string) ([]*Item, int, error) {
	params := url.Values{}
	params.Set("ac", "videolist")
	params.Set("wd", query)
	return b.fetch(ctx, params)
}

// Detail retrieves the full record, including episode URLs, for a single title id.
func (b *APIBackend) Detail(ctx context.Context, id string) (*Item, error) {
	params := url.Values{}
	params.Set("ac", "videolist")
	params.Set("ids", id)

	items, _, err := b.fetch(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("source %s: no record for id %s", b.key, id)
	}
	return items[0], nil
}

func (b *APIBackend) fetch(ctx context.Context, params url.Values) ([]*Item, int, error) {
	endpoint := fmt.Sprintf("%s?%s", b.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("source %s: build request: %w", b.key, err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("source %s: %w", b.key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("source %s: unexpected status %d", b.key, resp.StatusCode)
	}

	var payload vodResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, fmt.Errorf("source %s: decode response: %w", b.key, err)
	}

	items := make([]*Item, 0, len(payload.List))
	for _, record := range payload.List {
		item := &Item{
			SourceKey:  b.key,
			SourceName: b.name,
			ID:         record.ID.String(),
			Title:      strings.TrimSpace(record.Name),
			Year:       record.Year,
			TypeName:   record.TypeName,
			Poster:     record.Pic,
			Episodes:   parsePlayURL(record.PlayURL),
		}

		// Boundary validation: malformed records are dropped here, never propagated.
		if err := item.Validate(); err != nil {
			log.Debugf("source %s: dropping record %q: %v", b.key, record.Name, err)
			continue
		}

		items = append(items, item)
	}

	total := payload.Total
	if total < len(items) {
		total = len(items)
	}
	return items, total, nil
}

// parsePlayURL unpacks the provider's packed episode list.
//
// Episodes are "#"-separated "label$url" pairs; multiple play groups are
// "$$$"-separated. The group carrying m3u8 URLs wins, otherwise the first.
func parsePlayURL(packed string) []string {
	if strings.TrimSpace(packed) == "" {
		return nil
	}

	groups := strings.Split(packed, "$$$")
	chosen := groups[0]
	for _, g := range groups {
		if strings.Contains(g, ".m3u8") {
			chosen = g
			break
		}
	}

	var urls []string
	for _, entry := range strings.Split(chosen, "#") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		// "label$url" or a bare url.
		if idx := strings.LastIndex(entry, "$"); idx >= 0 {
			entry = entry[idx+1:]
		}
		if strings.HasPrefix(entry, "http://") || strings.HasPrefix(entry, "https://") {
			urls = append(urls, entry)
		}
	}

	return urls
}
