package probe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/oriontv-cli/oriontv/log"
	"github.com/oriontv-cli/oriontv/network"
	"github.com/oriontv-cli/oriontv/source"
)

// Inspector derives a resolution tier for a stream from its HLS manifest.
type Inspector struct {
	client *http.Client
}

func NewInspector() *Inspector {
	return &Inspector{client: network.Client}
}

// DetectResolution fetches the manifest and reads the best variant's height.
// Non-manifest URLs and unreadable manifests fall back to label hints in the
// URL itself, then to TierUnknown. Detection failures are never fatal.
func (i *Inspector) DetectResolution(ctx context.Context, streamURL string) source.ResolutionTier {
	if !IsManifestURL(streamURL) {
		return source.TierFromLabel(streamURL)
	}

	tier, err := i.inspectManifest(ctx, streamURL)
	if err != nil {
		log.Debugf("resolution inspect %s: %v", streamURL, err)
		return source.TierFromLabel(streamURL)
	}
	return tier
}

func (i *Inspector) inspectManifest(ctx context.Context, streamURL string) (source.ResolutionTier, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return source.TierUnknown, err
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return source.TierUnknown, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return source.TierUnknown, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	// Manifests are small; cap the read regardless of what the origin sends.
	limited := io.LimitReader(resp.Body, 256<<10)
	playlist, listType, err := m3u8.DecodeFrom(bufio.NewReader(limited), true)
	if err != nil {
		return source.TierUnknown, err
	}

	if listType != m3u8.MASTER {
		// Media playlists carry no variant metadata.
		return source.TierFromLabel(streamURL), nil
	}

	master := playlist.(*m3u8.MasterPlaylist)
	best := 0
	for _, variant := range master.Variants {
		if variant == nil {
			continue
		}
		if h := variantHeight(variant.Resolution); h > best {
			best = h
		}
	}

	if best == 0 {
		return source.TierUnknown, nil
	}
	return source.TierFromHeight(best), nil
}

// variantHeight parses the "WxH" resolution attribute.
func variantHeight(resolution string) int {
	parts := strings.SplitN(resolution, "x", 2)
	if len(parts) != 2 {
		return 0
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0
	}
	return h
}
