package source

import "strings"

// ResolutionTier is a coarse quality bucket detected from a stream manifest.
type ResolutionTier int

const (
	TierUnknown ResolutionTier = iota
	Tier360
	Tier480
	Tier720
	Tier1080
)

func (t ResolutionTier) String() string {
	switch t {
	case Tier1080:
		return "1080p"
	case Tier720:
		return "720p"
	case Tier480:
		return "480p"
	case Tier360:
		return "360p"
	default:
		return "unknown"
	}
}

// Weight returns the ranking contribution of the tier.
func (t ResolutionTier) Weight() int {
	switch t {
	case Tier1080:
		return 4
	case Tier720:
		return 3
	case Tier480:
		return 2
	case Tier360:
		return 1
	default:
		return 0
	}
}

// TierFromHeight buckets a vertical pixel count into a tier.
func TierFromHeight(height int) ResolutionTier {
	switch {
	case height >= 1080:
		return Tier1080
	case height >= 720:
		return Tier720
	case height >= 480:
		return Tier480
	case height >= 360:
		return Tier360
	default:
		return TierUnknown
	}
}

// TierFromLabel recognizes common quality labels embedded in URLs or variant names.
func TierFromLabel(label string) ResolutionTier {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "1080"):
		return Tier1080
	case strings.Contains(l, "720"):
		return Tier720
	case strings.Contains(l, "480"):
		return Tier480
	case strings.Contains(l, "360"):
		return Tier360
	default:
		return TierUnknown
	}
}
