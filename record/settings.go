package record

import (
	"fmt"

	"github.com/metafates/gache"

	"github.com/oriontv-cli/oriontv/filesystem"
	"github.com/oriontv-cli/oriontv/where"
)

// PlayerSettings captures the knobs the user adjusted while watching one
// title so the next session of that title starts the same way.
type PlayerSettings struct {
	Rate   float64 `json:"rate"`
	Volume int     `json:"volume"`
	Muted  bool    `json:"muted"`
}

// DefaultPlayerSettings is what a fresh title plays with.
func DefaultPlayerSettings() *PlayerSettings {
	return &PlayerSettings{Rate: 1.0, Volume: 100}
}

var settingsCacher = gache.New[map[string]*PlayerSettings](
	&gache.Options{
		Path:       where.Settings(),
		FileSystem: &filesystem.GacheFs{},
	},
)

func settingsKey(sourceKey, titleID string) string {
	return fmt.Sprintf("%s (%s)", titleID, sourceKey)
}

// GetPlayerSettings loads the persisted settings for a title on a source,
// falling back to defaults.
func GetPlayerSettings(sourceKey, titleID string) (*PlayerSettings, error) {
	cached, expired, err := settingsCacher.Get()
	if err != nil {
		return nil, err
	}
	if expired || cached == nil {
		return DefaultPlayerSettings(), nil
	}
	if settings, ok := cached[settingsKey(sourceKey, titleID)]; ok {
		return settings, nil
	}
	return DefaultPlayerSettings(), nil
}

// SavePlayerSettings persists the settings for a title on a source.
func SavePlayerSettings(sourceKey, titleID string, settings *PlayerSettings) error {
	cached, expired, err := settingsCacher.Get()
	if err != nil {
		return err
	}
	if expired || cached == nil {
		cached = make(map[string]*PlayerSettings)
	}

	cached[settingsKey(sourceKey, titleID)] = settings
	return settingsCacher.Set(cached)
}
