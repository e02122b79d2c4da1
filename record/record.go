// Package record persists per-title playback state between runs: watch
// progress, player settings, and favorites.
package record

import (
	"fmt"
	"time"

	"github.com/metafates/gache"

	"github.com/oriontv-cli/oriontv/filesystem"
	"github.com/oriontv-cli/oriontv/where"
)

// cacher provides an abstracted, disk-backed registry for playback progress records.
var cacher = gache.New[map[string]*PlayRecord](
	&gache.Options{
		Path:       where.Records(),
		FileSystem: &filesystem.GacheFs{},
	},
)

// PlayRecord captures where the user left off within one title on one source.
type PlayRecord struct {
	SourceKey     string  `json:"source_key"`
	SourceName    string  `json:"source_name"`
	TitleID       string  `json:"title_id"`
	Title         string  `json:"title"`
	EpisodeIndex  int     `json:"episode_index"`
	EpisodesTotal int     `json:"episodes_total"`
	Position      float64 `json:"position"`
	Duration      float64 `json:"duration"`
	IntroEnd      float64 `json:"intro_end,omitempty"`
	OutroStart    float64 `json:"outro_start,omitempty"`
	SavedAt       int64   `json:"saved_at"`
}

func (r *PlayRecord) encode() string {
	return fmt.Sprintf("%s (%s)", r.Title, r.SourceKey)
}

func (r *PlayRecord) String() string {
	return fmt.Sprintf("%s : episode %d / %d", r.Title, r.EpisodeIndex+1, r.EpisodesTotal)
}

// Percentage reports watch progress of the saved episode, in [0, 100].
func (r *PlayRecord) Percentage() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return r.Position / r.Duration * 100
}

// Get returns the complete collection of playback records from the persistent store.
func Get() (map[string]*PlayRecord, error) {
	cached, expired, err := cacher.Get()
	if err != nil {
		return nil, err
	}
	if expired || cached == nil {
		return make(map[string]*PlayRecord), nil
	}
	return cached, nil
}

// Save persists playback progress for a title. A record farther along in the
// same episode is never regressed by an older position.
func Save(record *PlayRecord) error {
	saved, err := Get()
	if err != nil {
		return err
	}

	if existing, exists := saved[record.encode()]; exists &&
		existing.EpisodeIndex == record.EpisodeIndex &&
		record.Position < existing.Position {
		record.Position = existing.Position
	}
	record.SavedAt = time.Now().Unix()

	saved[record.encode()] = record
	return cacher.Set(saved)
}

// Find returns the saved record for a title and source, if any.
func Find(title, sourceKey string) (*PlayRecord, bool, error) {
	saved, err := Get()
	if err != nil {
		return nil, false, err
	}
	record, ok := saved[fmt.Sprintf("%s (%s)", title, sourceKey)]
	return record, ok, nil
}

// Latest returns the most recently saved record, used for resuming playback.
func Latest() (*PlayRecord, bool, error) {
	saved, err := Get()
	if err != nil {
		return nil, false, err
	}

	var latest *PlayRecord
	for _, record := range saved {
		if latest == nil || record.SavedAt > latest.SavedAt {
			latest = record
		}
	}
	return latest, latest != nil, nil
}

// Remove permanently deletes a playback record from the registry.
func Remove(record *PlayRecord) error {
	saved, err := Get()
	if err != nil {
		return err
	}

	delete(saved, record.encode())
	return cacher.Set(saved)
}
