// Package player defines a unified abstraction layer for media playback engines.
// The architecture supports multiple backends, with the primary implementation targeting 'mpv' via its JSON-IPC interface.
package player

import "time"

// Status is one observation of the playback engine, delivered on every feed tick.
type Status struct {
	// Loaded reports whether a media file is initialized and active.
	Loaded bool

	// Playing is true when playback is advancing (not paused, not stalled).
	Playing bool

	// Buffering is true while the engine has stalled waiting for data.
	Buffering bool

	// Seeking is true while a seek is still being resolved.
	Seeking bool

	// Position is the absolute playback position in seconds.
	Position float64

	// Duration is the media length in seconds; zero when unknown.
	Duration float64

	// Finished is true once the engine reached the end of the file.
	Finished bool

	// Err carries an engine-level playback failure, nil otherwise.
	Err error
}

// Percentage reports relative completion in [0, 100].
func (s Status) Percentage() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return s.Position / s.Duration * 100
}

// Player encapsulates the required capabilities for a media playback backend.
type Player interface {
	// Play starts playback of the given URL with the specified title.
	// If a player instance is already running, it loads the new file into it.
	Play(url string, title string, headers map[string]string) error

	// Load replaces the current media with a new URL in the running instance.
	Load(url string) error

	// Seek transitions the playback position to a specific absolute timestamp in seconds.
	Seek(seconds float64) error

	// SetPause sets the playback suspension state explicitly.
	SetPause(paused bool) error

	// TogglePause inverts the current playback suspension state.
	TogglePause() error

	// SetRate sets the playback speed multiplier.
	SetRate(rate float64) error

	// Position retrieves the current absolute playback position in seconds.
	Position() (float64, error)

	// Duration retrieves the total temporal length of the active media file in seconds.
	Duration() (float64, error)

	// Paused retrieves the current suspension state of the playback engine.
	Paused() (bool, error)

	// Running validates the liveness of the underlying playback process or handler.
	Running() bool

	// StartStatusFeed initializes a background synchronization task that
	// assembles a Status observation at the given interval and hands it to
	// the callback. Observations fold in property events received between ticks.
	StartStatusFeed(interval time.Duration, callback func(Status))

	// StopStatusFeed terminates the background synchronization task.
	StopStatusFeed()

	// Wait returns a channel that is closed when the playback session terminates.
	Wait() <-chan struct{}

	// Close terminates the playback engine and releases all associated system resources.
	Close() error
}
