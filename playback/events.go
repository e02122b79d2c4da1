package playback

// EventKind discriminates controller notifications delivered to the UI.
type EventKind int

const (
	// EventStateChanged fires on every session state transition.
	EventStateChanged EventKind = iota

	// EventSourceSwitched fires after a successful failover to another source.
	EventSourceSwitched

	// EventEpisodeAdvanced fires when playback moves to the next episode.
	EventEpisodeAdvanced

	// EventNextEpisodeHint fires once per episode when playback nears the end.
	EventNextEpisodeHint

	// EventExhausted fires exactly once when no usable source remains.
	EventExhausted

	// EventEnded fires when the session finishes for good.
	EventEnded
)

// Event is one controller notification.
type Event struct {
	Kind         EventKind
	State        State
	SourceKey    string
	SourceName   string
	EpisodeIndex int
	Err          error
}
