// Package playback drives a viewing session end to end: it feeds the media
// player, watches its health, and switches to an alternate source when the
// active one stalls or dies.
package playback

import (
	"sync"

	"github.com/oriontv-cli/oriontv/source"
)

// State is the lifecycle phase of a playback session.
type State int

const (
	StateLoading State = iota
	StatePlaying
	StatePaused
	StateBuffering
	StateSwitching
	StateEnded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateSwitching:
		return "switching"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is one title being watched across a pool of interchangeable sources.
// The pool can grow while playing: background enrichment feeds in alternates
// through AddCandidates.
type Session struct {
	Title string

	mu           sync.Mutex
	candidates   []*source.Candidate
	active       *source.Candidate
	episodeIndex int
	state        State
	userPaused   bool
	retryCount   int
	position     float64
	duration     float64
	introEnd     float64
	outroStart   float64
	failed       *FailedSet
}

// NewSession sets up a session on the given candidate pool, starting from the
// chosen candidate and episode.
func NewSession(title string, candidates []*source.Candidate, active *source.Candidate, episodeIndex int) *Session {
	return &Session{
		Title:        title,
		candidates:   candidates,
		active:       active,
		episodeIndex: episodeIndex,
		state:        StateLoading,
		failed:       NewFailedSet(),
	}
}

// Candidates returns a snapshot of the current candidate pool.
func (s *Session) Candidates() []*source.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*source.Candidate(nil), s.candidates...)
}

// AddCandidates grows the pool with alternates discovered after the session
// started. Sources already present are skipped.
func (s *Session) AddCandidates(candidates ...*source.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, candidate := range candidates {
		known := false
		for _, existing := range s.candidates {
			if existing.SourceKey == candidate.SourceKey {
				known = true
				break
			}
		}
		if !known {
			s.candidates = append(s.candidates, candidate)
		}
	}
}

// Active returns the candidate currently feeding the player.
func (s *Session) Active() *source.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) setActive(candidate *source.Candidate) {
	s.mu.Lock()
	s.active = candidate
	s.retryCount = 0
	s.mu.Unlock()
}

// EpisodeIndex returns the zero-based episode being played.
func (s *Session) EpisodeIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.episodeIndex
}

func (s *Session) setEpisodeIndex(index int) {
	s.mu.Lock()
	s.episodeIndex = index
	s.retryCount = 0
	s.mu.Unlock()
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState transitions the session, reporting whether anything changed.
func (s *Session) setState(state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == state {
		return false
	}
	s.state = state
	return true
}

// UserPaused reports whether the viewer explicitly paused. A user pause is
// never treated as a buffering stall.
func (s *Session) UserPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userPaused
}

func (s *Session) setUserPaused(paused bool) {
	s.mu.Lock()
	s.userPaused = paused
	s.mu.Unlock()
}

// Progress returns the last observed position and duration in seconds.
func (s *Session) Progress() (position, duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position, s.duration
}

func (s *Session) setProgress(position, duration float64) {
	s.mu.Lock()
	if position > 0 {
		s.position = position
	}
	if duration > 0 {
		s.duration = duration
	}
	s.mu.Unlock()
}

func (s *Session) resetProgress() {
	s.mu.Lock()
	s.position = 0
	s.duration = 0
	s.mu.Unlock()
}

// Markers returns the intro-end and outro-start offsets in seconds. A zero
// value means the marker is unset.
func (s *Session) Markers() (introEnd, outroStart float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.introEnd, s.outroStart
}

// SetMarkers records skip markers for the current title. Negative values are
// clamped to unset.
func (s *Session) SetMarkers(introEnd, outroStart float64) {
	s.mu.Lock()
	s.introEnd = max(introEnd, 0)
	s.outroStart = max(outroStart, 0)
	s.mu.Unlock()
}

func (s *Session) retries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryCount
}

func (s *Session) resetRetries() {
	s.mu.Lock()
	s.retryCount = 0
	s.mu.Unlock()
}

func (s *Session) bumpRetries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryCount++
	return s.retryCount
}

// Failed exposes the set of sources ruled out for this session.
func (s *Session) Failed() *FailedSet {
	return s.failed
}

// ActiveURL returns the stream URL for the active candidate and episode.
func (s *Session) ActiveURL() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return "", false
	}
	return s.active.EpisodeURL(s.episodeIndex)
}

// EpisodeCount reports the active candidate's episode count.
func (s *Session) EpisodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return 0
	}
	return len(s.active.EpisodeURLs)
}
