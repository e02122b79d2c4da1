package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"

	"github.com/oriontv-cli/oriontv/key"
	"github.com/oriontv-cli/oriontv/log"
	"github.com/oriontv-cli/oriontv/player"
	"github.com/oriontv-cli/oriontv/probe"
	"github.com/oriontv-cli/oriontv/ranking"
	"github.com/oriontv-cli/oriontv/record"
	"github.com/oriontv-cli/oriontv/scheduler"
	"github.com/oriontv-cli/oriontv/util"
	"github.com/oriontv-cli/oriontv/verr"
)

const (
	statusInterval = time.Second

	// a stall this long after a seek is the seek settling, not a failure
	seekGrace = 10 * time.Second

	// how long a genuine stall may last before the retry ladder kicks in
	escalationDelay = 20 * time.Second

	// retry ladder: seek back, reload, then fail over
	maxRetries = 3

	seekBackStep = 5.0

	saveInterval = 10 * time.Second
)

// hintThreshold is the completion percentage past which the next-episode hint fires.
func hintThreshold() float64 {
	if t := viper.GetFloat64(key.PlayerCompletionPercentage); t > 0 {
		return t
	}
	return 95
}

// Verifier probes a stream URL before the controller commits to it.
// Satisfied by probe.Prober.
type Verifier interface {
	Probe(ctx context.Context, streamURL string) (probe.Verdict, error)
	Invalidate(streamURL string)
}

// Controller supervises one session: it starts playback, watches the status
// feed, escalates stalls through the retry ladder, and fails over to
// alternate sources until the pool is exhausted.
type Controller struct {
	player   player.Player
	selector *ranking.Selector
	verifier Verifier

	session   *Session
	escalator *scheduler.Scheduler
	events    chan Event

	// epoch invalidates status callbacks from a superseded stream
	epoch atomic.Uint64

	mu             sync.Mutex
	ctx            context.Context
	cancel         context.CancelFunc
	bufferingSince time.Time
	lastSeekAt     time.Time
	lastSavedAt    time.Time
	hintSent       bool
	exhausted      bool

	// timings are fields so tests can shrink them
	escalateAfter time.Duration
	seekSettle    time.Duration
	saveEvery     time.Duration
}

// NewController wires a controller around a player, a ranking selector, and a
// stream verifier.
func NewController(p player.Player, selector *ranking.Selector, verifier Verifier) *Controller {
	return &Controller{
		player:        p,
		selector:      selector,
		verifier:      verifier,
		escalator:     scheduler.New(),
		events:        make(chan Event, 16),
		escalateAfter: escalationDelay,
		seekSettle:    seekGrace,
		saveEvery:     saveInterval,
	}
}

// Events delivers controller notifications. The channel is buffered; stale
// events are dropped rather than blocking the control loop.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Session returns the session under supervision, nil before Start.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Start begins playback of the session's active candidate and starts the
// supervision loop. It returns once the player is rolling.
func (c *Controller) Start(ctx context.Context, session *Session) error {
	streamURL, ok := session.ActiveURL()
	if !ok {
		return &verr.SourceUnavailableError{SourceKey: session.Active().SourceKey}
	}

	if c.verifier != nil {
		verdict, err := c.verifier.Probe(ctx, streamURL)
		if err != nil || !verdict.Usable {
			session.Failed().Mark(session.Active().SourceKey)
			if !c.selectAlternate(ctx, session) {
				return &verr.ExhaustedError{Title: session.Title, Episode: session.EpisodeIndex()}
			}
			streamURL, _ = session.ActiveURL()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.session = session
	c.ctx = runCtx
	c.cancel = cancel
	c.hintSent = false
	c.exhausted = false
	c.mu.Unlock()

	if err := c.player.Play(streamURL, session.Title, nil); err != nil {
		cancel()
		return err
	}

	session.setState(StateLoading)
	c.emit(Event{Kind: EventStateChanged, State: StateLoading})
	c.restartFeed()
	c.skipIntro(session)

	return nil
}

// skipIntro jumps past the intro marker on a freshly loaded stream. An
// explicit resume seek issued afterwards wins, being the later command.
func (c *Controller) skipIntro(session *Session) {
	if intro, _ := session.Markers(); intro > 0 {
		_ = c.player.Seek(intro)
	}
}

// restartFeed re-arms the status feed under a fresh epoch so observations of
// a superseded stream cannot leak into the new one.
func (c *Controller) restartFeed() {
	epoch := c.epoch.Add(1)
	c.player.StopStatusFeed()
	c.player.StartStatusFeed(statusInterval, func(status player.Status) {
		if c.epoch.Load() != epoch {
			return
		}
		c.onTick(status)
	})
}

// Stop tears the session down, persisting progress first.
func (c *Controller) Stop() {
	c.escalator.Cancel()
	c.player.StopStatusFeed()

	c.mu.Lock()
	session := c.session
	cancel := c.cancel
	c.mu.Unlock()

	if session != nil {
		c.persist(session, true)
	}
	if cancel != nil {
		cancel()
	}
	_ = c.player.Close()
}

// TogglePause flips playback suspension, remembering that the viewer did it.
func (c *Controller) TogglePause() error {
	session := c.Session()
	if session == nil {
		return nil
	}

	session.setUserPaused(!session.UserPaused())
	if err := c.player.TogglePause(); err != nil {
		return err
	}

	// A user pause is never a stall; drop any pending escalation.
	if session.UserPaused() {
		c.escalator.Cancel()
		c.clearBuffering(session)
		c.transition(session, StatePaused)
	}
	return nil
}

// Seek jumps to an absolute position, clamped into [0, duration].
func (c *Controller) Seek(target float64) error {
	session := c.Session()
	if session == nil {
		return nil
	}

	_, duration := session.Progress()
	if duration > 0 {
		target = util.Clamp(target, 0, duration)
	} else if target < 0 {
		target = 0
	}

	c.mu.Lock()
	c.lastSeekAt = time.Now()
	c.mu.Unlock()

	// A seek voids any stall measurement in flight.
	c.escalator.Cancel()
	c.clearBuffering(session)

	return c.player.Seek(target)
}

// SetMarkers records intro/outro skip markers for the session and saves them
// right away, bypassing the save throttle.
func (c *Controller) SetMarkers(introEnd, outroStart float64) {
	session := c.Session()
	if session == nil {
		return
	}
	session.SetMarkers(introEnd, outroStart)
	c.persist(session, true)
}

// NextEpisode advances to the following episode on the active source.
func (c *Controller) NextEpisode() error {
	session := c.Session()
	if session == nil {
		return nil
	}
	return c.playEpisode(session, session.EpisodeIndex()+1)
}

// SelectEpisode jumps to an arbitrary episode. Sources ruled out earlier get
// another chance: a manual episode change resets the failed set.
func (c *Controller) SelectEpisode(index int) error {
	session := c.Session()
	if session == nil {
		return nil
	}
	session.Failed().Reset()
	return c.playEpisode(session, index)
}

func (c *Controller) playEpisode(session *Session, index int) error {
	if index < 0 || index >= session.EpisodeCount() {
		return &verr.ExhaustedError{Title: session.Title, Episode: index}
	}

	session.setEpisodeIndex(index)
	session.resetProgress()

	c.mu.Lock()
	c.hintSent = false
	c.mu.Unlock()

	streamURL, ok := session.ActiveURL()
	if !ok {
		return c.failover(session, &verr.SourceUnavailableError{SourceKey: session.Active().SourceKey})
	}

	session.setState(StateLoading)
	c.emit(Event{Kind: EventEpisodeAdvanced, EpisodeIndex: index, SourceKey: session.Active().SourceKey})

	if err := c.player.Load(streamURL); err != nil {
		return err
	}
	c.restartFeed()
	c.skipIntro(session)
	return nil
}

// onTick digests one status observation from the player.
func (c *Controller) onTick(status player.Status) {
	session := c.Session()
	if session == nil {
		return
	}

	if status.Err != nil {
		_ = c.handleVideoError(session, status.Err)
		return
	}

	session.setProgress(status.Position, status.Duration)

	if c.outroReached(session, status) {
		c.persist(session, true)
		log.Infof("outro reached, advancing %q past episode %d", session.Title, session.EpisodeIndex()+1)
		if err := c.playEpisode(session, session.EpisodeIndex()+1); err == nil {
			return
		}
	}

	switch {
	case status.Finished:
		c.onFinished(session)
		return

	case c.isStall(session, status):
		c.onStall(session)

	case status.Seeking:
		// transient; keep the current state

	case status.Loaded && status.Playing:
		c.clearBuffering(session)
		session.setUserPaused(false)
		c.transition(session, StatePlaying)

	case status.Loaded && !status.Playing && session.UserPaused():
		c.transition(session, StatePaused)
	}

	// the hint role belongs to the outro marker when one is set
	if _, outro := session.Markers(); outro == 0 &&
		status.Duration > 0 && status.Percentage() >= hintThreshold() {
		c.maybeHint(session)
	}

	c.persist(session, false)
}

// outroReached reports whether playback ran into the outro window, which
// triggers an immediate advance to the next episode when one exists.
func (c *Controller) outroReached(session *Session, status player.Status) bool {
	_, outro := session.Markers()
	if outro <= 0 || !status.Loaded || !status.Playing {
		return false
	}
	if status.Duration <= 0 || status.Position <= 0 {
		return false
	}
	if !viper.GetBool(key.PlayerAutoAdvance) {
		return false
	}
	if session.EpisodeIndex()+1 >= session.EpisodeCount() {
		return false
	}
	return status.Position >= status.Duration-outro
}

// isStall decides whether an observation is a genuine buffering stall as
// opposed to a user pause, a settling seek, or pre-load idling.
func (c *Controller) isStall(session *Session, status player.Status) bool {
	if !status.Loaded || status.Playing || !status.Buffering {
		return false
	}
	if status.Position <= 0 || status.Duration <= 0 {
		return false
	}
	if session.UserPaused() {
		return false
	}

	c.mu.Lock()
	recentSeek := !c.lastSeekAt.IsZero() && time.Since(c.lastSeekAt) < c.seekSettle
	c.mu.Unlock()

	return !recentSeek
}

// onStall marks the session buffering and arms the escalation timer. The
// timer is single-slot: repeated stall ticks extend nothing and re-arm nothing.
func (c *Controller) onStall(session *Session) {
	c.mu.Lock()
	alreadyStalling := !c.bufferingSince.IsZero()
	if !alreadyStalling {
		c.bufferingSince = time.Now()
	}
	c.mu.Unlock()

	if alreadyStalling {
		return
	}

	c.transition(session, StateBuffering)
	log.Infof("playback stalled on %s, escalation in %s", session.Active().SourceKey, c.escalateAfter)

	c.escalator.Schedule(c.escalateAfter, func() {
		c.escalate(session)
	})
}

func (c *Controller) clearBuffering(session *Session) {
	c.mu.Lock()
	wasStalling := !c.bufferingSince.IsZero()
	c.bufferingSince = time.Time{}
	c.mu.Unlock()

	if wasStalling {
		c.escalator.Cancel()
		session.resetRetries()
		log.Debugf("stall on %s recovered", session.Active().SourceKey)
	}
}

// escalate runs the retry ladder after a stall outlived the escalation delay:
// first seek back a few seconds, then reload the stream in place, and finally
// abandon the source.
func (c *Controller) escalate(session *Session) {
	c.mu.Lock()
	stillStalling := !c.bufferingSince.IsZero()
	c.bufferingSince = time.Time{}
	c.mu.Unlock()

	if !stillStalling || session.State() != StateBuffering {
		return
	}

	attempt := session.retries()
	switch {
	case attempt == 0:
		session.bumpRetries()
		position, _ := session.Progress()
		log.Infof("stall escalation: seeking back %.0fs on %s", seekBackStep, session.Active().SourceKey)
		_ = c.Seek(position - seekBackStep)

	case attempt == 1:
		session.bumpRetries()
		log.Infof("stall escalation: reloading stream on %s", session.Active().SourceKey)
		if streamURL, ok := session.ActiveURL(); ok {
			if c.verifier != nil {
				c.verifier.Invalidate(streamURL)
			}
			if err := c.player.Load(streamURL); err != nil {
				_ = c.handleVideoError(session, err)
			}
		}

	default:
		log.Warnf("stall escalation: abandoning %s after %d attempts", session.Active().SourceKey, attempt)
		_ = c.failover(session, &verr.SourceUnavailableError{SourceKey: session.Active().SourceKey})
	}
}

// handleVideoError classifies a playback failure and rules the source out
// unless the whole request was cancelled.
func (c *Controller) handleVideoError(session *Session, err error) error {
	if verr.IsCancelled(err) {
		return err
	}

	kind := verr.Classify(err)
	log.Warnf("playback error on %s (%s): %v", session.Active().SourceKey, kind, err)

	if streamURL, ok := session.ActiveURL(); ok && c.verifier != nil {
		c.verifier.Invalidate(streamURL)
	}

	return c.failover(session, err)
}

// failover abandons the active source and moves to the best remaining
// alternate, resuming near the last watched position. When nothing remains,
// the session fails with an exhaustion error exactly once.
func (c *Controller) failover(session *Session, cause error) error {
	session.Failed().Mark(session.Active().SourceKey)
	c.escalator.Cancel()
	c.clearBuffering(session)

	c.transition(session, StateSwitching)

	if !c.selectAlternate(c.runCtx(), session) {
		return c.failExhausted(session, cause)
	}

	active := session.Active()
	streamURL, _ := session.ActiveURL()

	if err := c.player.Load(streamURL); err != nil {
		return c.handleVideoError(session, err)
	}
	c.restartFeed()

	// resume slightly before the stall point so the viewer keeps continuity
	if position, _ := session.Progress(); position > seekBackStep {
		_ = c.player.Seek(position - seekBackStep)
	}

	log.Infof("failed over to %s for %q", active.SourceKey, session.Title)
	c.emit(Event{
		Kind:         EventSourceSwitched,
		State:        StateSwitching,
		SourceKey:    active.SourceKey,
		SourceName:   active.SourceName,
		EpisodeIndex: session.EpisodeIndex(),
	})
	return nil
}

// selectAlternate keeps asking the selector for the next best candidate until
// one passes verification or the pool runs out.
func (c *Controller) selectAlternate(ctx context.Context, session *Session) bool {
	for {
		candidate, ok := c.selector.SelectFallback(
			ctx,
			session.Candidates(),
			session.Active().SourceKey,
			session.Failed().Has,
			session.EpisodeIndex(),
		)
		if !ok {
			return false
		}

		if c.verifier != nil {
			if streamURL, ok := candidate.EpisodeURL(session.EpisodeIndex()); ok {
				verdict, err := c.verifier.Probe(ctx, streamURL)
				if err != nil || !verdict.Usable {
					session.Failed().Mark(candidate.SourceKey)
					continue
				}
				candidate.SetLatency(verdict.Latency)
			}
		}

		session.setActive(candidate)
		return true
	}
}

// failExhausted reports total source exhaustion, exactly once per session.
func (c *Controller) failExhausted(session *Session, cause error) error {
	c.mu.Lock()
	already := c.exhausted
	c.exhausted = true
	c.mu.Unlock()

	err := &verr.ExhaustedError{Title: session.Title, Episode: session.EpisodeIndex()}
	if already {
		return err
	}

	log.Errorf("all sources exhausted for %q: %v", session.Title, cause)
	c.transition(session, StateFailed)
	c.emit(Event{Kind: EventExhausted, State: StateFailed, Err: err})
	return err
}

// onFinished handles natural end of an episode: advance when configured and
// possible, otherwise end the session.
func (c *Controller) onFinished(session *Session) {
	c.escalator.Cancel()
	c.clearBuffering(session)
	c.persist(session, true)

	next := session.EpisodeIndex() + 1
	if viper.GetBool(key.PlayerAutoAdvance) && next < session.EpisodeCount() {
		log.Infof("auto-advancing %q to episode %d", session.Title, next+1)
		if err := c.playEpisode(session, next); err == nil {
			return
		}
	}

	if c.transition(session, StateEnded) {
		c.emit(Event{Kind: EventEnded, State: StateEnded, EpisodeIndex: session.EpisodeIndex()})
	}
}

// maybeHint emits the near-end hint once per episode.
func (c *Controller) maybeHint(session *Session) {
	if session.EpisodeIndex()+1 >= session.EpisodeCount() {
		return
	}

	c.mu.Lock()
	already := c.hintSent
	c.hintSent = true
	c.mu.Unlock()

	if !already {
		c.emit(Event{Kind: EventNextEpisodeHint, EpisodeIndex: session.EpisodeIndex() + 1})
	}
}

// persist saves watch progress, throttled unless forced.
func (c *Controller) persist(session *Session, force bool) {
	if !viper.GetBool(key.HistorySaveOnPlay) {
		return
	}

	c.mu.Lock()
	due := force || c.lastSavedAt.IsZero() || time.Since(c.lastSavedAt) >= c.saveEvery
	if due {
		c.lastSavedAt = time.Now()
	}
	c.mu.Unlock()

	if !due {
		return
	}

	position, duration := session.Progress()
	if position <= 0 && !force {
		return
	}

	active := session.Active()
	intro, outro := session.Markers()
	err := record.Save(&record.PlayRecord{
		SourceKey:     active.SourceKey,
		SourceName:    active.SourceName,
		TitleID:       active.ID,
		Title:         session.Title,
		EpisodeIndex:  session.EpisodeIndex(),
		EpisodesTotal: session.EpisodeCount(),
		Position:      position,
		Duration:      duration,
		IntroEnd:      intro,
		OutroStart:    outro,
	})
	if err != nil {
		log.Warnf("saving progress for %q: %v", session.Title, err)
	}
}

func (c *Controller) transition(session *Session, state State) bool {
	if !session.setState(state) {
		return false
	}
	c.emit(Event{Kind: EventStateChanged, State: state, EpisodeIndex: session.EpisodeIndex()})
	return true
}

func (c *Controller) runCtx() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx != nil {
		return c.ctx
	}
	return context.Background()
}

// emit delivers an event without ever blocking the control loop.
func (c *Controller) emit(event Event) {
	select {
	case c.events <- event:
	default:
		log.Debugf("event channel full, dropping %v", event.Kind)
	}
}
