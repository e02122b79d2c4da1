package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"

	"github.com/oriontv-cli/oriontv/key"
	"github.com/oriontv-cli/oriontv/player"
	"github.com/oriontv-cli/oriontv/probe"
	"github.com/oriontv-cli/oriontv/ranking"
	"github.com/oriontv-cli/oriontv/source"
)

type fakePlayer struct {
	mu       sync.Mutex
	played   []string
	loaded   []string
	seeks    []float64
	paused   bool
	callback func(player.Status)
	exited   chan struct{}
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{exited: make(chan struct{})}
}

func (f *fakePlayer) Play(url, title string, headers map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, url)
	return nil
}

func (f *fakePlayer) Load(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = append(f.loaded, url)
	return nil
}

func (f *fakePlayer) Seek(seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, seconds)
	return nil
}

func (f *fakePlayer) SetPause(paused bool) error { f.paused = paused; return nil }
func (f *fakePlayer) TogglePause() error         { f.paused = !f.paused; return nil }
func (f *fakePlayer) SetRate(float64) error      { return nil }
func (f *fakePlayer) Position() (float64, error) { return 0, nil }
func (f *fakePlayer) Duration() (float64, error) { return 0, nil }
func (f *fakePlayer) Paused() (bool, error)      { return f.paused, nil }
func (f *fakePlayer) Running() bool              { return true }
func (f *fakePlayer) Wait() <-chan struct{}      { return f.exited }
func (f *fakePlayer) Close() error               { return nil }

func (f *fakePlayer) StartStatusFeed(_ time.Duration, callback func(player.Status)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callback = callback
}

func (f *fakePlayer) StopStatusFeed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callback = nil
}

// tick pushes one observation through the controller, as the real feed would.
func (f *fakePlayer) tick(status player.Status) {
	f.mu.Lock()
	callback := f.callback
	f.mu.Unlock()
	if callback != nil {
		callback(status)
	}
}

func (f *fakePlayer) seekCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seeks)
}

func (f *fakePlayer) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loaded)
}

type fakeVerifier struct {
	mu          sync.Mutex
	unusable    map[string]bool
	invalidated []string
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{unusable: make(map[string]bool)}
}

func (v *fakeVerifier) Probe(_ context.Context, streamURL string) (probe.Verdict, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return probe.Verdict{
		URL:     streamURL,
		Usable:  !v.unusable[streamURL],
		Latency: 100 * time.Millisecond,
	}, nil
}

func (v *fakeVerifier) Invalidate(streamURL string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.invalidated = append(v.invalidated, streamURL)
}

func sessionCandidate(sourceKey string, order, episodes int, tier source.ResolutionTier) *source.Candidate {
	urls := make([]string, episodes)
	for i := range urls {
		urls[i] = "http://" + sourceKey + ".example/ep.m3u8"
	}
	c := source.NewCandidate(&source.Item{
		SourceKey:  sourceKey,
		SourceName: sourceKey,
		ID:         "1",
		Title:      "Breaking Waves",
		Episodes:   urls,
	}, order)
	c.SetResolution(tier)
	c.SetLatency(100 * time.Millisecond)
	return c
}

func newTestController(fp *fakePlayer, fv *fakeVerifier) *Controller {
	c := NewController(fp, ranking.NewSelector(nil), fv)
	c.escalateAfter = 20 * time.Millisecond
	c.seekSettle = time.Millisecond
	c.saveEvery = time.Hour
	return c
}

func drain(events <-chan Event, kind EventKind) int {
	count := 0
	for {
		select {
		case e := <-events:
			if e.Kind == kind {
				count++
			}
		default:
			return count
		}
	}
}

func stallStatus() player.Status {
	return player.Status{Loaded: true, Playing: false, Buffering: true, Position: 120, Duration: 1440}
}

func playingStatus(position float64) player.Status {
	return player.Status{Loaded: true, Playing: true, Position: position, Duration: 1440}
}

func waitFor(t *testing.T, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return condition()
}

func TestControllerLifecycle(t *testing.T) {
	viper.Set(key.HistorySaveOnPlay, false)
	viper.Set(key.PlayerAutoAdvance, false)

	Convey("Given a session with a healthy source", t, func() {
		fp := newFakePlayer()
		fv := newFakeVerifier()
		controller := newTestController(fp, fv)

		best := sessionCandidate("alpha", 0, 12, source.Tier1080)
		alternate := sessionCandidate("beta", 1, 12, source.Tier720)
		session := NewSession("Breaking Waves", []*source.Candidate{best, alternate}, best, 0)

		So(controller.Start(context.Background(), session), ShouldBeNil)

		Convey("Playback starts on the chosen source", func() {
			So(fp.played, ShouldResemble, []string{"http://alpha.example/ep.m3u8"})
			So(session.State(), ShouldEqual, StateLoading)
		})

		Convey("A playing observation settles the session into playing", func() {
			fp.tick(playingStatus(10))
			So(session.State(), ShouldEqual, StatePlaying)
		})

		Convey("Seeks are clamped into the media bounds", func() {
			fp.tick(playingStatus(10))

			So(controller.Seek(99999), ShouldBeNil)
			So(fp.seeks[len(fp.seeks)-1], ShouldEqual, 1440)

			So(controller.Seek(-50), ShouldBeNil)
			So(fp.seeks[len(fp.seeks)-1], ShouldEqual, 0)
		})
	})
}

func TestBufferingEscalation(t *testing.T) {
	viper.Set(key.HistorySaveOnPlay, false)
	viper.Set(key.PlayerAutoAdvance, false)

	Convey("Given a session that starts stalling", t, func() {
		fp := newFakePlayer()
		fv := newFakeVerifier()
		controller := newTestController(fp, fv)

		best := sessionCandidate("alpha", 0, 12, source.Tier1080)
		alternate := sessionCandidate("beta", 1, 12, source.Tier720)
		session := NewSession("Breaking Waves", []*source.Candidate{best, alternate}, best, 0)

		So(controller.Start(context.Background(), session), ShouldBeNil)
		fp.tick(playingStatus(120))

		Convey("The first escalation seeks back a few seconds", func() {
			fp.tick(stallStatus())
			So(session.State(), ShouldEqual, StateBuffering)

			So(waitFor(t, func() bool { return fp.seekCount() == 1 }), ShouldBeTrue)
			So(fp.seeks[0], ShouldEqual, 115)
		})

		Convey("The second escalation reloads the stream in place", func() {
			fp.tick(stallStatus())
			So(waitFor(t, func() bool { return fp.seekCount() == 1 }), ShouldBeTrue)

			time.Sleep(5 * time.Millisecond) // let the seek grace lapse
			fp.tick(stallStatus())
			So(waitFor(t, func() bool { return fp.loadCount() == 1 }), ShouldBeTrue)
			So(fp.loaded[0], ShouldEqual, "http://alpha.example/ep.m3u8")
		})

		Convey("The third escalation abandons the source", func() {
			for fp.loadCount() < 1 {
				fp.tick(stallStatus())
				time.Sleep(30 * time.Millisecond)
			}

			fp.tick(stallStatus())
			So(waitFor(t, func() bool { return session.Active().SourceKey == "beta" }), ShouldBeTrue)
			So(session.Failed().Has("alpha"), ShouldBeTrue)
			So(drain(controller.Events(), EventSourceSwitched), ShouldEqual, 1)
		})

		Convey("A recovery before the deadline cancels the escalation", func() {
			fp.tick(stallStatus())
			fp.tick(playingStatus(125))

			time.Sleep(60 * time.Millisecond)
			So(fp.seekCount(), ShouldEqual, 0)
			So(session.State(), ShouldEqual, StatePlaying)
		})
	})

	Convey("Given a viewer who paused on purpose", t, func() {
		fp := newFakePlayer()
		fv := newFakeVerifier()
		controller := newTestController(fp, fv)

		best := sessionCandidate("alpha", 0, 12, source.Tier1080)
		session := NewSession("Breaking Waves", []*source.Candidate{best}, best, 0)

		So(controller.Start(context.Background(), session), ShouldBeNil)
		fp.tick(playingStatus(120))
		So(controller.TogglePause(), ShouldBeNil)

		Convey("A stall-shaped observation never escalates", func() {
			fp.tick(stallStatus())

			time.Sleep(60 * time.Millisecond)
			So(session.State(), ShouldEqual, StatePaused)
			So(fp.seekCount(), ShouldEqual, 0)
		})
	})
}

func TestFailover(t *testing.T) {
	viper.Set(key.HistorySaveOnPlay, false)
	viper.Set(key.PlayerAutoAdvance, false)

	Convey("Given a playback error on the active source", t, func() {
		fp := newFakePlayer()
		fv := newFakeVerifier()
		controller := newTestController(fp, fv)

		best := sessionCandidate("alpha", 0, 12, source.Tier1080)
		alternate := sessionCandidate("beta", 1, 12, source.Tier720)
		session := NewSession("Breaking Waves", []*source.Candidate{best, alternate}, best, 0)

		So(controller.Start(context.Background(), session), ShouldBeNil)
		fp.tick(playingStatus(300))

		Convey("The controller switches to the best alternate and resumes nearby", func() {
			fp.tick(player.Status{Loaded: true, Err: errors.New("mpv end-file: network")})

			So(session.Active().SourceKey, ShouldEqual, "beta")
			So(fp.loaded, ShouldResemble, []string{"http://beta.example/ep.m3u8"})
			So(fp.seeks[len(fp.seeks)-1], ShouldEqual, 295)
			So(fv.invalidated, ShouldContain, "http://alpha.example/ep.m3u8")
		})
	})

	Convey("Given every source has failed", t, func() {
		fp := newFakePlayer()
		fv := newFakeVerifier()
		controller := newTestController(fp, fv)

		only := sessionCandidate("alpha", 0, 12, source.Tier1080)
		session := NewSession("Breaking Waves", []*source.Candidate{only}, only, 0)

		So(controller.Start(context.Background(), session), ShouldBeNil)
		fp.tick(playingStatus(300))

		Convey("Exhaustion is reported exactly once", func() {
			fp.tick(player.Status{Loaded: true, Err: errors.New("mpv end-file: network")})
			fp.tick(player.Status{Loaded: true, Err: errors.New("mpv end-file: network")})

			So(session.State(), ShouldEqual, StateFailed)
			So(drain(controller.Events(), EventExhausted), ShouldEqual, 1)
		})
	})

	Convey("Given the preferred source fails its pre-play probe", t, func() {
		fp := newFakePlayer()
		fv := newFakeVerifier()
		fv.unusable["http://alpha.example/ep.m3u8"] = true
		controller := newTestController(fp, fv)

		best := sessionCandidate("alpha", 0, 12, source.Tier1080)
		alternate := sessionCandidate("beta", 1, 12, source.Tier720)
		session := NewSession("Breaking Waves", []*source.Candidate{best, alternate}, best, 0)

		Convey("Start falls over to the alternate before playing anything", func() {
			So(controller.Start(context.Background(), session), ShouldBeNil)
			So(fp.played, ShouldResemble, []string{"http://beta.example/ep.m3u8"})
			So(session.Active().SourceKey, ShouldEqual, "beta")
		})
	})

	Convey("Given alternates discovered after the session started", t, func() {
		fp := newFakePlayer()
		fv := newFakeVerifier()
		controller := newTestController(fp, fv)

		only := sessionCandidate("alpha", 0, 12, source.Tier1080)
		session := NewSession("Breaking Waves", []*source.Candidate{only}, only, 0)

		So(controller.Start(context.Background(), session), ShouldBeNil)
		fp.tick(playingStatus(300))

		late := sessionCandidate("beta", 1, 12, source.Tier720)
		duplicate := sessionCandidate("alpha", 2, 12, source.Tier720)
		session.AddCandidates(late, duplicate)

		Convey("The pool grows without duplicating sources", func() {
			pool := session.Candidates()
			So(pool, ShouldHaveLength, 2)
			So(pool[1].SourceKey, ShouldEqual, "beta")
		})

		Convey("Failover reaches the late arrival", func() {
			fp.tick(player.Status{Loaded: true, Err: errors.New("mpv end-file: network")})

			So(session.Active().SourceKey, ShouldEqual, "beta")
			So(fp.loaded, ShouldResemble, []string{"http://beta.example/ep.m3u8"})
		})
	})
}

func TestEpisodeFlow(t *testing.T) {
	viper.Set(key.HistorySaveOnPlay, false)

	Convey("Given auto-advance is enabled", t, func() {
		viper.Set(key.PlayerAutoAdvance, true)
		defer viper.Set(key.PlayerAutoAdvance, false)

		fp := newFakePlayer()
		fv := newFakeVerifier()
		controller := newTestController(fp, fv)

		best := sessionCandidate("alpha", 0, 3, source.Tier1080)
		session := NewSession("Breaking Waves", []*source.Candidate{best}, best, 0)

		So(controller.Start(context.Background(), session), ShouldBeNil)
		fp.tick(playingStatus(1400))

		Convey("Finishing an episode loads the next one", func() {
			fp.tick(player.Status{Loaded: true, Finished: true, Position: 1440, Duration: 1440})

			So(session.EpisodeIndex(), ShouldEqual, 1)
			So(fp.loadCount(), ShouldEqual, 1)
		})

		Convey("Finishing the last episode ends the session", func() {
			So(controller.SelectEpisode(2), ShouldBeNil)
			fp.tick(player.Status{Loaded: true, Finished: true, Position: 1440, Duration: 1440})

			So(session.State(), ShouldEqual, StateEnded)
			So(drain(controller.Events(), EventEnded), ShouldEqual, 1)
		})
	})

	Convey("Given playback approaching the end of an episode", t, func() {
		viper.Set(key.PlayerAutoAdvance, false)

		fp := newFakePlayer()
		fv := newFakeVerifier()
		controller := newTestController(fp, fv)

		best := sessionCandidate("alpha", 0, 3, source.Tier1080)
		session := NewSession("Breaking Waves", []*source.Candidate{best}, best, 0)

		So(controller.Start(context.Background(), session), ShouldBeNil)

		Convey("The next-episode hint fires once", func() {
			fp.tick(playingStatus(1380)) // ~96%
			fp.tick(playingStatus(1390))

			So(drain(controller.Events(), EventNextEpisodeHint), ShouldEqual, 1)
		})
	})

	Convey("Selecting an episode out of range fails", t, func() {
		viper.Set(key.PlayerAutoAdvance, false)

		fp := newFakePlayer()
		fv := newFakeVerifier()
		controller := newTestController(fp, fv)

		best := sessionCandidate("alpha", 0, 3, source.Tier1080)
		session := NewSession("Breaking Waves", []*source.Candidate{best}, best, 0)

		So(controller.Start(context.Background(), session), ShouldBeNil)
		So(controller.SelectEpisode(99), ShouldNotBeNil)
	})
}

func TestSkipMarkers(t *testing.T) {
	viper.Set(key.HistorySaveOnPlay, false)

	Convey("Given a session with skip markers", t, func() {
		fp := newFakePlayer()
		fv := newFakeVerifier()
		controller := newTestController(fp, fv)

		best := sessionCandidate("alpha", 0, 3, source.Tier1080)
		session := NewSession("Breaking Waves", []*source.Candidate{best}, best, 0)
		session.SetMarkers(90, 120)

		Convey("Starting playback jumps past the intro", func() {
			viper.Set(key.PlayerAutoAdvance, false)
			So(controller.Start(context.Background(), session), ShouldBeNil)

			So(fp.seekCount(), ShouldEqual, 1)
			So(fp.seeks[0], ShouldEqual, 90)
		})

		Convey("Advancing to the next episode jumps past the intro again", func() {
			viper.Set(key.PlayerAutoAdvance, false)
			So(controller.Start(context.Background(), session), ShouldBeNil)
			So(controller.NextEpisode(), ShouldBeNil)

			So(fp.seekCount(), ShouldEqual, 2)
			So(fp.seeks[1], ShouldEqual, 90)
		})

		Convey("Reaching the outro window advances instead of hinting", func() {
			viper.Set(key.PlayerAutoAdvance, true)
			defer viper.Set(key.PlayerAutoAdvance, false)
			So(controller.Start(context.Background(), session), ShouldBeNil)

			fp.tick(playingStatus(1330)) // inside the 120 s outro window of a 1440 s episode

			So(session.EpisodeIndex(), ShouldEqual, 1)
			So(drain(controller.Events(), EventNextEpisodeHint), ShouldEqual, 0)
		})

		Convey("Without auto-advance the outro window leaves playback alone", func() {
			viper.Set(key.PlayerAutoAdvance, false)
			So(controller.Start(context.Background(), session), ShouldBeNil)

			fp.tick(playingStatus(1330))

			So(session.EpisodeIndex(), ShouldEqual, 0)
			So(session.State(), ShouldEqual, StatePlaying)
		})

		Convey("Negative marker values are treated as unset", func() {
			session.SetMarkers(-10, -5)
			intro, outro := session.Markers()
			So(intro, ShouldEqual, 0)
			So(outro, ShouldEqual, 0)
		})
	})
}
