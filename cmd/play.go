package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/AlecAivazis/survey/v2"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oriontv-cli/oriontv/color"
	"github.com/oriontv-cli/oriontv/icon"
	"github.com/oriontv-cli/oriontv/key"
	"github.com/oriontv-cli/oriontv/log"
	"github.com/oriontv-cli/oriontv/playback"
	"github.com/oriontv-cli/oriontv/player"
	"github.com/oriontv-cli/oriontv/probe"
	"github.com/oriontv-cli/oriontv/query"
	"github.com/oriontv-cli/oriontv/ranking"
	"github.com/oriontv-cli/oriontv/record"
	"github.com/oriontv-cli/oriontv/search"
	"github.com/oriontv-cli/oriontv/source"
	"github.com/oriontv-cli/oriontv/style"
	"github.com/oriontv-cli/oriontv/util"
)

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().IntP("episode", "e", 0, "Episode number to play (1-based)")
	playCmd.Flags().BoolP("continue", "c", false, "Resume the most recently watched title")
	playCmd.Flags().StringP("source", "S", "", "Prefer the specified source for the initial stream")
	playCmd.Flags().Float64("skip-intro", 0, "Seconds from the start to skip on every episode")
	playCmd.Flags().Float64("skip-outro", 0, "Seconds from the end at which to auto-advance")
	playCmd.SetOut(os.Stdout)
}

// playCmd searches, ranks the available streams, and hands the best one to
// the player under failover supervision.
var playCmd = &cobra.Command{
	Use:   "play [query]",
	Short: "Find a title and play it with automatic source failover",
	Run: func(cmd *cobra.Command, args []string) {
		CheckDependencies()

		var (
			searchQuery  = strings.Join(args, " ")
			episodeIndex = lo.Must(cmd.Flags().GetInt("episode")) - 1
			preferredKey = lo.Must(cmd.Flags().GetString("source"))
			resumeFrom   float64
		)

		if lo.Must(cmd.Flags().GetBool("continue")) {
			latest, ok, err := record.Latest()
			handleErr(err)
			if !ok {
				handleErr(fmt.Errorf("nothing to continue: no playback records yet"))
			}

			searchQuery = latest.Title
			if episodeIndex < 0 {
				episodeIndex = latest.EpisodeIndex
			}
			// Resume on the source the record was saved from.
			if preferredKey == "" {
				preferredKey = latest.SourceKey
			}
			resumeFrom = latest.Position
		}

		if searchQuery == "" {
			handleErr(fmt.Errorf("a search query is required unless --continue is set"))
		}

		backends, err := source.FromConfig()
		handleErr(err)

		aggregator, err := search.NewAggregator(backends, search.NewCache())
		handleErr(err)
		defer aggregator.Close()

		erase := util.PrintErasable(fmt.Sprintf("%s Searching for %s...", icon.Get(icon.Progress), searchQuery))

		var result *search.Result
		if preferredKey != "" {
			result, err = aggregator.SearchPreferred(cmd.Context(), searchQuery, preferredKey)
		} else {
			result, err = aggregator.Search(cmd.Context(), searchQuery)
		}
		erase()
		handleErr(err)

		_ = query.Remember(searchQuery)

		title := pickTitle(result.Items)
		candidates := buildCandidates(result.Items, title, 0)

		if episodeIndex < 0 {
			episodeIndex = pickEpisode(candidates)
		}

		prober := probe.NewProber()
		measureCandidates(cmd.Context(), prober, candidates, episodeIndex)

		selector := ranking.NewSelector(prober)
		best, ok := selector.SelectFallback(cmd.Context(), candidates, "", nil, episodeIndex)
		if !ok {
			handleErr(fmt.Errorf("no source carries episode %d of %s", episodeIndex+1, title))
		}

		session := playback.NewSession(title, candidates, best, episodeIndex)
		applyMarkers(cmd, session, title, best.SourceKey)

		// The preferred-source fast path answers with one source; feed the
		// background fan-out's alternates into the pool as they settle so a
		// later failover has somewhere to go.
		if result.Enriched != nil {
			go func() {
				for alternates := range result.Enriched {
					session.AddCandidates(buildCandidates(alternates, title, len(candidates))...)
				}
			}()
		}

		runSession(cmd.Context(), session, selector, prober, resumeFrom)
	},
}

// pickTitle deduplicates titles across sources and asks the viewer to choose.
func pickTitle(items []*source.Item) string {
	titles := lo.Uniq(lo.Map(items, func(item *source.Item, _ int) string {
		return item.Title
	}))

	if len(titles) == 1 {
		return titles[0]
	}

	var choice string
	handleErr(survey.AskOne(&survey.Select{
		Message:  "Which title?",
		Options:  titles,
		PageSize: 15,
	}, &choice))
	return choice
}

// buildCandidates turns every item carrying the chosen title into a playback
// candidate, one per source, preserving discovery order for stable tie-breaks.
// startOrder offsets the order of alternates added to an existing pool.
func buildCandidates(items []*source.Item, title string, startOrder int) []*source.Candidate {
	matching := lo.Filter(items, func(item *source.Item, _ int) bool {
		return item.Title == title
	})
	matching = lo.UniqBy(matching, func(item *source.Item) string {
		return item.SourceKey
	})

	return lo.Map(matching, func(item *source.Item, order int) *source.Candidate {
		return source.NewCandidate(item, startOrder+order)
	})
}

func pickEpisode(candidates []*source.Candidate) int {
	episodes := util.Max(lo.Map(candidates, func(c *source.Candidate, _ int) int {
		return len(c.EpisodeURLs)
	})...)

	if episodes <= 1 {
		return 0
	}

	options := make([]string, episodes)
	for i := range options {
		options[i] = fmt.Sprintf("Episode %d", i+1)
	}

	var choice int
	handleErr(survey.AskOne(&survey.Select{
		Message:  "Which episode?",
		Options:  options,
		PageSize: 15,
	}, &choice))
	return choice
}

// applyMarkers restores saved intro/outro skip markers and lets the
// skip-intro/skip-outro flags override them for this run.
func applyMarkers(cmd *cobra.Command, session *playback.Session, title, sourceKey string) {
	var intro, outro float64
	if saved, ok, err := record.Find(title, sourceKey); err == nil && ok {
		intro, outro = saved.IntroEnd, saved.OutroStart
	}

	if flag := lo.Must(cmd.Flags().GetFloat64("skip-intro")); flag > 0 {
		intro = flag
	}
	if flag := lo.Must(cmd.Flags().GetFloat64("skip-outro")); flag > 0 {
		outro = flag
	}

	session.SetMarkers(intro, outro)
}

// measureCandidates probes every candidate's stream concurrently, filling in
// latency and resolution before the first ranking decision.
func measureCandidates(ctx context.Context, prober *probe.Prober, candidates []*source.Candidate, episodeIndex int) {
	inspector := probe.NewInspector()

	var wg sync.WaitGroup
	for _, candidate := range candidates {
		streamURL, ok := candidate.EpisodeURL(episodeIndex)
		if !ok {
			continue
		}

		wg.Add(1)
		go func(candidate *source.Candidate, streamURL string) {
			defer wg.Done()

			// Measure rather than Probe: these run in parallel, and the
			// single-flight probe slot belongs to the commit path.
			if verdict, err := prober.Measure(ctx, streamURL); err == nil && verdict.Usable {
				candidate.SetLatency(verdict.Latency)
			}
			candidate.SetResolution(inspector.DetectResolution(ctx, streamURL))
		}(candidate, streamURL)
	}
	wg.Wait()
}

// runSession supervises playback until the viewer quits or nothing is left to play.
func runSession(ctx context.Context, session *playback.Session, selector *ranking.Selector, prober *probe.Prober, resumeFrom float64) {
	if name := viper.GetString(key.Player); name != "" && name != "mpv" {
		handleErr(fmt.Errorf("unsupported player %q, only mpv is available", name))
	}

	mpv := player.NewMPV()
	controller := playback.NewController(mpv, selector, prober)

	handleErr(controller.Start(ctx, session))
	defer controller.Stop()

	active := session.Active()
	if settings, err := record.GetPlayerSettings(active.SourceKey, active.ID); err == nil && settings.Rate != 1.0 {
		_ = mpv.SetRate(settings.Rate)
	}
	defer func() {
		rate, volume, muted := mpv.Settings()
		if err := record.SavePlayerSettings(active.SourceKey, active.ID, &record.PlayerSettings{
			Rate:   rate,
			Volume: volume,
			Muted:  muted,
		}); err != nil {
			log.Warnf("save player settings: %v", err)
		}
	}()

	// the controller already jumped past the intro; only seek forward from there
	if intro, _ := session.Markers(); resumeFrom > intro {
		_ = controller.Seek(resumeFrom)
	}

	fmt.Printf("%s Playing %s from %s\n",
		icon.Get(icon.Play),
		style.Bold(session.Title),
		style.Fg(color.Yellow)(active.SourceName),
	)

	for {
		select {
		case <-ctx.Done():
			return

		case <-mpv.Wait():
			return

		case event := <-controller.Events():
			switch event.Kind {
			case playback.EventSourceSwitched:
				fmt.Printf("%s Switched to %s\n", icon.Get(icon.Source), style.Fg(color.Yellow)(event.SourceName))
			case playback.EventEpisodeAdvanced:
				fmt.Printf("%s Episode %d\n", icon.Get(icon.Play), event.EpisodeIndex+1)
			case playback.EventNextEpisodeHint:
				fmt.Println(style.Faint(fmt.Sprintf("episode %d is up next", event.EpisodeIndex+1)))
			case playback.EventExhausted:
				fmt.Printf("%s %v\n", icon.Get(icon.Fail), event.Err)
				return
			case playback.EventEnded:
				fmt.Printf("%s Finished %s\n", icon.Get(icon.Success), style.Bold(session.Title))
				return
			case playback.EventStateChanged:
				log.Debugf("session state: %s", event.State)
			}
		}
	}
}
