package cmd

import (
	"os"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/oriontv-cli/oriontv/color"
	"github.com/oriontv-cli/oriontv/icon"
	"github.com/oriontv-cli/oriontv/probe"
	"github.com/oriontv-cli/oriontv/source"
	"github.com/oriontv-cli/oriontv/style"
)

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

// sourcesCmd provides a parent command for managing catalog backends.
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect and verify the configured catalog sources",
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd)

	sourcesListCmd.Flags().BoolP("raw", "r", false, "Suppress header and metadata descriptions in the output")
	sourcesListCmd.SetOut(os.Stdout)
}

// sourcesListCmd displays a summary of all registered catalog backends.
var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Display all registered catalog sources",
	Run: func(cmd *cobra.Command, args []string) {
		backends, err := source.FromConfig()
		handleErr(err)

		printHeader := !lo.Must(cmd.Flags().GetBool("raw"))
		if printHeader {
			cmd.Println(style.New().Foreground(color.HiBlue).Bold(true).Render("Sources:"))
		}

		for _, backend := range backends {
			if printHeader {
				cmd.Printf("%s %s %s\n", icon.Get(icon.Source), backend.Key(), style.Faint(backend.Name()))
			} else {
				cmd.Println(backend.Key())
			}
		}
	},
}

func init() {
	sourcesCmd.AddCommand(sourcesProbeCmd)

	sourcesProbeCmd.Flags().StringP("query", "q", "a", "Query used to exercise each source")
	sourcesProbeCmd.SetOut(os.Stdout)
}

// sourcesProbeCmd runs a live health check against every backend.
var sourcesProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check which sources currently answer search requests",
	Run: func(cmd *cobra.Command, args []string) {
		backends, err := source.FromConfig()
		handleErr(err)

		prober := probe.NewProber()
		searchQuery := lo.Must(cmd.Flags().GetString("query"))

		for _, backend := range backends {
			start := time.Now()
			items, _, err := backend.Search(cmd.Context(), searchQuery)
			elapsed := time.Since(start).Round(time.Millisecond)

			if err != nil {
				cmd.Printf("%s %s %s %v\n", icon.Get(icon.Fail), backend.Key(), style.Faint(elapsed.String()), err)
				continue
			}

			cmd.Printf("%s %s %s %s\n",
				icon.Get(icon.Success),
				backend.Key(),
				style.Faint(elapsed.String()),
				style.Fg(color.Green)("ok"),
			)

			// spot-check the first stream URL too
			if len(items) > 0 && len(items[0].Episodes) > 0 {
				verdict, err := prober.Probe(cmd.Context(), items[0].Episodes[0])
				switch {
				case err != nil:
					cmd.Printf("  stream: %s %v\n", style.Fg(color.Red)("probe aborted"), err)
				case verdict.Usable:
					cmd.Printf("  stream: %s %s\n", style.Fg(color.Green)("usable"), style.Faint(verdict.Latency.Round(time.Millisecond).String()))
				case verdict.StatusCode == 0:
					cmd.Printf("  stream: %s\n", style.Fg(color.Red)("unreachable"))
				default:
					cmd.Printf("  stream: %s %s\n", style.Fg(color.Red)("too slow"), style.Faint(verdict.Latency.Round(time.Millisecond).String()))
				}
			}
		}
	},
}
