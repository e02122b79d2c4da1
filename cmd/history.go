package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/oriontv-cli/oriontv/color"
	"github.com/oriontv-cli/oriontv/icon"
	"github.com/oriontv-cli/oriontv/record"
	"github.com/oriontv-cli/oriontv/style"
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.SetOut(os.Stdout)
}

// historyCmd displays playback records, most recent first.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show playback history and watch progress",
	Run: func(cmd *cobra.Command, args []string) {
		records, err := record.Get()
		handleErr(err)

		if len(records) == 0 {
			cmd.Println(style.Faint("nothing watched yet"))
			return
		}

		sorted := lo.Values(records)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].SavedAt > sorted[j].SavedAt
		})

		for _, r := range sorted {
			cmd.Printf("%s %s %s %s\n",
				icon.Get(icon.Play),
				style.Bold(r.String()),
				style.Fg(color.Yellow)(r.SourceName),
				style.Faint(fmt.Sprintf("%.0f%%", r.Percentage())),
			)
		}
	},
}

func init() {
	historyCmd.AddCommand(historyRemoveCmd)
	historyRemoveCmd.Flags().StringP("title", "t", "", "Title of the record to remove")
	historyRemoveCmd.Flags().StringP("source", "S", "", "Source key of the record to remove")
	lo.Must0(historyRemoveCmd.MarkFlagRequired("title"))
	lo.Must0(historyRemoveCmd.MarkFlagRequired("source"))
}

// historyRemoveCmd deletes one playback record.
var historyRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a playback record",
	Run: func(cmd *cobra.Command, args []string) {
		title := lo.Must(cmd.Flags().GetString("title"))
		sourceKey := lo.Must(cmd.Flags().GetString("source"))

		found, ok, err := record.Find(title, sourceKey)
		handleErr(err)
		if !ok {
			handleErr(fmt.Errorf("no record for %s (%s)", title, sourceKey))
		}

		handleErr(record.Remove(found))
		fmt.Printf("%s removed %s\n", icon.Get(icon.Success), style.Fg(color.Yellow)(title))
	},
}
