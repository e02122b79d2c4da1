package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oriontv-cli/oriontv/color"
	"github.com/oriontv-cli/oriontv/icon"
	"github.com/oriontv-cli/oriontv/key"
	"github.com/oriontv-cli/oriontv/query"
	"github.com/oriontv-cli/oriontv/search"
	"github.com/oriontv-cli/oriontv/source"
	"github.com/oriontv-cli/oriontv/style"
	"github.com/oriontv-cli/oriontv/util"
	"github.com/oriontv-cli/oriontv/verr"
)

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().BoolP("json", "j", false, "Format the output as a JSON string")
	searchCmd.Flags().StringP("source", "S", "", "Query only the specified source")
	searchCmd.SetOut(os.Stdout)
}

// searchCmd queries every configured catalog backend and prints the merged results.
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search all configured catalog sources at once",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		searchQuery := strings.Join(args, " ")

		backends, err := source.FromConfig()
		handleErr(err)

		aggregator, err := search.NewAggregator(backends, search.NewCache())
		handleErr(err)
		defer aggregator.Close()

		var result *search.Result
		if preferred := lo.Must(cmd.Flags().GetString("source")); preferred != "" {
			result, err = aggregator.SearchPreferred(cmd.Context(), searchQuery, preferred)
		} else {
			result, err = aggregator.Search(cmd.Context(), searchQuery)
		}

		var noResults *verr.NoResultsError
		if errors.As(err, &noResults) {
			printSuggestions(cmd, searchQuery)
			os.Exit(1)
		}
		handleErr(err)

		_ = query.Remember(searchQuery)

		if lo.Must(cmd.Flags().GetBool("json")) {
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			lo.Must0(encoder.Encode(result.Items))
			return
		}

		printResults(cmd, result)
	},
}

func printResults(cmd *cobra.Command, result *search.Result) {
	found := util.Quantify(len(result.Items), "title found", "titles found")
	if result.Total > len(result.Items) {
		found += style.Faint(fmt.Sprintf(" of %d reported", result.Total))
	}
	cmd.Printf("%s %s\n\n", icon.Get(icon.Success), found)

	for _, item := range result.Items {
		label := item.Title
		if item.Year != "" {
			label += style.Faint(fmt.Sprintf(" (%s)", item.Year))
		}

		cmd.Printf("%s %s %s %s\n",
			icon.Get(icon.Source),
			style.Fg(color.Yellow)(item.SourceName),
			label,
			style.Faint(util.Quantify(len(item.Episodes), "episode", "episodes")),
		)
	}

	for sourceKey, err := range result.Errors {
		cmd.Printf("\n%s %s: %v\n", icon.Get(icon.Fail), style.Fg(color.Red)(sourceKey), err)
	}
}

func printSuggestions(cmd *cobra.Command, searchQuery string) {
	cmd.Printf("%s nothing found for %s\n", icon.Get(icon.Fail), style.Fg(color.Red)(searchQuery))

	if !viper.GetBool(key.SearchSuggestions) {
		return
	}

	suggestions, err := query.Suggest(searchQuery)
	if err != nil || len(suggestions) == 0 {
		return
	}

	cmd.Println(style.Faint("did you mean:"))
	for _, suggestion := range lo.Slice(suggestions, 0, 5) {
		cmd.Printf("  %s\n", style.Fg(color.Yellow)(suggestion))
	}
}
