package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/oriontv-cli/oriontv/color"
	"github.com/oriontv-cli/oriontv/icon"
	"github.com/oriontv-cli/oriontv/record"
	"github.com/oriontv-cli/oriontv/search"
	"github.com/oriontv-cli/oriontv/source"
	"github.com/oriontv-cli/oriontv/style"
)

func init() {
	rootCmd.AddCommand(favoritesCmd)
	favoritesCmd.SetOut(os.Stdout)
}

// favoritesCmd lists bookmarked titles.
var favoritesCmd = &cobra.Command{
	Use:     "favorites",
	Short:   "Manage bookmarked titles",
	Aliases: []string{"fav"},
	Run: func(cmd *cobra.Command, args []string) {
		favorites, err := record.Favorites()
		handleErr(err)

		if len(favorites) == 0 {
			cmd.Println(style.Faint("no favorites yet"))
			return
		}

		sorted := lo.Values(favorites)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].AddedAt > sorted[j].AddedAt
		})

		for _, favorite := range sorted {
			cmd.Printf("%s %s %s\n",
				icon.Get(icon.Star),
				style.Bold(favorite.String()),
				style.Fg(color.Yellow)(favorite.SourceName),
			)
		}
	},
}

func init() {
	favoritesCmd.AddCommand(favoritesAddCmd)
}

// favoritesAddCmd bookmarks the first search hit for a query.
var favoritesAddCmd = &cobra.Command{
	Use:   "add <query>",
	Short: "Bookmark the best match for a query",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		backends, err := source.FromConfig()
		handleErr(err)

		aggregator, err := search.NewAggregator(backends, nil)
		handleErr(err)
		defer aggregator.Close()

		result, err := aggregator.Search(cmd.Context(), strings.Join(args, " "))
		handleErr(err)

		item := result.Items[0]
		handleErr(record.AddFavorite(item))
		fmt.Printf("%s added %s from %s\n",
			icon.Get(icon.Success),
			style.Bold(item.Title),
			style.Fg(color.Yellow)(item.SourceName),
		)
	},
}

func init() {
	favoritesCmd.AddCommand(favoritesRemoveCmd)
	favoritesRemoveCmd.Flags().StringP("title", "t", "", "Title of the favorite to remove")
	favoritesRemoveCmd.Flags().StringP("source", "S", "", "Source key of the favorite to remove")
	lo.Must0(favoritesRemoveCmd.MarkFlagRequired("title"))
	lo.Must0(favoritesRemoveCmd.MarkFlagRequired("source"))
}

// favoritesRemoveCmd drops a bookmark.
var favoritesRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a bookmarked title",
	Run: func(cmd *cobra.Command, args []string) {
		title := lo.Must(cmd.Flags().GetString("title"))
		sourceKey := lo.Must(cmd.Flags().GetString("source"))

		favorites, err := record.Favorites()
		handleErr(err)

		favorite, ok := favorites[fmt.Sprintf("%s (%s)", title, sourceKey)]
		if !ok {
			handleErr(fmt.Errorf("no favorite %s (%s)", title, sourceKey))
		}

		handleErr(record.RemoveFavorite(favorite))
		fmt.Printf("%s removed %s\n", icon.Get(icon.Success), style.Fg(color.Yellow)(title))
	},
}
