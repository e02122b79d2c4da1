package cmd

import (
	"os"
	"runtime"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/oriontv-cli/oriontv/color"
	"github.com/oriontv-cli/oriontv/constant"
	"github.com/oriontv-cli/oriontv/style"
	"github.com/oriontv-cli/oriontv/version"
)

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.SetOut(os.Stdout)
	versionCmd.Flags().BoolP("short", "s", false, "Display only the version string without metadata")
}

// versionCmd displays application version and build metadata.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version and build metadata",
	Run: func(cmd *cobra.Command, args []string) {
		if lo.Must(cmd.Flags().GetBool("short")) {
			cmd.Println(constant.Version)
			return
		}

		defer version.Notify()

		cmd.Printf("%s %s\n%s\n",
			style.Bold(constant.OrionTV),
			style.Fg(color.Green)(constant.Version),
			style.Faint(runtime.GOOS+"/"+runtime.GOARCH),
		)
	},
}
