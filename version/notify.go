package version

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/oriontv-cli/oriontv/color"
	"github.com/oriontv-cli/oriontv/constant"
	"github.com/oriontv-cli/oriontv/icon"
	"github.com/oriontv-cli/oriontv/key"
	"github.com/oriontv-cli/oriontv/style"
	"github.com/oriontv-cli/oriontv/util"
)

// Notify displays a terminal alert if a more recent stable application version is available.
func Notify() {
	if !viper.GetBool(key.CliVersionCheck) {
		return
	}

	erase := util.PrintErasable(fmt.Sprintf("%s Checking if new version is available...", icon.Get(icon.Progress)))
	version, err := Latest()
	erase()
	if err == nil {
		comp, err := Compare(version, constant.Version)
		if err == nil && comp <= 0 {
			return
		}
	}

	fmt.Printf(`
%s New version is available %s %s
%s

`,
		style.Fg(color.Green)("▇▇▇"),
		style.Bold(version),
		style.Faint(fmt.Sprintf("(You're on %s)", constant.Version)),
		style.Faint("https://github.com/oriontv-cli/oriontv/releases/tag/v"+version),
	)
}
