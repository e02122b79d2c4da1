// Package main is the entry point for the oriontv application.
package main

import (
	"github.com/samber/lo"

	"github.com/oriontv-cli/oriontv/cmd"
	"github.com/oriontv-cli/oriontv/config"
	"github.com/oriontv-cli/oriontv/log"
)

func main() {
	lo.Must0(config.Setup())
	lo.Must0(log.Setup())

	cmd.Execute()
}
