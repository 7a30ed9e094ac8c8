package main

import (
	"github.com/spf13/cobra"
)

// Set by the linker.
var (
	version = "dev"
	commit  = "none"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nplmini",
		Short: "Minimal NPL runtime: address parsing, runtime states and channels.",
		Long: "nplmini hosts named NPL runtime states that exchange activation " +
			"messages addressed by NPL file addresses such as " +
			"\"(worker1)script/hello.lua\".",
		SilenceUsage: true,
	}

	root.AddCommand(
		newParseCmd(),
		newChannelsCmd(),
		newRunCmd(),
		newVersionCmd(),
	)
	return root
}
