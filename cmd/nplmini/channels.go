package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/najoast/nplmini/config"
	"github.com/najoast/nplmini/core"
)

func newChannelsCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Print the channel property table.",
		Long: "Print the priority and reliability of the 16 channels, either " +
			"the defaults or as configured by --config.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings := core.NewSettings()
			if configFile != "" {
				cfg, err := config.NewLoader().Load(configFile)
				if err != nil {
					return err
				}
				if err := cfg.Runtime.Apply(settings); err != nil {
					return err
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CHANNEL\tPRIORITY\tRELIABILITY\tDEFAULT")
			for id, p := range settings.Channels().Snapshot() {
				mark := ""
				if id == settings.DefaultChannel() {
					mark = "*"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", id, p.Priority, p.Reliability, mark)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "configuration file")
	return cmd
}
