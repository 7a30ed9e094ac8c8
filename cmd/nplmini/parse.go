package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/najoast/nplmini/core"
)

type parsedAddress struct {
	Input     string `json:"input"`
	State     string `json:"state"`
	NID       string `json:"nid"`
	Path      string `json:"path"`
	DNS       string `json:"dns"`
	Remote    bool   `json:"remote"`
	Canonical string `json:"canonical"`
}

func newParseCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "parse ADDRESS...",
		Short: "Split NPL file addresses into their components.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]parsedAddress, 0, len(args))
			for _, arg := range args {
				addr := core.ParseAddress(arg)
				results = append(results, parsedAddress{
					Input:     arg,
					State:     addr.StateName,
					NID:       addr.NID,
					Path:      addr.RelativePath,
					DNS:       addr.DNSServerName,
					Remote:    addr.IsRemote(),
					Canonical: addr.String(),
				})
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INPUT\tSTATE\tNID\tPATH\tDNS\tCANONICAL")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.Input, dash(r.State), dash(r.NID), dash(r.Path), dash(r.DNS), r.Canonical)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
