package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// doctypesCmd lists the configured document types.
var doctypesCmd = &cobra.Command{
	Use:   "doctypes",
	Short: "List supported document types and their fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, err := GetConfig().Profiles()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "TYPE\tSTRATEGY\tSATISFIES\tREQUIRED\tOPTIONAL")
		for _, p := range profiles.Profiles() {
			satisfies := make([]string, len(p.Satisfies))
			for i, s := range p.Satisfies {
				satisfies[i] = string(s)
			}
			required := make([]string, len(p.Required))
			for i, f := range p.Required {
				required[i] = string(f)
			}
			optional := make([]string, len(p.Optional))
			for i, f := range p.Optional {
				optional[i] = string(f)
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Type, p.Strategy,
				dash(strings.Join(satisfies, ",")), dash(strings.Join(required, ",")), dash(strings.Join(optional, ",")))
		}
		return tw.Flush()
	},
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(doctypesCmd)
}
