package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list [domain]",
		Short: "List domains and query types, or the parameters of one domain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.newService(nil)
			if err != nil {
				return err
			}

			infos := svc.Domains()
			if len(args) == 1 {
				for _, info := range infos {
					if info.Name != args[0] {
						continue
					}
					if jsonOutput {
						return writeJSON(cmd, info)
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintf(tw, "%s\t%s\n", info.Name, info.Description)
					fmt.Fprintf(tw, "query types:\t%s\n\n", strings.Join(info.QueryTypes, ", "))
					fmt.Fprintln(tw, "PARAMETER\tKIND\tDEFAULT\tREQUIRED\tDESCRIPTION")
					for _, p := range info.Parameters {
						def := ""
						if p.Default != nil {
							def = fmt.Sprint(p.Default)
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\n", p.Name, p.Kind, def, p.Required, p.Description)
					}
					for _, name := range info.Undeclared {
						fmt.Fprintf(tw, "%s\t-\t\tfalse\tnot declared in the catalog\n", name)
					}
					return tw.Flush()
				}
				return fmt.Errorf("unknown domain %q", args[0])
			}

			if jsonOutput {
				return writeJSON(cmd, infos)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DOMAIN\tQUERY TYPES")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\n", info.Name, strings.Join(info.QueryTypes, ", "))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	return cmd
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
