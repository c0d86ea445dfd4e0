package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the catalog",
		Long:  `Loads the catalog, compiles every domain template and checks its guards and captions.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.newService(nil)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			if err := svc.Validate(); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			infos := svc.Domains()
			queryTypes := 0
			for _, info := range infos {
				queryTypes += len(info.QueryTypes)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog is valid: %d domains, %d query types\n", len(infos), queryTypes)
			return nil
		},
	}
}
