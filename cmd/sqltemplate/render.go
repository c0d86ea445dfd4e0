package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aescanero/dago-node-sqltemplate/internal/service"
)

func newRenderCmd(a *app) *cobra.Command {
	var (
		domain      string
		queryType   string
		pairs       []string
		paramsJSON  string
		showCaption bool
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one query",
		Long: `Renders the template of a domain for one query type and prints the SQL.

Parameters are given as --param name=value and converted to the kind the
catalog declares; list parameters take comma separated values.`,
		Example: `  sqltemplate render --domain orders --query-type revenue_kpis \
    --param dataset=analytics --param start_date=2024-01-01 --param end_date=2024-01-31`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(paramsJSON, pairs)
			if err != nil {
				return err
			}

			svc, err := a.newService(nil)
			if err != nil {
				return err
			}

			result, err := svc.Render(context.Background(), service.Request{
				Domain:    domain,
				QueryType: queryType,
				Params:    params,
			})
			if err != nil {
				return fmt.Errorf("render failed (%s): %w", service.ErrorKind(err), err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			if showCaption && result.Caption != "" {
				fmt.Fprintf(out, "-- %s\n", result.Caption)
			}
			fmt.Fprintln(out, result.SQL)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&domain, "domain", "", "Catalog domain")
	flags.StringVar(&queryType, "query-type", "", "Query type within the domain")
	flags.StringArrayVarP(&pairs, "param", "p", nil, "Parameter as name=value (repeatable)")
	flags.StringVar(&paramsJSON, "params", "", "Parameters as a JSON object; --param entries override it")
	flags.BoolVar(&showCaption, "caption", false, "Print the caption as a SQL comment above the query")
	flags.BoolVar(&jsonOutput, "json", false, "Print the full result as JSON")
	_ = cmd.MarkFlagRequired("domain")

	return cmd
}

// parseParams merges a JSON object with name=value pairs
func parseParams(paramsJSON string, pairs []string) (map[string]interface{}, error) {
	params := make(map[string]interface{})
	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
			return nil, fmt.Errorf("invalid --params: %w", err)
		}
	}

	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q: expected name=value", pair)
		}
		params[name] = value
	}
	return params, nil
}
