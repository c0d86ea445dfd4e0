// Package cel provides a CEL (Common Expression Language) evaluator for render guards.
//
// Guards are boolean expressions declared in the catalog that must hold
// before a template is rendered, such as a bounded date range. CEL is not
// Turing complete, so a guard always terminates.
//
// Example usage:
//
//	evaluator := cel.NewEvaluator()
//
//	vars := map[string]interface{}{
//	    "params": map[string]interface{}{
//	        "start_date": "2024-01-01",
//	        "end_date":   "2024-01-31",
//	    },
//	    "settings": map[string]interface{}{"max_date_range_days": 365},
//	}
//
//	ok, err := evaluator.Check(ctx, "params.start_date <= params.end_date", vars)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Variables:
//   - params: map of parameter name to value (lists are lists of strings)
//   - settings: service limits such as max_date_range_days
package cel
