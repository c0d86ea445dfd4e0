// Package template provides a Handlebars engine for rendered-query captions.
//
// Each catalog domain may declare a caption per query type, a short human
// title for the SQL it produced, shown by the CLI and attached to worker
// results.
//
// Example usage:
//
//	engine := template.NewEngine()
//
//	caption, err := engine.Caption(
//	    "Funnel {{{join params.funnel_steps \" > \"}}}, {{{params.start_date}}} to {{{params.end_date}}}",
//	    template.CaptionData{
//	        Domain:    "clickstream",
//	        QueryType: "funnel",
//	        Params: map[string]interface{}{
//	            "funnel_steps": []string{"view", "cart", "purchase"},
//	            "start_date":   "2024-01-01",
//	            "end_date":     "2024-01-31",
//	        },
//	    })
//	// Funnel view > cart > purchase, 2024-01-01 to 2024-01-31
//
// Built-in helpers:
//   - uppercase, lowercase - change case
//   - default - fallback when the value is empty
//   - eq - compare the printed form of two values
//   - join - join a list with a separator
//   - len - length of a string or list
package template
