// Package service renders catalog queries end to end.
//
// A render resolves the request parameters against the domain's declared
// kinds and defaults, checks the catalog's CEL guards, renders the domain
// template for the requested query type and normalizes the statement. When
// enabled, it also attaches a Handlebars caption and audits string
// parameters with libinjection. The audit only logs and counts findings;
// escaping already keeps parameters inside their literals.
//
// Example usage:
//
//	cat, _ := catalog.LoadDefault()
//	svc, err := service.New(cat, service.Config{
//	    DefaultDataset:   "analytics",
//	    GuardsEnabled:    true,
//	    MaxDateRangeDays: 365,
//	}, service.NewMetrics(prometheus.DefaultRegisterer), logger)
//
//	result, err := svc.Render(ctx, service.Request{
//	    Domain:    "orders",
//	    QueryType: "revenue_kpis",
//	    Params:    map[string]interface{}{"start_date": "2024-01-01", "end_date": "2024-01-31"},
//	})
package service
