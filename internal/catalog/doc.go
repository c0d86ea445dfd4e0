// Package catalog loads the domain manifest: one SQL template per domain,
// its declared parameters, guards and captions.
//
// A catalog directory contains catalog.yaml and the template files it
// names. The default catalog (orders, clickstream, ab_tests,
// recommendations) is embedded in the binary.
//
//	version: 1
//	guards:
//	  - name: positive_limit
//	    expr: "!has(params.limit) || params.limit > 0"
//	    message: limit must be positive
//	domains:
//	  - name: orders
//	    template: orders.sql
//	    parameters:
//	      - name: limit
//	        kind: integer
//	        default: 100
//	    captions:
//	      revenue_kpis: "Revenue KPIs, {{params.start_date}} to {{params.end_date}}"
//
// Parameter kinds are string, integer, float, boolean, date and string[].
package catalog
