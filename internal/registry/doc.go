// Package registry keeps one SQL template per domain and renders it by query type.
//
// Compiled templates are cached under (domain, BLAKE3 of the source), so
// re-registering a domain with changed source invalidates its entry.
// Lookups take a read lock; a cache miss compiles under the write lock.
//
// Example usage:
//
//	reg := registry.New(logger)
//	if err := reg.Register("orders", source, query.WithDefaults(defaults)); err != nil {
//	    log.Fatal(err)
//	}
//
//	rendered, err := reg.Render("orders", "revenue_kpis", ctx)
//	if errors.Is(err, query.ErrUnknownQueryType) {
//	    ...
//	}
package registry
