// Package config provides configuration management for the sqltemplate node.
//
// Configuration is loaded from environment variables and validated on startup.
// Every option has a default suitable for local development; the embedded
// catalog is used unless CATALOG_PATH points at a directory holding a
// catalog.yaml manifest.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg)
package config
