// Package config provides application configuration management.
//
// The config package loads configuration from a YAML file with RUNBOX_
// environment overrides and validates it. It covers the front end servers,
// the sandbox backend and image, run and cleanup timeouts, and logging.
// The sandbox isolation policy is fixed in code and has no settings here.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Sandbox image: %s\n", cfg.Sandbox.Image)
package config
