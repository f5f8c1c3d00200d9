// Package config loads typed configuration from the environment.
//
// Values come from process environment variables, optionally seeded from one or
// more .env files through github.com/joho/godotenv, and are parsed into tagged
// structs with github.com/caarlos0/env/v11. Each struct type is parsed once and
// cached for the lifetime of the process.
//
//	type DispatchConfig struct {
//	    Workers int `env:"DISPATCH_WORKERS" envDefault:"4"`
//	}
//
//	var cfg DispatchConfig
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
// A struct that implements Validator is validated after parsing; invalid
// configuration is never cached. Use Reset between tests that change the
// environment.
package config
