// Package config loads environment-based configuration into typed structs.
//
// Configuration structs declare their surface with `env` tags:
//
//	type BillingConfig struct {
//		SecretKey string `env:"STRIPE_SECRET_KEY,required"`
//		ReturnURL string `env:"BILLING_RETURN_URL,required"`
//	}
//
// Load reads a .env file once per process (if present) and then parses the
// process environment. Missing required variables fail the load explicitly;
// nothing is guessed or defaulted silently.
package config

import (
	"errors"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrNilPointer    = errors.New("nil pointer provided to config loader")
	ErrParsingConfig = errors.New("failed to parse environment variables into config")
)

// LoadEnv loads environment variables from the given files into the process
// environment. Already-set variables are not overridden, so real environment
// always wins over .env content.
func LoadEnv(filenames ...string) error {
	return godotenv.Load(filenames...)
}

// Load parses environment variables into the provided configuration struct.
// A .env file in the working directory is loaded first when present; its
// absence is not an error.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	// The .env file is optional; a missing file is the normal production case.
	_ = godotenv.Load()

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Use for configuration the
// application cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(err)
	}
}
