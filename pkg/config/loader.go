package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Validator is implemented by config structs that check their own invariants.
type Validator interface {
	Validate() error
}

var (
	mu     sync.RWMutex
	cached = make(map[reflect.Type]any)

	dotenvOnce sync.Once
)

// Load parses environment variables into v. The first call loads ./.env when
// present. Successful results are cached per type, so later calls for the same
// type return the cached copy without re-reading the environment.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dotenvOnce.Do(func() {
		// a missing .env is fine
		_ = godotenv.Load()
	})

	key := reflect.TypeFor[T]()

	mu.RLock()
	c, ok := cached[key]
	mu.RUnlock()
	if ok {
		*v = c.(T)
		return nil
	}

	mu.Lock()
	defer mu.Unlock()

	if c, ok := cached[key]; ok {
		*v = c.(T)
		return nil
	}

	var parsed T
	if err := env.Parse(&parsed); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	if val, ok := any(&parsed).(Validator); ok {
		if err := val.Validate(); err != nil {
			return errors.Join(ErrInvalidConfig, err)
		}
	}

	cached[key] = parsed
	*v = parsed
	return nil
}

// MustLoad works like Load but panics on failure.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// LoadEnv loads the given .env files into the process environment. Variables
// already set are not overridden, and earlier files win over later ones.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

// Reset drops every cached config.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	clear(cached)
}
