// Package config is the configuration surface of a rely container.
//
// Options can be taken from defaults, from the environment (and
// dotenv files), or from a setup file which also carries the
// dependency definitions to populate the container with.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	// EnvBaseDirectory overrides Options.BaseDirectory.
	EnvBaseDirectory = "RELY_BASE_DIR"

	// EnvAutoRequire overrides Options.AutoRequire.
	EnvAutoRequire = "RELY_AUTO_REQUIRE"
)

// Options are the options recognized at container construction.
type Options struct {
	// BaseDirectory is the directory relative paths resolve
	// against. Defaults to the working directory.
	BaseDirectory string

	// AutoRequire controls whether unknown names are imported.
	AutoRequire bool
}

// Default returns the default options.
func Default() Options {
	opts := Options{AutoRequire: true}
	if wd, err := os.Getwd(); err == nil {
		opts.BaseDirectory = wd
	}
	return opts
}

// FromEnv returns the default options overridden by environment
// variables. The dotenv files are loaded first, without replacing
// variables already set. Missing dotenv files are ignored.
func FromEnv(envFiles ...string) (Options, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Options{}, fmt.Errorf("load %s: %w", file, err)
		}
	}
	opts := Default()
	if dir := os.Getenv(EnvBaseDirectory); dir != "" {
		opts.BaseDirectory = dir
	}
	if v := os.Getenv(EnvAutoRequire); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Options{}, fmt.Errorf("%s=%q: %w", EnvAutoRequire, v, err)
		}
		opts.AutoRequire = b
	}
	return opts, nil
}
