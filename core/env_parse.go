package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LookupFunc reads one variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Env reads typed values from a variable source. Unlike the package-level
// helpers it remembers the first malformed value so configuration loading
// can report it instead of silently using the default.
type Env struct {
	lookup LookupFunc
	err    *ConfigError
}

// NewEnv creates an Env reading from lookup. A nil lookup reads the process
// environment.
func NewEnv(lookup LookupFunc) *Env {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Env{lookup: lookup}
}

// MapEnv returns a LookupFunc backed by a map, for tests and embedding.
func MapEnv(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

// Err returns the first malformed value seen, or nil.
func (e *Env) Err() error {
	if e.err == nil {
		return nil
	}
	return e.err
}

func (e *Env) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *Env) invalid(key, value, reason string) {
	if e.err == nil {
		e.err = ErrInvalidValue(key, value, reason)
	}
}

// String returns the value of key or def when unset or empty.
func (e *Env) String(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

// Int returns key parsed as an integer.
func (e *Env) Int(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.invalid(key, v, "expected an integer")
		return def
	}
	return i
}

// Bool accepts true/1/yes/on and false/0/no/off, case-insensitively.
func (e *Env) Bool(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	b, valid := parseBool(v)
	if !valid {
		e.invalid(key, v, "expected true or false")
		return def
	}
	return b
}

func parseBool(v string) (value, ok bool) {
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// ParseBoolEnv parses an environment variable as a boolean.
// Returns the default value if the variable is not set or cannot be parsed.
func ParseBoolEnv(key string, defaultValue bool) bool {
	return NewEnv(nil).Bool(key, defaultValue)
}

// describe formats a variable for error messages.
func describe(key, value string) string {
	return fmt.Sprintf("%s=%q", key, value)
}
