package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
)

// ErrEnvResolution is returned when a job's environment references a
// variable that is not set
var ErrEnvResolution = errors.New("unresolved environment variable")

// ExpandEnv substitutes $VAR and ${VAR} in s using lookup. Unlike
// os.ExpandEnv a missing variable is an error; "$$" yields a literal "$".
func ExpandEnv(s string, lookup func(string) (string, bool)) (string, error) {
	var missing []string
	out := os.Expand(s, func(name string) string {
		if name == "$" {
			return "$"
		}
		value, ok := lookup(name)
		if !ok {
			missing = append(missing, name)
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrEnvResolution, strings.Join(missing, ", "))
	}
	return out, nil
}

// ResolveEnv expands every value of the job's env against lookup and
// returns them as sorted KEY=VALUE pairs
func (j Job) ResolveEnv(lookup func(string) (string, bool)) ([]string, error) {
	keys := make([]string, 0, len(j.Env))
	for key := range j.Env {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		value, err := ExpandEnv(j.Env[key], lookup)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", key, err)
		}
		pairs = append(pairs, key+"="+value)
	}
	return pairs, nil
}
