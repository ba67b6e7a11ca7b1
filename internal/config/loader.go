package config

import (
	"fmt"
	"os"

	"jobshell.dev/internal/dirs"
)

// SearchPaths returns the manifest locations tried by LoadManifest, in
// priority order
func SearchPaths(customPath string) []string {
	return []string{
		customPath,
		"./jobshell.yaml",
		"./jobshell.yml",
		"./jobshell.toml",
		"./" + dirs.ConfigDir + "/jobs.yaml",
		"./" + dirs.ConfigDir + "/jobs.toml",
	}
}

// LoadManifest loads and validates a job manifest, then applies the
// project overrides file if one exists.
// It searches for the manifest in the following priority order:
// 1. Custom path (if provided)
// 2. ./jobshell.yaml, ./jobshell.yml, ./jobshell.toml (project root)
// 3. ./.jobshell/jobs.yaml, ./.jobshell/jobs.toml (hidden directory)
func LoadManifest(customPath string) (*Manifest, error) {
	searchPaths := SearchPaths(customPath)

	var lastError error
	for _, path := range searchPaths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); err != nil {
			lastError = err
			if path == customPath {
				return nil, fmt.Errorf("manifest %s: %w", path, err)
			}
			continue
		}

		manifest, err := ParseManifest(path)
		if err != nil {
			return nil, fmt.Errorf("failed to parse manifest at %s: %w", path, err)
		}

		if err := Validate(manifest); err != nil {
			return nil, fmt.Errorf("invalid manifest at %s: %w", path, err)
		}

		overrides, err := LoadOverrides(dirs.OverridesFile)
		if err != nil {
			return nil, err
		}
		if overrides != nil {
			ApplyOverrides(manifest, overrides)
		}

		return manifest, nil
	}

	validPaths := []string{}
	for _, path := range searchPaths {
		if path != "" {
			validPaths = append(validPaths, path)
		}
	}

	return nil, fmt.Errorf("no job manifest found in: %v (last error: %v)", validPaths, lastError)
}
