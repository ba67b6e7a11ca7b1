package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// importWalker loads a manifest and, depth first, every file it imports.
// Each file is decoded once, so diamond-shaped imports are fine; a file
// that imports one of its own importers is an error.
type importWalker struct {
	stack  []string
	done   map[string]bool
	loaded []*Manifest
}

func (w *importWalker) load(path string) (*Manifest, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for %s: %w", path, err)
	}
	if i := slices.Index(w.stack, absPath); i >= 0 {
		chain := append(slices.Clone(w.stack[i:]), absPath)
		return nil, fmt.Errorf("circular import detected: %s", strings.Join(chain, " -> "))
	}

	w.stack = append(w.stack, absPath)
	defer func() { w.stack = w.stack[:len(w.stack)-1] }()

	manifest, err := decodeFile(absPath)
	if err != nil {
		return nil, err
	}
	w.done[absPath] = true

	importPaths, err := resolveImports(filepath.Dir(absPath), manifest.Imports)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve imports in %s: %w", path, err)
	}
	for _, importPath := range importPaths {
		if w.done[importPath] && !slices.Contains(w.stack, importPath) {
			continue
		}
		imported, err := w.load(importPath)
		if err != nil {
			return nil, err
		}
		w.loaded = append(w.loaded, imported)
	}
	return manifest, nil
}

// decodeFile reads a manifest, choosing TOML or YAML by file extension
func decodeFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file %s: %w", path, err)
	}

	var manifest Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("failed to parse TOML from %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("failed to parse YAML from %s: %w", path, err)
		}
	}
	return &manifest, nil
}

// resolveImports expands import patterns relative to baseDir. Patterns
// may use ** to match across directories. Every pattern must match.
func resolveImports(baseDir string, imports []string) ([]string, error) {
	var resolved []string
	for _, pattern := range imports {
		full := pattern
		if !filepath.IsAbs(full) {
			full = filepath.Join(baseDir, full)
		}

		matches, err := doublestar.FilepathGlob(full, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("import pattern '%s' matched no files", pattern)
		}
		sort.Strings(matches)

		for _, match := range matches {
			absMatch, err := filepath.Abs(match)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve absolute path for %s: %w", match, err)
			}
			if !slices.Contains(resolved, absMatch) {
				resolved = append(resolved, absMatch)
			}
		}
	}
	return resolved, nil
}

// ParseManifest decodes a YAML or TOML manifest, merges everything it
// imports and fills in defaults. It does not validate.
func ParseManifest(path string) (*Manifest, error) {
	w := &importWalker{done: make(map[string]bool)}
	manifest, err := w.load(path)
	if err != nil {
		return nil, err
	}

	if len(w.loaded) > 0 {
		manifest, err = mergeManifests(manifest, w.loaded)
		if err != nil {
			return nil, fmt.Errorf("failed to merge manifests: %w", err)
		}
	}

	applyDefaults(manifest)
	return manifest, nil
}

// applyDefaults merges manifest-level defaults with job-specific values
// Job-level values take precedence over manifest-level defaults
func applyDefaults(manifest *Manifest) {
	for jobName, job := range manifest.Jobs {
		if job.Type == "" {
			job.Type = JobTypeOneShot
		}

		if job.Timeout == 0 && manifest.Defaults.Timeout > 0 {
			job.Timeout = manifest.Defaults.Timeout
		}

		if job.KillAfter == 0 {
			job.KillAfter = manifest.Defaults.KillAfter
			if job.KillAfter == 0 {
				job.KillAfter = DefaultKillAfter
			}
		}

		if job.Shell == "" && manifest.Defaults.Shell != "" {
			job.Shell = manifest.Defaults.Shell
		}

		if job.ProcessGroup == nil {
			group := manifest.Defaults.ProcessGroup
			job.ProcessGroup = &group
		}

		// Merge environment variables (job-level overrides defaults)
		if len(manifest.Defaults.Env) > 0 {
			if job.Env == nil {
				job.Env = make(map[string]string)
			}
			for key, value := range manifest.Defaults.Env {
				if _, exists := job.Env[key]; !exists {
					job.Env[key] = value
				}
			}
		}

		manifest.Jobs[jobName] = job
	}
}
