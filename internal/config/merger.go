package config

import (
	"fmt"
)

// mergeManifests combines a base manifest with imported manifests
// The base manifest provides the version and defaults
// Imported manifests contribute jobs and groups
// Returns an error if duplicate keys are found
func mergeManifests(base *Manifest, imports []*Manifest) (*Manifest, error) {
	result := &Manifest{
		Version:  base.Version,
		Defaults: base.Defaults,
		Jobs:     make(map[string]Job),
		Groups:   make(map[string]JobGroup),
	}

	for _, m := range append([]*Manifest{base}, imports...) {
		if err := mergeInto(result.Jobs, m.Jobs, "job"); err != nil {
			return nil, err
		}
		if err := mergeInto(result.Groups, m.Groups, "group"); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// mergeInto merges src into dst
// Returns error if duplicate names are found
func mergeInto[V any](dst, src map[string]V, kind string) error {
	for name, value := range src {
		if _, exists := dst[name]; exists {
			return fmt.Errorf("duplicate %s name '%s' found during merge", kind, name)
		}
		dst[name] = value
	}
	return nil
}
