package config

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Validate performs validation on a parsed manifest
func Validate(manifest *Manifest) error {
	var errors []string

	if manifest.Version == "" {
		errors = append(errors, "version is required")
	}

	for i, importPath := range manifest.Imports {
		if importPath == "" {
			errors = append(errors, fmt.Sprintf("import at index %d cannot be empty", i))
		}
	}

	if manifest.Jobs == nil {
		errors = append(errors, "jobs map must be initialized")
	}

	for jobName, job := range manifest.Jobs {
		if err := validateJob(jobName, job, manifest.Jobs); err != nil {
			errors = append(errors, err.Error())
		}
	}

	for groupName, group := range manifest.Groups {
		if err := validateGroup(groupName, group, manifest.Jobs); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func validateJob(name string, job Job, allJobs map[string]Job) error {
	var errors []string

	if job.Description == "" {
		errors = append(errors, fmt.Sprintf("job '%s': description is required", name))
	}

	switch {
	case job.Command == "" && len(job.Argv) == 0:
		errors = append(errors, fmt.Sprintf("job '%s': command or argv is required", name))
	case job.Command != "" && len(job.Argv) > 0:
		errors = append(errors, fmt.Sprintf("job '%s': command and argv are mutually exclusive", name))
	}

	if job.Type != "" && job.Type != JobTypeOneShot && job.Type != JobTypeDaemon {
		errors = append(errors, fmt.Sprintf("job '%s': invalid type '%s' (must be 'oneshot' or 'daemon')", name, job.Type))
	}

	if job.Timeout < 0 {
		errors = append(errors, fmt.Sprintf("job '%s': timeout cannot be negative", name))
	}
	if job.KillAfter < 0 {
		errors = append(errors, fmt.Sprintf("job '%s': kill_after cannot be negative", name))
	}

	if job.ReadyURL != "" && job.Type != JobTypeDaemon {
		errors = append(errors, fmt.Sprintf("job '%s': ready_url is only valid for daemon jobs", name))
	}

	for _, pattern := range job.Watch {
		if !doublestar.ValidatePattern(pattern) {
			errors = append(errors, fmt.Sprintf("job '%s': invalid watch pattern '%s'", name, pattern))
		}
	}

	for paramName, param := range job.Parameters {
		if param.Type == "" {
			errors = append(errors, fmt.Sprintf("job '%s': parameter '%s' must specify a type", name, paramName))
		}
		if param.Description == "" {
			errors = append(errors, fmt.Sprintf("job '%s': parameter '%s' must have a description", name, paramName))
		}
	}

	for _, dep := range job.DependsOn {
		depJob, exists := allJobs[dep]
		if !exists {
			errors = append(errors, fmt.Sprintf("job '%s': dependency '%s' does not exist", name, dep))
			continue
		}
		if depJob.Type == JobTypeDaemon {
			errors = append(errors, fmt.Sprintf("job '%s': dependency '%s' is a daemon (only oneshot jobs allowed)", name, dep))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

func validateGroup(name string, group JobGroup, allJobs map[string]Job) error {
	var errors []string

	if group.Description == "" {
		errors = append(errors, fmt.Sprintf("group '%s': description is required", name))
	}

	if len(group.Jobs) == 0 {
		errors = append(errors, fmt.Sprintf("group '%s': must contain at least one job", name))
	}

	for _, jobName := range group.Jobs {
		if _, exists := allJobs[jobName]; !exists {
			errors = append(errors, fmt.Sprintf("group '%s': job '%s' does not exist", name, jobName))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}
