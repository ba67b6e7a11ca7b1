package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const manifestFile = "jobshell.yaml"

const minimalManifest = `version: "1.0"

defaults:
  kill_after: 5

# Example jobs - customize these for your project
jobs:
  build:
    description: "Build the project"
    command: "echo 'Add your build command here'"
    type: oneshot
    watch:
      - "**/*.go"

  test:
    description: "Run tests"
    command: "echo 'Add your test command here'"
    type: oneshot
    depends_on:
      - build

  dev:
    description: "Development server"
    command: "echo 'Add your server command here'; sleep 3600"
    type: daemon
    process_group: true

# Groups are started together by 'jobshell up <group>'
groups:
  local:
    description: "Build, then run the development server"
    jobs:
      - build
      - dev
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a starter " + manifestFile,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyWorkingDir(); err != nil {
				return err
			}
			if err := handleInit(); err != nil {
				return err
			}
			fmt.Printf("Successfully created %s\n", manifestFile)
			fmt.Println("Edit this file to add your project's jobs, then run 'jobshell list'.")
			return nil
		},
	}
}

// handleInit writes the starter manifest, refusing to overwrite one
func handleInit() error {
	if _, err := os.Stat(manifestFile); err == nil {
		return fmt.Errorf("%s already exists", manifestFile)
	}
	if err := os.WriteFile(manifestFile, []byte(minimalManifest), 0644); err != nil {
		return fmt.Errorf("failed to create %s: %w", manifestFile, err)
	}
	return nil
}
