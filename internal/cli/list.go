package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the jobs and groups in the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyWorkingDir(); err != nil {
				return err
			}
			if code := cmdList(); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

func cmdList() int {
	manifest, _, _, err := bootstrap(globalConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var jobNames []string
	for name, job := range manifest.Jobs {
		if !job.Disabled {
			jobNames = append(jobNames, name)
		}
	}
	sort.Strings(jobNames)

	var groupNames []string
	for name := range manifest.Groups {
		groupNames = append(groupNames, name)
	}
	sort.Strings(groupNames)

	if len(jobNames) == 0 && len(groupNames) == 0 {
		fmt.Fprintln(os.Stderr, "No jobs or groups defined.")
		return 0
	}

	if len(jobNames) > 0 {
		// Compute column widths from data (no ANSI codes involved).
		// Include param label lengths in col1 so they never bleed into the TYPE column.
		col1 := len("JOB")
		col2 := len("TYPE")
		for _, name := range jobNames {
			if len(name) > col1 {
				col1 = len(name)
			}
			j := manifest.Jobs[name]
			if len(string(j.Type)) > col2 {
				col2 = len(string(j.Type))
			}
			for pn, p := range j.Parameters {
				var plainLabel string
				if p.Required {
					plainLabel = fmt.Sprintf("  --%s (required)", pn)
				} else if p.Default != nil {
					plainLabel = fmt.Sprintf("  --%s [default: %v]", pn, *p.Default)
				} else {
					plainLabel = fmt.Sprintf("  --%s", pn)
				}
				if len(plainLabel) > col1 {
					col1 = len(plainLabel)
				}
			}
		}

		// Header: color the words, pad with plain spaces so alignment is exact
		fmt.Printf("%s%s  %s%s  %s\n",
			color(colorBold, "JOB"), strings.Repeat(" ", col1-len("JOB")),
			color(colorBold, "TYPE"), strings.Repeat(" ", col2-len("TYPE")),
			color(colorBold, "DESCRIPTION"))

		for _, name := range jobNames {
			j := manifest.Jobs[name]
			fmt.Printf("%-*s  %-*s  %s\n", col1, name, col2, string(j.Type), j.Description)

			if len(j.Parameters) > 0 {
				var paramNames []string
				for pn := range j.Parameters {
					paramNames = append(paramNames, pn)
				}
				sort.Strings(paramNames)

				for _, pn := range paramNames {
					p := j.Parameters[pn]

					// Param rows: col1=label, col2=empty, col3=description.
					// Using %-*s for col1 ensures description aligns with DESCRIPTION header.
					var displayLabel string
					if p.Required {
						displayLabel = fmt.Sprintf("  --%s %s", pn, color(colorRed, "(required)"))
						plainLabel := fmt.Sprintf("  --%s (required)", pn)
						fmt.Printf("%s%s  %-*s  %s\n", displayLabel, strings.Repeat(" ", col1-len(plainLabel)), col2, "", p.Description)
					} else if p.Default != nil {
						displayLabel = fmt.Sprintf("  --%s [default: %v]", pn, *p.Default)
						fmt.Printf("%-*s  %-*s  %s\n", col1, displayLabel, col2, "", p.Description)
					} else {
						displayLabel = fmt.Sprintf("  --%s", pn)
						fmt.Printf("%-*s  %-*s  %s\n", col1, displayLabel, col2, "", p.Description)
					}
				}
			}
		}
	}

	if len(groupNames) > 0 {
		if len(jobNames) > 0 {
			fmt.Println()
		}

		col1 := len("GROUP")
		col2 := len("JOBS")
		for _, name := range groupNames {
			if len(name) > col1 {
				col1 = len(name)
			}
			if jobs := strings.Join(manifest.Groups[name].Jobs, ", "); len(jobs) > col2 {
				col2 = len(jobs)
			}
		}

		fmt.Printf("%s%s  %s%s  %s\n",
			color(colorBold, "GROUP"), strings.Repeat(" ", col1-len("GROUP")),
			color(colorBold, "JOBS"), strings.Repeat(" ", col2-len("JOBS")),
			color(colorBold, "DESCRIPTION"))

		for _, name := range groupNames {
			g := manifest.Groups[name]
			fmt.Printf("%-*s  %-*s  %s\n", col1, name, col2, strings.Join(g.Jobs, ", "), g.Description)
		}
	}

	return 0
}
