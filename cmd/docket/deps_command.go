package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docket/internal/daemonctl"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external tool availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := daemonctl.ResolveDependencies(ctx.configValue())
			if ctx.JSONMode() {
				return writeJSON(cmd, statuses)
			}

			rows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				state := "OK"
				if !status.Available {
					state = "MISSING"
					if status.Optional {
						state = "OPTIONAL"
					}
				}
				detail := status.Detail
				if detail == "" {
					detail = status.Description
				}
				rows = append(rows, []string{status.Name, status.Command, state, detail})
			}
			table := renderTable(
				[]string{"Dependency", "Command", "State", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprint(cmd.OutOrStdout(), table)
			return nil
		},
	}
}
