package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dangazineu/tryexpand/internal/config"
)

func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a tryexpand.yml file",
		Long:  `Validate a tryexpand.yml file, including its filters and if conditions.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := crateDir(cmd)
			if err != nil {
				return err
			}

			file, err := config.Load(configPath(cmd, dir))
			if err != nil {
				return err
			}
			for _, declared := range file.Suites {
				line := fmt.Sprintf("  %s: %s", declared.Name, declared.Action)
				if declared.Then != "" {
					line += " then " + declared.Then
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Validation successful!")
			return nil
		},
	}
}
