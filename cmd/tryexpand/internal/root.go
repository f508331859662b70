package internal

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dangazineu/tryexpand/internal/config"
)

func NewRootCmd() *cobra.Command {
	var configFile string
	var dir string

	cmd := &cobra.Command{
		Use:   "tryexpand",
		Short: "tryexpand snapshot-tests Rust macro expansions.",
		Long: `tryexpand runs cargo expand, check, run or test on small Rust source files and compares the normalized output against snapshot files stored next to them.
Suites are declared in a tryexpand.yml file at the root of the crate under test.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultFileName, "The suite file to use, relative to --dir.")
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "The directory of the crate under test (defaults to the working directory).")
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewCleanCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
