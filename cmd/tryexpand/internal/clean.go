package internal

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dangazineu/tryexpand/internal/cargo"
	"github.com/dangazineu/tryexpand/internal/config"
	"github.com/dangazineu/tryexpand/internal/project"
)

func NewCleanCmd() *cobra.Command {
	var maxAge time.Duration
	var targetDir string
	var confirm bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove synthesized projects left behind by interrupted runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.FromProcess()
			if err != nil {
				return err
			}

			if targetDir == "" {
				targetDir = env.CargoTargetDir
			}
			if targetDir == "" {
				dir, err := crateDir(cmd)
				if err != nil {
					return err
				}
				meta, err := cargo.LoadMetadata(cmd.Context(), env.Cargo, dir)
				if err != nil {
					return err
				}
				targetDir = meta.TargetDirectory
			}

			logger := config.NewLogger(env.DebugLog, cmd.ErrOrStderr())
			cleaner := project.NewCleaner(filepath.Join(targetDir, filepath.FromSlash(project.ProjectsDir)), maxAge, logger)

			count, size, err := cleaner.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Found %d stale projects (%d bytes) in %s\n", count, size, cleaner.Root())
			if count == 0 {
				return nil
			}
			if !confirm {
				fmt.Fprintln(cmd.OutOrStdout(), "Use --confirm to remove them.")
				return nil
			}

			removed, err := cleaner.Clean()
			for _, dir := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", dir)
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 24*time.Hour, "Only remove projects older than this")
	cmd.Flags().StringVar(&targetDir, "target-dir", "", "The cargo target directory (defaults to CARGO_TARGET_DIR or cargo metadata)")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm the removal")
	return cmd
}
