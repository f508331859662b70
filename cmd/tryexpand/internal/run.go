package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dangazineu/tryexpand/internal/cargo"
	"github.com/dangazineu/tryexpand/internal/config"
	"github.com/dangazineu/tryexpand/internal/report"
	"github.com/dangazineu/tryexpand/internal/suite"
)

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [suite...]",
		Short: "Run the suites declared in the suite file",
		Long: `Run every suite declared in the suite file, or only the named ones.
Suites whose if condition evaluates to false are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			overwrite, _ := cmd.Flags().GetBool("overwrite")
			keep, _ := cmd.Flags().GetBool("keep-artifacts")

			dir, err := crateDir(cmd)
			if err != nil {
				return err
			}
			file, err := config.Load(configPath(cmd, dir))
			if err != nil {
				return err
			}

			selected, err := selectSuites(file, args)
			if err != nil {
				return err
			}

			env, err := config.FromProcess()
			if err != nil {
				return err
			}
			if overwrite {
				env.Overwrite = true
			}
			if keep {
				env.KeepArtifacts = true
			}

			conditions, err := config.NewConditionEvaluator()
			if err != nil {
				return err
			}
			environ := environMap(os.Environ())

			renderer := report.NewRenderer(cmd.OutOrStdout(), env.TruncateOutput)
			var failed []string
			for _, declared := range selected {
				ok, err := conditions.Evaluate(declared.If, environ)
				if err != nil {
					return fmt.Errorf("suite '%s': %w", declared.Name, err)
				}
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "Skipping suite %s: condition not met\n", declared.Name)
					continue
				}

				result, err := runSuite(cmd, declared, env, dir)
				if result != nil {
					renderer.Summary(result.Failed, result.Total)
				}
				if err != nil {
					if result == nil {
						return fmt.Errorf("suite '%s': %w", declared.Name, err)
					}
					failed = append(failed, declared.Name)
				}
			}

			if len(failed) > 0 {
				return fmt.Errorf("%d of %d suites failed: %s", len(failed), len(selected), strings.Join(failed, ", "))
			}
			return nil
		},
	}
	cmd.Flags().Bool("overwrite", false, "Create and update snapshots instead of comparing (same as TRYEXPAND=overwrite)")
	cmd.Flags().Bool("keep-artifacts", false, "Keep the synthesized projects for inspection")
	return cmd
}

func runSuite(cmd *cobra.Command, declared *config.Suite, env *config.Env, dir string) (*suite.Result, error) {
	s, err := suite.New(declared.Patterns, declared.PrimaryAction(), config.DefaultFileName+"#"+declared.Name, env,
		suite.WithDir(dir), suite.WithOutput(cmd.ErrOrStderr()))
	if err != nil {
		return nil, err
	}

	s.Args(declared.Args...).Envs(declared.Env)
	if post, ok := declared.PostAction(); ok {
		s.Then(post)
	}
	for _, filter := range declared.Filters {
		if filter.Stream == config.StreamStderr {
			s.FilterStderr(filter.Pattern, filter.Replacement)
		} else {
			s.FilterStdout(filter.Pattern, filter.Replacement)
		}
	}
	if declared.SkipOverwrite {
		s.SkipOverwrite()
	}

	expectation := cargo.Success
	if !declared.ExpectsPass() {
		expectation = cargo.Failure
	}
	return s.Run(cmd.Context(), expectation)
}

func selectSuites(file *config.File, names []string) ([]*config.Suite, error) {
	if len(names) == 0 {
		selected := make([]*config.Suite, 0, len(file.Suites))
		for i := range file.Suites {
			selected = append(selected, &file.Suites[i])
		}
		return selected, nil
	}

	selected := make([]*config.Suite, 0, len(names))
	for _, name := range names {
		declared, ok := file.Find(name)
		if !ok {
			return nil, fmt.Errorf("suite '%s' not found", name)
		}
		selected = append(selected, declared)
	}
	return selected, nil
}

func crateDir(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(dir)
}

func configPath(cmd *cobra.Command, dir string) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.DefaultFileName
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func environMap(environ []string) map[string]string {
	result := make(map[string]string, len(environ))
	for _, kv := range environ {
		if key, value, ok := strings.Cut(kv, "="); ok {
			result[key] = value
		}
	}
	return result
}
