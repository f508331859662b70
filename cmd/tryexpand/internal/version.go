package internal

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of tryexpand",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info, ok := debug.ReadBuildInfo()
			if !ok {
				fmt.Fprintln(cmd.ErrOrStderr(), "could not read build info")
				return
			}
			v, err := versionFromBuildInfo(info)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tryexpand %s (%s)\n", v, info.GoVersion)
		},
	}
}

// versionFromBuildInfo prefers the module version and falls back to a
// pseudo-version built from VCS stamping, see
// https://go.dev/ref/mod#pseudo-versions.
func versionFromBuildInfo(info *debug.BuildInfo) (string, error) {
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version, nil
	}

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	revision, at := settings["vcs.revision"], settings["vcs.time"]
	if revision == "" && at == "" {
		return "", fmt.Errorf("version information is not available")
	}

	parts := []string{"v0.0.0"}
	if t, err := time.Parse(time.RFC3339, at); err == nil {
		parts = append(parts, t.UTC().Format("20060102150405"))
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	if revision != "" {
		parts = append(parts, revision)
	}
	version := strings.Join(parts, "-")
	if settings["vcs.modified"] == "true" {
		version += "+dirty"
	}
	return version, nil
}
