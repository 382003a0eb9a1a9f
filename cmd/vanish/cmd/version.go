package cmd

import (
	"fmt"
	"runtime"

	"github.com/MeKo-Tech/vanish/internal/version"
	"github.com/spf13/cobra"
)

// versionCmd prints build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, version.String())
		_, _ = fmt.Fprintf(out, "  go:       %s\n", runtime.Version())
		_, _ = fmt.Fprintf(out, "  platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
