package main

import (
	"runtime"

	"github.com/spf13/cobra"
)

var version = "1.0.0-dev (compiled manually)"

func newVersionCommand(gopts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `
The "version" command prints detailed information about the build environment
and the version of this software.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
		DisableAutoGenTag: true,
		Args:              cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			gopts.Printf("opscs3restore %s compiled with %v on %v/%v\n",
				version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
