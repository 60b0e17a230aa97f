package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/melih/lighthouse/internal/version"
)

func runVersion(cmd *cobra.Command, _ []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "lighthouse %s (commit=%s, go=%s)\n",
		version.Version, version.Commit, version.GoVersion)
}
