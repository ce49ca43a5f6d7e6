package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pathology-bites/slidedex/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "slidedex",
	Short:         "Virtual slide search index and detail service",
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
