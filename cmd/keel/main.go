package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information - will be set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "keel",
		Short: "Keel JSON:API server",
		Long: `Keel serves a JSON:API 1.0 REST interface over PostgreSQL, generated
from declarative resource schemas. Resources declared in a YAML file get
full CRUD endpoints with filtering, sorting, pagination, sparse
fieldsets, compound documents, and atomic operation batches.`,
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
