package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keel-api/keel/internal/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate [resource-file]",
	Short: "Validate a resource declaration file",
	Long:  "Load the resource schemas and check structural rules and cross-resource references without starting the server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "resources.yaml"
		if len(args) == 1 {
			path = args[0]
		}

		registry, err := schema.LoadFile(path)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		types := registry.Types()
		fmt.Printf("OK: %d resource(s): %s\n", len(types), strings.Join(types, ", "))
		return nil
	},
}
