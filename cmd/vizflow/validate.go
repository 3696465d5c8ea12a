package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/vizflow/internal/scene"
	"github.com/gyaneshwarpardhi/vizflow/internal/spec"
)

var validateCmd = &cobra.Command{
	Use:   "validate [spec]",
	Short: "Check a spec and compile it once",
	Long:  `Parses and validates the spec, then compiles it and reports the size of the initial scene.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("spec")
		if len(args) > 0 {
			path = args[0]
		}
		items, err := runValidate(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%d scene items)\n", path, items)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(ctx context.Context, path string) (int, error) {
	loader, err := spec.NewLoader(path, nil)
	if err != nil {
		return 0, err
	}
	m, err := scene.Compile(ctx, loader.Spec(), scene.WithLogger(newLogger("warn")))
	if err != nil {
		return 0, err
	}
	return m.Snapshot().Count(), nil
}
