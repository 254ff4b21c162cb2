package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ashureev/codecoach/internal/profile"
	"github.com/spf13/cobra"
)

func profileCmd() *cobra.Command {
	var (
		courseID string
		asJSON   bool
		verbose  bool
	)
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Print the stored learning profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := cliLogger(verbose)
			a, err := newApp(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.profiles.Load(cmd.Context(), a.learnerID, courseID)
			if err != nil {
				return fmt.Errorf("load profile: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			}
			fmt.Print(profile.RenderMarkdown(nil, p))
			return nil
		},
	}
	cmd.Flags().StringVar(&courseID, "course", "", "Course ID for the per-course profile")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	return cmd
}
