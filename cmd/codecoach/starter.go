package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ashureev/codecoach/internal/domain"
	"github.com/ashureev/codecoach/internal/starter"
	"github.com/spf13/cobra"
)

func starterCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "starter",
		Short: "Install starter files and manage the pending installation",
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	// withInstaller opens the app and an installer on a plain-directory
	// workspace seeded from WORKSPACE_FOLDERS.
	withInstaller := func(cmd *cobra.Command, fn func(*starter.Installer, *starter.LocalWorkspace) error) error {
		a, err := newApp(cmd.Context(), cliLogger(verbose))
		if err != nil {
			return err
		}
		defer a.Close()
		ws := starter.NewLocalWorkspace(a.cfg.Starter.WorkspaceFolders, os.Stdout)
		return fn(a.newInstaller(ws), ws)
	}

	var (
		open   []string
		folder string
	)
	install := &cobra.Command{
		Use:   "install REF",
		Short: "Install a starter archive (storage path or URL)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInstaller(cmd, func(inst *starter.Installer, _ *starter.LocalWorkspace) error {
				res, err := inst.Install(cmd.Context(), domain.StarterBundle{
					ArchiveRef:    strings.TrimSpace(args[0]),
					SuggestedOpen: open,
				}, "")
				if err != nil {
					return err
				}
				printResult(res)
				return nil
			})
		},
	}
	install.Flags().StringSliceVar(&open, "open", nil, "Files to open after install")

	resume := &cobra.Command{
		Use:   "resume",
		Short: "Complete the pending installation into the open folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withInstaller(cmd, func(inst *starter.Installer, ws *starter.LocalWorkspace) error {
				if folder != "" {
					if err := ws.OpenFolder(cmd.Context(), folder); err != nil {
						return err
					}
				}
				res, err := inst.Resume(cmd.Context())
				if err != nil {
					return err
				}
				if res == nil {
					fmt.Println("Nothing to resume (no pending installation or no open folder).")
					return nil
				}
				printResult(res)
				return nil
			})
		},
	}

	resume.Flags().StringVar(&folder, "folder", "", "Folder to install into (default: the folder chosen at install time)")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the pending installation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withInstaller(cmd, func(inst *starter.Installer, _ *starter.LocalWorkspace) error {
				p, err := inst.Pending(cmd.Context())
				if err != nil {
					return err
				}
				if p == nil {
					fmt.Println("No pending starter installation.")
					return nil
				}
				fmt.Printf("Archive:    %s\n", p.ArchiveRef)
				fmt.Printf("Folder:     %s\n", p.Folder)
				if p.AssignmentID != "" {
					fmt.Printf("Assignment: %s\n", p.AssignmentID)
				}
				if len(p.SuggestedOpen) > 0 {
					fmt.Printf("Open:       %s\n", strings.Join(p.SuggestedOpen, ", "))
				}
				fmt.Printf("Created:    %s\n", p.CreatedAt.Format("2006-01-02 15:04:05"))
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Abandon the pending installation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withInstaller(cmd, func(inst *starter.Installer, _ *starter.LocalWorkspace) error {
				if err := inst.ClearPending(cmd.Context()); err != nil {
					return err
				}
				fmt.Println("Pending starter installation cleared.")
				return nil
			})
		},
	}

	cmd.AddCommand(install, resume, status, clearCmd)
	return cmd
}

func printResult(res *starter.Result) {
	if res.Deferred {
		fmt.Printf("No folder open. Installation will finish after %s opens (run `codecoach starter resume`).\n", res.Dest)
		return
	}
	fmt.Printf("Installed %d files into %s\n", len(res.Files), res.Dest)
	for _, f := range res.Opened {
		fmt.Printf("  opened %s\n", f)
	}
}
