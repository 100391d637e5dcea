package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagAllowEdit bool

var shareCmd = &cobra.Command{
	Use:   "share <project-id>",
	Short: "Create a share link for a project you own",
	Args:  cobra.ExactArgs(1),
	RunE:  runShare,
}

var unshareCmd = &cobra.Command{
	Use:   "unshare <project-id>",
	Short: "Revoke a project's share link",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnshare,
}

func init() {
	shareCmd.Flags().BoolVar(&flagAllowEdit, "edit", false, "Allow link holders to edit")
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(unshareCmd)
}

func runShare(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	_, url, err := s.projects.Share(cmd.Context(), flagUser, args[0], flagAllowEdit)
	if err != nil {
		return err
	}
	mode := "view only"
	if flagAllowEdit {
		mode = "editable"
	}
	fmt.Printf("\n  Shared (%s): %s\n", mode, url)
	return nil
}

func runUnshare(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.projects.Unshare(cmd.Context(), flagUser, args[0]); err != nil {
		return err
	}
	fmt.Println("\n  Share link revoked.")
	return nil
}
