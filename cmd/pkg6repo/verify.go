package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ips6/pkgrepo/internal/errcode"
	"github.com/ips6/pkgrepo/repo"
)

// newVerifyCmd registers the read-only consistency audit: every File
// action's digest checked against the blob store, and every stored blob
// checked against the set any manifest references. It reports orphaned
// blobs but never removes them.
func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "audit a repository's manifests and blob store for inconsistencies",
	}
	repoPath := addRepoFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(*repoPath)
		if err != nil {
			return err
		}
		defer r.Close()

		report, err := r.Verify()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "packages checked: %d\n", report.PackagesChecked)
		for _, mb := range report.MissingBlobs {
			fmt.Fprintf(out, "missing blob: %s references %s (%s)\n", mb.Fmri, mb.Path, mb.Digest)
		}
		for _, d := range report.CorruptBlobs {
			fmt.Fprintf(out, "corrupt blob: %s\n", d)
		}
		for _, d := range report.OrphanedBlobs {
			fmt.Fprintf(out, "orphaned blob: %s\n", d)
		}
		if len(report.MissingBlobs) > 0 || len(report.CorruptBlobs) > 0 {
			return errcode.ErrorCodeRepoCorruptLayout.WithArgs(fmt.Sprintf(
				"%d missing, %d corrupt blobs", len(report.MissingBlobs), len(report.CorruptBlobs)))
		}
		return nil
	}
	return cmd
}

func init() {
	RootCmd.AddCommand(newVerifyCmd())
}
