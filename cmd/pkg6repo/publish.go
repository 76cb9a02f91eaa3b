package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ips6/pkgrepo/action"
	"github.com/ips6/pkgrepo/repo"
)

func init() {
	var manifestPath string
	cmd := &cobra.Command{
		Use:   "publish <prototype-dir>",
		Short: "publish a package version from a manifest and a staged payload tree",
		Args:  cobra.ExactArgs(1),
	}
	repoPath := addRepoFlag(cmd)
	publisher := addPublisherFlag(cmd)
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "path to the package manifest")
	cmd.MarkFlagRequired("manifest")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := requirePublisher(*publisher); err != nil {
			return err
		}
		r, err := repo.Open(*repoPath)
		if err != nil {
			return err
		}
		defer r.Close()

		data, err := os.ReadFile(manifestPath)
		if err != nil {
			return err
		}
		m, err := action.Parse(data, manifestPath)
		if err != nil {
			return err
		}

		txn, err := r.Begin(*publisher)
		if err != nil {
			return err
		}
		if err := txn.AddPayloadDir(args[0]); err != nil {
			txn.Abort()
			return err
		}
		if err := txn.AddManifest(m); err != nil {
			txn.Abort()
			return err
		}
		return txn.Commit()
	}
	RootCmd.AddCommand(cmd)
}
