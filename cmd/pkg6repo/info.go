package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ips6/pkgrepo/api"
	"github.com/ips6/pkgrepo/repo"
)

func init() {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "print summary counts for a repository",
	}
	repoPath := addRepoFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(*repoPath)
		if err != nil {
			return err
		}
		defer r.Close()

		info, err := api.New(r).Info()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "publishers\t%d\n", info.Publishers)
		fmt.Fprintf(out, "packages\t%d\n", info.PackageCount)
		fmt.Fprintf(out, "versions\t%d\n", info.VersionCount)
		fmt.Fprintf(out, "fmri-catalog-hash\t%s\n", info.FmriCatalogHash)
		return nil
	}
	RootCmd.AddCommand(cmd)
}
