package main

import (
	"github.com/spf13/cobra"

	"github.com/ips6/pkgrepo/repo"
)

// newRebuildLikeCmd builds both rebuild and refresh: this implementation
// makes no distinction between a periodic incremental refresh and an
// explicit full rebuild, since the catalog and search index have no
// partial-rebuild representation to refresh from.
func newRebuildLikeCmd(use, short string) *cobra.Command {
	var noCatalog, noIndex bool
	cmd := &cobra.Command{Use: use, Short: short}
	repoPath := addRepoFlag(cmd)
	publisher := addPublisherFlag(cmd)
	cmd.Flags().BoolVar(&noCatalog, "no-catalog", false, "skip rewriting catalog files")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "skip rebuilding the search index")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(*repoPath)
		if err != nil {
			return err
		}
		defer r.Close()

		if !noCatalog {
			publishers := []string{*publisher}
			if *publisher == "" {
				publishers, err = r.Publishers()
				if err != nil {
					return err
				}
			}
			for _, pub := range publishers {
				if err := r.RebuildCatalog(pub); err != nil {
					return err
				}
			}
		}
		if !noIndex {
			if err := r.RebuildIndex(); err != nil {
				return err
			}
		}
		return nil
	}
	return cmd
}

func init() {
	RootCmd.AddCommand(newRebuildLikeCmd("rebuild", "rewrite the catalog and/or search index from scratch"))
	RootCmd.AddCommand(newRebuildLikeCmd("refresh", "rewrite the catalog and/or search index from scratch"))
}
