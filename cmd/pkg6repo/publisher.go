package main

import (
	"github.com/spf13/cobra"

	"github.com/ips6/pkgrepo/repo"
)

func init() {
	add := &cobra.Command{
		Use:   "add-publisher <name>",
		Short: "register a new publisher",
		Args:  cobra.ExactArgs(1),
	}
	repoPath := addRepoFlag(add)
	add.RunE = func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(*repoPath)
		if err != nil {
			return err
		}
		defer r.Close()
		return r.AddPublisher(args[0])
	}
	RootCmd.AddCommand(add)

	var noIndex bool
	remove := &cobra.Command{
		Use:   "remove-publisher <name>",
		Short: "deregister a publisher and remove its directory tree",
		Args:  cobra.ExactArgs(1),
	}
	remove.Flags().BoolVarP(&noIndex, "no-index", "n", false, "skip removing the publisher's packages from the search index")
	removeRepoPath := addRepoFlag(remove)
	remove.RunE = func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(*removeRepoPath)
		if err != nil {
			return err
		}
		defer r.Close()
		if !noIndex {
			if err := removePublisherFromIndex(r, args[0]); err != nil {
				return err
			}
		}
		return r.RemovePublisher(args[0])
	}
	RootCmd.AddCommand(remove)
}

// removePublisherFromIndex fast-removes every package currently
// catalogued under publisher so stale hits do not linger in the search
// index after its directory tree is gone.
func removePublisherFromIndex(r *repo.Repository, publisher string) error {
	cat, err := r.Catalog(publisher)
	if err != nil {
		return err
	}
	for _, stem := range cat.Stems() {
		for _, version := range cat.Versions(stem) {
			m, err := r.ReadManifest(publisher, stem, version)
			if err != nil {
				return err
			}
			fullFmri, ok := m.Fmri()
			if !ok {
				continue
			}
			if err := r.SearchIndex().FastRemove(fullFmri); err != nil {
				return err
			}
		}
	}
	return nil
}
