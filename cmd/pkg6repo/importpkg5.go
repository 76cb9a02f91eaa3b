package main

import (
	"github.com/spf13/cobra"

	"github.com/ips6/pkgrepo/action"
	"github.com/ips6/pkgrepo/repo"
)

// newImportPkg5Cmd migrates a publisher's catalogued packages from a
// source repository into a destination repository. The source is
// expected to already be in this module's on-disk repository format:
// no parser for the legacy CPython pkg(5) p5p archive format is
// implemented here, since no specification or sample of that binary
// format was available to ground an implementation against.
func newImportPkg5Cmd() *cobra.Command {
	var srcPath, dstPath, publisher string
	cmd := &cobra.Command{
		Use:   "import-pkg5",
		Short: "migrate a publisher's packages from a source repository into a destination repository",
	}
	cmd.Flags().StringVarP(&srcPath, "source", "s", "", "source repository path")
	cmd.MarkFlagRequired("source")
	cmd.Flags().StringVarP(&dstPath, "dest", "d", "", "destination repository path")
	cmd.MarkFlagRequired("dest")
	cmd.Flags().StringVarP(&publisher, "publisher", "p", "", "publisher to migrate")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		src, err := repo.Open(srcPath)
		if err != nil {
			return err
		}
		defer src.Close()
		dst, err := repo.Open(dstPath)
		if err != nil {
			return err
		}
		defer dst.Close()

		publishers := []string{publisher}
		if publisher == "" {
			publishers, err = src.Publishers()
			if err != nil {
				return err
			}
		}

		for _, pub := range publishers {
			if !dst.HasPublisher(pub) {
				if err := dst.AddPublisher(pub); err != nil {
					return err
				}
			}
			if err := migratePublisher(src, dst, pub); err != nil {
				return err
			}
		}
		return nil
	}
	return cmd
}

func migratePublisher(src, dst *repo.Repository, publisher string) error {
	cat, err := src.Catalog(publisher)
	if err != nil {
		return err
	}

	for _, stem := range cat.Stems() {
		for _, version := range cat.Versions(stem) {
			m, err := src.ReadManifest(publisher, stem, version)
			if err != nil {
				return err
			}

			txn, err := dst.Begin(publisher)
			if err != nil {
				return err
			}
			if err := migratePayloads(src, dst, m); err != nil {
				txn.Abort()
				return err
			}
			if err := txn.AddManifest(m); err != nil {
				txn.Abort()
				return err
			}
			if err := txn.Commit(); err != nil {
				return err
			}
		}
	}
	return nil
}

// migratePayloads copies every File action's blob from src's store into
// dst's store, so the replayed manifest's digests resolve without a
// prototype directory.
func migratePayloads(src, dst *repo.Repository, m action.Manifest) error {
	for _, a := range m.Actions {
		if a.Kind != action.KindFile {
			continue
		}
		d, err := a.Digest()
		if err != nil {
			return err
		}
		if dst.Blobs().Exists(d) {
			continue
		}
		r, err := src.Blobs().Open(d)
		if err != nil {
			return err
		}
		_, err = dst.Blobs().Insert(r)
		r.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func init() {
	RootCmd.AddCommand(newImportPkg5Cmd())
}
