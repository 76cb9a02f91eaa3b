package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"github.com/ips6/pkgrepo/repo"
)

func init() {
	RootCmd.AddCommand(newObsoletePackageCmd())
	RootCmd.AddCommand(newRestoreObsoletedCmd())
	RootCmd.AddCommand(newListObsoletedCmd())
	RootCmd.AddCommand(newSearchObsoletedCmd())
	RootCmd.AddCommand(newShowObsoletedCmd())
	RootCmd.AddCommand(newExportObsoletedCmd())
	RootCmd.AddCommand(newImportObsoletedCmd())
}

func newObsoletePackageCmd() *cobra.Command {
	var message, replacedBy string
	cmd := &cobra.Command{Use: "obsolete-package <fmri>", Short: "move a package out of the active catalog", Args: cobra.ExactArgs(1)}
	repoPath := addRepoFlag(cmd)
	publisher := addPublisherFlag(cmd)
	cmd.Flags().StringVarP(&message, "message", "m", "", "reason the package was obsoleted")
	cmd.Flags().StringVarP(&replacedBy, "replaced-by", "r", "", "replacement package FMRI")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := requirePublisher(*publisher); err != nil {
			return err
		}
		r, err := repo.Open(*repoPath)
		if err != nil {
			return err
		}
		defer r.Close()
		return r.ObsoletePackage(*publisher, args[0], message, replacedBy)
	}
	return cmd
}

func newRestoreObsoletedCmd() *cobra.Command {
	var noRebuild bool
	cmd := &cobra.Command{Use: "restore-obsoleted <fmri>", Short: "restore an obsoleted package to the active catalog", Args: cobra.ExactArgs(1)}
	repoPath := addRepoFlag(cmd)
	publisher := addPublisherFlag(cmd)
	cmd.Flags().BoolVar(&noRebuild, "no-rebuild", false, "skip triggering a search index rebuild even if the fast-update threshold is crossed")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := requirePublisher(*publisher); err != nil {
			return err
		}
		r, err := repo.Open(*repoPath)
		if err != nil {
			return err
		}
		defer r.Close()
		if err := r.RestoreObsoleted(*publisher, args[0]); err != nil {
			return err
		}
		if noRebuild {
			return nil
		}
		needsRebuild, err := r.SearchIndex().NeedsRebuild()
		if err != nil {
			return err
		}
		if needsRebuild {
			return r.RebuildIndex()
		}
		return nil
	}
	return cmd
}

func newListObsoletedCmd() *cobra.Command {
	var format string
	var noHeader bool
	var page, pageSize int
	cmd := &cobra.Command{Use: "list-obsoleted", Short: "list obsoleted packages"}
	repoPath := addRepoFlag(cmd)
	publisher := addPublisherFlag(cmd)
	cmd.Flags().StringVarP(&format, "format", "F", "table", "output format: table, json, or tsv")
	cmd.Flags().BoolVarP(&noHeader, "no-header", "H", false, "omit the table header")
	cmd.Flags().IntVar(&page, "page", 0, "1-based page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "entries per page")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := requirePublisher(*publisher); err != nil {
			return err
		}
		r, err := repo.Open(*repoPath)
		if err != nil {
			return err
		}
		defer r.Close()

		metas, err := r.ListObsoleted(*publisher)
		if err != nil {
			return err
		}
		metas = paginateObsoleted(metas, page, pageSize)
		return printObsoleted(cmd, format, noHeader, metas)
	}
	return cmd
}

func newSearchObsoletedCmd() *cobra.Command {
	var pattern string
	var limit int
	cmd := &cobra.Command{Use: "search-obsoleted", Short: "search obsoleted package FMRIs by glob pattern"}
	repoPath := addRepoFlag(cmd)
	publisher := addPublisherFlag(cmd)
	cmd.Flags().StringVarP(&pattern, "query", "q", "", "shell-style glob pattern matched against the FMRI")
	cmd.MarkFlagRequired("query")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := requirePublisher(*publisher); err != nil {
			return err
		}
		r, err := repo.Open(*repoPath)
		if err != nil {
			return err
		}
		defer r.Close()

		matcher, err := glob.Compile(pattern)
		if err != nil {
			return err
		}
		metas, err := r.ListObsoleted(*publisher)
		if err != nil {
			return err
		}
		var matched []repo.ObsoleteMetadata
		for _, m := range metas {
			if matcher.Match(m.Fmri) {
				matched = append(matched, m)
				if limit > 0 && len(matched) >= limit {
					break
				}
			}
		}
		return printObsoleted(cmd, "table", false, matched)
	}
	return cmd
}

func newShowObsoletedCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "show-obsoleted <fmri>", Short: "show one obsoleted package's metadata", Args: cobra.ExactArgs(1)}
	repoPath := addRepoFlag(cmd)
	publisher := addPublisherFlag(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := requirePublisher(*publisher); err != nil {
			return err
		}
		r, err := repo.Open(*repoPath)
		if err != nil {
			return err
		}
		defer r.Close()

		metas, err := r.ListObsoleted(*publisher)
		if err != nil {
			return err
		}
		for _, m := range metas {
			if m.Fmri == args[0] {
				return printObsoleted(cmd, "table", false, []repo.ObsoleteMetadata{m})
			}
		}
		return fmt.Errorf("obsoleted package %q not found", args[0])
	}
	return cmd
}

func newExportObsoletedCmd() *cobra.Command {
	var outPath, pattern string
	cmd := &cobra.Command{Use: "export-obsoleted", Short: "export obsoleted packages (metadata + manifest) to a file"}
	repoPath := addRepoFlag(cmd)
	publisher := addPublisherFlag(cmd)
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "destination file")
	cmd.MarkFlagRequired("output")
	cmd.Flags().StringVarP(&pattern, "query", "q", "", "restrict export to FMRIs matching this glob pattern")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := requirePublisher(*publisher); err != nil {
			return err
		}
		r, err := repo.Open(*repoPath)
		if err != nil {
			return err
		}
		defer r.Close()

		records, err := r.ExportObsoleted(*publisher)
		if err != nil {
			return err
		}
		if pattern != "" {
			matcher, err := glob.Compile(pattern)
			if err != nil {
				return err
			}
			var filtered []repo.ObsoletedRecord
			for _, rec := range records {
				if matcher.Match(rec.Metadata.Fmri) {
					filtered = append(filtered, rec)
				}
			}
			records = filtered
		}
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(outPath, data, 0o644)
	}
	return cmd
}

func newImportObsoletedCmd() *cobra.Command {
	var inPath string
	cmd := &cobra.Command{Use: "import-obsoleted", Short: "import a file previously produced by export-obsoleted"}
	repoPath := addRepoFlag(cmd)
	publisher := addPublisherFlag(cmd)
	cmd.Flags().StringVarP(&inPath, "input", "i", "", "source file")
	cmd.MarkFlagRequired("input")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := requirePublisher(*publisher); err != nil {
			return err
		}
		r, err := repo.Open(*repoPath)
		if err != nil {
			return err
		}
		defer r.Close()

		data, err := os.ReadFile(inPath)
		if err != nil {
			return err
		}
		var records []repo.ObsoletedRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return err
		}
		return r.ImportObsoleted(*publisher, records)
	}
	return cmd
}

func paginateObsoleted(metas []repo.ObsoleteMetadata, page, pageSize int) []repo.ObsoleteMetadata {
	if page <= 0 || pageSize <= 0 {
		return metas
	}
	start := (page - 1) * pageSize
	if start >= len(metas) {
		return nil
	}
	end := start + pageSize
	if end > len(metas) {
		end = len(metas)
	}
	return metas[start:end]
}

func printObsoleted(cmd *cobra.Command, format string, noHeader bool, metas []repo.ObsoleteMetadata) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(metas)
	case "tsv":
		if !noHeader {
			fmt.Fprintln(out, "FMRI\tOBSOLESCENCE-DATE\tDEPRECATION-MESSAGE\tOBSOLETED-BY")
		}
		for _, m := range metas {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", m.Fmri, m.ObsolescenceDate, m.DeprecationMessage, strings.Join(m.ObsoletedBy, ","))
		}
		return nil
	default:
		if !noHeader {
			fmt.Fprintln(out, "FMRI                                          OBSOLESCENCE-DATE      DEPRECATION-MESSAGE")
		}
		for _, m := range metas {
			fmt.Fprintf(out, "%-45s %-22s %s\n", m.Fmri, m.ObsolescenceDate, m.DeprecationMessage)
		}
		return nil
	}
}
