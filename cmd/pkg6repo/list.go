package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ips6/pkgrepo/api"
	"github.com/ips6/pkgrepo/repo"
)

func init() {
	var includeObsolete bool
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "list [pattern]",
		Short: "list packages known to a repository",
		Args:  cobra.MaximumNArgs(1),
	}
	repoPath := addRepoFlag(cmd)
	publisher := addPublisherFlag(cmd)
	cmd.Flags().BoolVar(&includeObsolete, "obsolete", false, "include obsoleted packages")
	cmd.Flags().IntVar(&page, "page", 0, "1-based page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "entries per page")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(*repoPath)
		if err != nil {
			return err
		}
		defer r.Close()

		opts := api.ListOptions{
			Publisher:       *publisher,
			IncludeObsolete: includeObsolete,
			Page:            page,
			PageSize:        pageSize,
		}
		if len(args) == 1 {
			opts.StemPattern = args[0]
		}

		entries, err := api.New(r).List(opts)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, e := range entries {
			if e.Obsolete {
				fmt.Fprintf(out, "%s\t(obsolete)\n", e.Fmri)
				continue
			}
			fmt.Fprintf(out, "%s\t%s\n", e.Fmri, e.Summary)
		}
		return nil
	}
	RootCmd.AddCommand(cmd)
}
