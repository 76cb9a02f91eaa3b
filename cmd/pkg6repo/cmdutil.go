package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// addRepoFlag registers the -s/--repo flag every subcommand needing an
// open repository shares, and returns a pointer to its value.
func addRepoFlag(cmd *cobra.Command) *string {
	var path string
	cmd.Flags().StringVarP(&path, "repo", "s", "", "path to the repository")
	cmd.MarkFlagRequired("repo")
	return &path
}

// addPublisherFlag registers the -p/--publisher flag.
func addPublisherFlag(cmd *cobra.Command) *string {
	var publisher string
	cmd.Flags().StringVarP(&publisher, "publisher", "p", "", "publisher name")
	return &publisher
}

func requirePublisher(publisher string) error {
	if publisher == "" {
		return fmt.Errorf("-p/--publisher is required")
	}
	return nil
}
