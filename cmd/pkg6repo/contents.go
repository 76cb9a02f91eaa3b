package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ips6/pkgrepo/action"
	"github.com/ips6/pkgrepo/api"
	"github.com/ips6/pkgrepo/repo"
)

func init() {
	var actionType string
	cmd := &cobra.Command{
		Use:   "contents <fmri>",
		Short: "list the actions of a package",
		Args:  cobra.ExactArgs(1),
	}
	repoPath := addRepoFlag(cmd)
	publisher := addPublisherFlag(cmd)
	cmd.Flags().StringVarP(&actionType, "type", "t", "", "restrict to one action type (file, dir, link, depend, ...)")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := requirePublisher(*publisher); err != nil {
			return err
		}
		r, err := repo.Open(*repoPath)
		if err != nil {
			return err
		}
		defer r.Close()

		actions, err := api.New(r).Contents(*publisher, args[0], action.Kind(actionType))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, a := range actions {
			fmt.Fprintln(out, string(a.Kind), a.Path())
		}
		return nil
	}
	RootCmd.AddCommand(cmd)
}
