package main

import (
	"github.com/spf13/cobra"

	"github.com/ips6/pkgrepo/repo"
)

func init() {
	var defaultPublisher string
	cmd := &cobra.Command{
		Use:   "create <path>",
		Short: "create a new repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Create(args[0], defaultPublisher)
			if err != nil {
				return err
			}
			return r.Close()
		},
	}
	cmd.Flags().StringVar(&defaultPublisher, "publisher", "", "default publisher to register")
	RootCmd.AddCommand(cmd)
}
