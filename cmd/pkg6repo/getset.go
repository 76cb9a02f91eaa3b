package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ips6/pkgrepo/repo"
)

func init() {
	get := &cobra.Command{
		Use:   "get [property]",
		Short: "print repository or publisher properties",
		Args:  cobra.MaximumNArgs(1),
	}
	getRepoPath := addRepoFlag(get)
	getPublisher := addPublisherFlag(get)
	get.RunE = func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(*getRepoPath)
		if err != nil {
			return err
		}
		defer r.Close()

		if *getPublisher != "" {
			if !r.HasPublisher(*getPublisher) {
				return fmt.Errorf("publisher %q not registered", *getPublisher)
			}
		}

		props, err := repositoryProperties(r)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			v, ok := props[args[0]]
			if !ok {
				return fmt.Errorf("unknown property %q", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		}
		for _, k := range sortedKeys(props) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", k, props[k])
		}
		return nil
	}
	RootCmd.AddCommand(get)

	set := &cobra.Command{
		Use:   "set <key>=<value>",
		Short: "set a repository or publisher property",
		Args:  cobra.ExactArgs(1),
	}
	setRepoPath := addRepoFlag(set)
	addPublisherFlag(set)
	set.RunE = func(cmd *cobra.Command, args []string) error {
		r, err := repo.Open(*setRepoPath)
		if err != nil {
			return err
		}
		defer r.Close()

		parts := strings.SplitN(args[0], "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("expected key=value, got %q", args[0])
		}
		return fmt.Errorf("property %q is not settable: pkg6repo only exposes read-only properties via get", parts[0])
	}
	RootCmd.AddCommand(set)
}

func repositoryProperties(r *repo.Repository) (map[string]string, error) {
	publishers, err := r.Publishers()
	if err != nil {
		return nil, err
	}
	hash, err := r.SearchIndex().FmriCatalogHash()
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"repository.root":         r.Root(),
		"repository.publishers":   strings.Join(publishers, ","),
		"repository.catalog.hash": hash,
	}, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
