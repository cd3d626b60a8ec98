// Copyright © 2018 One Concern

package cmd

import (
	"context"

	"github.com/oneconcern/otarepo/pkg/repository"
	"github.com/spf13/cobra"
)

var namespaceCmd = &cobra.Command{
	Use:     "namespace",
	Short:   "Commands to manage namespaces",
	Aliases: []string{"ns"},
	Long: `Commands to manage the namespaces of a repository.

Root namespaces are the namespaces a repository is responsible for. Items are
published in namespaces below a root namespace.`,
}

// namespaceCommand runs an action taking a namespace as its single argument
func namespaceCommand(what string, action func(*repository.Client, context.Context, string) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustClient(ctx)
		if c == nil {
			return
		}
		if err := action(c, ctx, args[0]); err != nil {
			fatalItemErr("failed to "+what, err)
			return
		}
		infoLogger.Printf("%s: %s", what, args[0])
	}
}

var namespaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List namespaces",
	Long: `Lists the root namespaces of the repository.

With --all, lists every namespace. With --base, lists the base namespaces holding items.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustClient(ctx)
		if c == nil {
			return
		}
		var (
			namespaces []string
			err        error
		)
		switch {
		case namespaceFlags.all:
			namespaces, err = c.ListAllNamespaces(ctx)
		case namespaceFlags.base:
			namespaces, err = c.ListBaseNamespaces(ctx)
		default:
			namespaces = c.ListRootNamespaces()
		}
		if err != nil {
			fatalItemErr("failed to list namespaces", err)
			return
		}
		printList(cmd.OutOrStdout(), namespaces)
	},
}

var namespaceFlags struct {
	all  bool
	base bool
}

var namespaceChildrenCmd = &cobra.Command{
	Use:   "children <namespace>",
	Short: "List the direct children of a namespace",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustClient(ctx)
		if c == nil {
			return
		}
		children, err := c.ListNamespaceChildren(ctx, args[0])
		if err != nil {
			fatalItemErr("failed to list namespace children", err)
			return
		}
		printList(cmd.OutOrStdout(), children)
	},
}

var namespaceCreateCmd = &cobra.Command{
	Use:   "create <namespace>",
	Short: "Create a namespace below a root namespace",
	Args:  cobra.ExactArgs(1),
	Run:   namespaceCommand("create namespace", (*repository.Client).CreateNamespace),
}

var namespaceDeleteCmd = &cobra.Command{
	Use:   "delete <namespace>",
	Short: "Delete an empty namespace",
	Args:  cobra.ExactArgs(1),
	Run:   namespaceCommand("delete namespace", (*repository.Client).DeleteNamespace),
}

var rootNamespaceCreateCmd = &cobra.Command{
	Use:   "root-create <namespace>",
	Short: "Add a root namespace to the repository",
	Args:  cobra.ExactArgs(1),
	Run:   namespaceCommand("create root namespace", (*repository.Client).CreateRootNamespace),
}

var rootNamespaceDeleteCmd = &cobra.Command{
	Use:   "root-delete <namespace>",
	Short: "Remove a root namespace from the repository",
	Args:  cobra.ExactArgs(1),
	Run:   namespaceCommand("delete root namespace", (*repository.Client).DeleteRootNamespace),
}

func init() {
	namespaceListCmd.Flags().BoolVar(&namespaceFlags.all, "all", false, "List every namespace")
	namespaceListCmd.Flags().BoolVar(&namespaceFlags.base, "base", false, "List the base namespaces holding items")
	namespaceCmd.AddCommand(
		namespaceListCmd,
		namespaceChildrenCmd,
		namespaceCreateCmd,
		namespaceDeleteCmd,
		rootNamespaceCreateCmd,
		rootNamespaceDeleteCmd,
	)
	rootCmd.AddCommand(namespaceCmd)
}
