// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/oneconcern/otarepo/pkg/model"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Describe the repository",
	Long:  `Prints the identity of the remote repository, its root namespaces and where its local copy lives.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustClient(ctx)
		if c == nil {
			return
		}
		table := uitable.New()
		table.AddRow("id:", c.ID())
		table.AddRow("name:", c.DisplayName())
		table.AddRow("endpoint:", c.Endpoint())
		table.AddRow("user:", c.User())
		table.AddRow("local root:", c.Files().Root())
		table.AddRow("root namespaces:", strings.Join(c.ListRootNamespaces(), ", "))
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), table)
	},
}

var authCmd = &cobra.Command{
	Use:   "auth <base namespace>",
	Short: "Tell the permission of the current user on a namespace",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustClient(ctx)
		if c == nil {
			return
		}
		p, err := c.UserAuthorization(ctx, args[0])
		if err != nil {
			fatalItemErr("failed to get user authorization", err)
			return
		}
		out := p.String()
		switch p {
		case model.PermissionWrite:
			out = color.GreenString(out)
		case model.PermissionNone:
			out = color.RedString(out)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd, authCmd)
}
