// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"io"
	"time"

	"github.com/oneconcern/otarepo/pkg/model"
	"github.com/oneconcern/otarepo/pkg/repository"
	"github.com/spf13/cobra"
)

func listOptions() (repository.ListOptions, bool) {
	var opts repository.ListOptions
	if otarepoFlags.list.status != "" {
		s, err := model.ParseStatus(otarepoFlags.list.status)
		if err != nil {
			wrapFatalln("invalid status", err)
			return opts, false
		}
		opts.IncludeStatus = s
	}
	if otarepoFlags.list.itemType != "" {
		t := model.ItemType(otarepoFlags.list.itemType)
		if !t.IsValid() {
			wrapFatalWithCodef(1, "invalid item type %q", otarepoFlags.list.itemType)
			return opts, false
		}
		opts.ItemType = t
	}
	opts.LatestOnly = otarepoFlags.list.latest
	return opts, true
}

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List the items in a base namespace",
	Aliases: []string{"ls"},
	Example: `% otarepo list --namespace http://www.example.com/ns/a --status final --latest`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustClient(ctx)
		if c == nil {
			return
		}
		opts, ok := listOptions()
		if !ok {
			return
		}
		items, err := c.ListItems(ctx, otarepoFlags.item.namespace, opts)
		if err != nil {
			fatalItemErr("failed to list items", err)
			return
		}
		printItems(cmd.OutOrStdout(), items)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search items and entities",
	Long:  `Searches the items and the entities they define, matching a free text query.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustClient(ctx)
		if c == nil {
			return
		}
		opts, ok := listOptions()
		if !ok {
			return
		}
		results, err := c.Search(ctx, args[0], repository.SearchOptions(opts))
		if err != nil {
			fatalItemErr("failed to search", err)
			return
		}
		printSearchResults(cmd.OutOrStdout(), results)
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List all versions of the library of an item",
	Run: itemCommand(func(ctx context.Context, cmd *cobra.Command, c *repository.Client, item *model.RepositoryItem) {
		items, err := c.VersionHistory(ctx, item)
		if err != nil {
			fatalItemErr("failed to list versions", err)
			return
		}
		printItems(cmd.OutOrStdout(), items)
	}),
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the commits on an item",
	Run: itemCommand(func(ctx context.Context, cmd *cobra.Command, c *repository.Client, item *model.RepositoryItem) {
		history, err := c.History(ctx, item)
		if err != nil {
			fatalItemErr("failed to get history", err)
			return
		}
		printHistory(cmd.OutOrStdout(), history)
	}),
}

var whereUsedCmd = &cobra.Command{
	Use:   "where-used",
	Short: "List the items depending on an item or an entity",
	Example: `% otarepo where-used --uri 'otm://repo1/lib_1_0_0.otm?ns=http://www.example.com/ns/a/v01_00' --indirect
% otarepo where-used --entity Thing --entity-type ValueWithAttributes`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustClient(ctx)
		if c == nil {
			return
		}
		flags := otarepoFlags.whereUsed
		if flags.entity != "" {
			entity := model.EntityInfo{EntityName: flags.entity, EntityType: flags.entityType}
			items, err := c.EntityWhereUsed(ctx, entity, flags.indirect)
			if err != nil {
				fatalItemErr("failed to query entity users", err)
				return
			}
			printItems(cmd.OutOrStdout(), items)
			extended, err := c.EntityWhereExtended(ctx, entity)
			if err != nil {
				fatalItemErr("failed to query entity extensions", err)
				return
			}
			if len(extended) > 0 {
				printEntities(cmd.OutOrStdout(), extended)
			}
			return
		}
		item, ok := resolveItem(ctx, c)
		if !ok {
			return
		}
		items, err := c.ItemWhereUsed(ctx, item, flags.indirect)
		if err != nil {
			fatalItemErr("failed to query item users", err)
			return
		}
		printItems(cmd.OutOrStdout(), items)
	},
}

var lockedCmd = &cobra.Command{
	Use:   "locked",
	Short: "List the items locked by the current user",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustClient(ctx)
		if c == nil {
			return
		}
		items, err := c.LockedItems(ctx)
		if err != nil {
			fatalItemErr("failed to list locked items", err)
			return
		}
		printItems(cmd.OutOrStdout(), items)
	},
}

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "List the items with a local copy",
	Long: `Lists the items of the repository downloaded in the local root.

The local copy is listed as is: the remote repository is not queried.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustClient(ctx)
		if c == nil {
			return
		}
		items, err := c.LocalItems(ctx)
		if err != nil {
			fatalItemErr("failed to list local items", err)
			return
		}
		printItems(cmd.OutOrStdout(), items)
	},
}

var historicalContentCmd = &cobra.Command{
	Use:   "historical-content",
	Short: "Get the content of an item as of some date",
	Example: `% otarepo historical-content --uri 'otm://repo1/lib_1_0_0.otm?ns=http://www.example.com/ns/a/v01_00' --as-of 2020-01-02T15:04:05Z --output lib.otm`,
	Run: itemCommand(func(ctx context.Context, cmd *cobra.Command, c *repository.Client, item *model.RepositoryItem) {
		effective, err := time.Parse(time.RFC3339, otarepoFlags.history.effective)
		if err != nil {
			wrapFatalln("invalid date", err)
			return
		}
		if otarepoFlags.history.urlOnly {
			u, err := c.HistoricalContentURL(ctx, item, effective)
			if err != nil {
				fatalItemErr("failed to locate historical content", err)
				return
			}
			printList(cmd.OutOrStdout(), []string{u})
			return
		}

		rdr, err := c.HistoricalContent(ctx, item, effective)
		if err != nil {
			fatalItemErr("failed to get historical content", err)
			return
		}
		defer rdr.Close()

		var w io.Writer = cmd.OutOrStdout()
		if otarepoFlags.history.output != "" {
			f, err := current.fs.Create(otarepoFlags.history.output)
			if err != nil {
				wrapFatalln("failed to create output file", err)
				return
			}
			defer f.Close()
			w = f
		}
		if _, err = io.Copy(w, rdr); err != nil {
			wrapFatalln("failed to write historical content", err)
		}
	}),
}

func init() {
	addNamespaceFlag(listCmd)
	requireFlags(listCmd, "namespace")
	addListFlags(listCmd)
	addListFlags(searchCmd)
	addItemFlags(whereUsedCmd)
	addWhereUsedFlags(whereUsedCmd)
	for _, cmd := range []*cobra.Command{versionsCmd, historyCmd, historicalContentCmd} {
		addItemFlags(cmd)
	}
	requireFlags(historicalContentCmd, addHistoricalFlags(historicalContentCmd)...)
	for _, cmd := range []*cobra.Command{listCmd, searchCmd, versionsCmd, historyCmd, whereUsedCmd, lockedCmd, localCmd, historicalContentCmd} {
		rootCmd.AddCommand(cmd)
	}
}
