// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"io"
	"io/ioutil"

	units "github.com/docker/go-units"
	"github.com/oneconcern/otarepo/pkg/model"
	"github.com/oneconcern/otarepo/pkg/repository"
	"github.com/spf13/cobra"
)

// resolveItem reads the item designated by the item flags, downloading it when needed
func resolveItem(ctx context.Context, c *repository.Client) (*model.RepositoryItem, bool) {
	var (
		res repository.ItemResult
		err error
	)
	flags := otarepoFlags.item
	switch {
	case flags.uri != "":
		res, err = c.GetRepositoryItemByURI(ctx, flags.uri, flags.namespace)
	case flags.namespace != "" && flags.filename != "" && flags.version != "":
		res, err = c.GetRepositoryItem(ctx, flags.namespace, flags.filename, flags.version)
	default:
		wrapFatalln("either --uri or --namespace, --filename and --version are required", nil)
		return nil, false
	}
	if err != nil {
		fatalItemErr("failed to get item", err)
		return nil, false
	}
	warnFromCache(res.ServedFromCache, res.Warning)
	return res.Item, true
}

// itemCommand runs an action on the item designated by the item flags
func itemCommand(action func(context.Context, *cobra.Command, *repository.Client, *model.RepositoryItem)) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustClient(ctx)
		if c == nil {
			return
		}
		item, ok := resolveItem(ctx, c)
		if !ok {
			return
		}
		action(ctx, cmd, c, item)
	}
}

func contentSize(ctx context.Context, c *repository.Client, item *model.RepositoryItem) (int64, error) {
	rdr, err := c.Files().Content(ctx, item.Identity())
	if err != nil {
		return 0, err
	}
	defer rdr.Close()
	return io.Copy(ioutil.Discard, rdr)
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Get an item",
	Long: `Downloads an item when it is not in the local copy yet, then describes it.

An item is fetched at most once per invocation. When the repository cannot be reached,
the local copy is used and a warning is printed.`,
	Example: `% otarepo get --namespace http://www.example.com/ns/a --filename lib_1_0_0.otm --version 1.0.0
% otarepo get --uri 'otm://repo1/lib_1_0_0.otm?ns=http://www.example.com/ns/a/v01_00'`,
	Run: itemCommand(func(ctx context.Context, cmd *cobra.Command, c *repository.Client, item *model.RepositoryItem) {
		printItem(cmd.OutOrStdout(), item)
		size, err := contentSize(ctx, c, item)
		if err != nil {
			wrapFatalln("failed to read local content", err)
			return
		}
		infoLogger.Printf("local content: %d bytes (%s)", size, units.HumanSize(float64(size)))
	}),
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Refresh the local copy of an item",
	Long:  `Makes sure the local copy of an item is up to date with the repository.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustClient(ctx)
		if c == nil {
			return
		}
		flags := otarepoFlags.item
		var (
			res repository.DownloadResult
			err error
		)
		if flags.uri != "" {
			item, ok := resolveItem(ctx, c)
			if !ok {
				return
			}
			res, err = c.DownloadItem(ctx, item, flags.force)
		} else {
			res, err = c.DownloadContent(ctx, flags.namespace, flags.filename, flags.version, flags.force)
		}
		if err != nil {
			fatalItemErr("failed to download item", err)
			return
		}
		warnFromCache(res.ServedFromCache, res.Warning)
		if res.Changed {
			infoLogger.Println("local copy updated")
		} else {
			infoLogger.Println("local copy is up to date")
		}
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock an item and start a work in progress",
	Long: `Locks an item for the current user, then copies its content into a local work in progress.

The local copy must be up to date: download the item again if it was updated since.`,
	Run: itemCommand(func(ctx context.Context, cmd *cobra.Command, c *repository.Client, item *model.RepositoryItem) {
		if err := c.Lock(ctx, item); err != nil {
			fatalItemErr("failed to lock item", err)
			return
		}
		location, _ := c.Files().WIPLocation(item.BaseNamespace, item.Filename)
		infoLogger.Printf("work in progress: %s", location)
		printItem(cmd.OutOrStdout(), item)
	}),
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock an item",
	Long: `Releases the lock on an item, optionally committing the work in progress first.

The work in progress is discarded and the local copy refreshed.`,
	Run: itemCommand(func(ctx context.Context, cmd *cobra.Command, c *repository.Client, item *model.RepositoryItem) {
		if err := c.Unlock(ctx, item, otarepoFlags.lock.commit, otarepoFlags.lock.remarks); err != nil {
			fatalItemErr("failed to unlock item", err)
			return
		}
		printItem(cmd.OutOrStdout(), item)
	}),
}

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit the work in progress on an item",
	Long:  `Sends the work in progress on a locked item to the repository. The item remains locked.`,
	Run: itemCommand(func(ctx context.Context, cmd *cobra.Command, c *repository.Client, item *model.RepositoryItem) {
		if err := c.Commit(ctx, item, otarepoFlags.lock.remarks); err != nil {
			fatalItemErr("failed to commit item", err)
			return
		}
		printItem(cmd.OutOrStdout(), item)
	}),
}

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote an item to its next status",
	Run: itemCommand(func(ctx context.Context, cmd *cobra.Command, c *repository.Client, item *model.RepositoryItem) {
		if err := c.Promote(ctx, item); err != nil {
			fatalItemErr("failed to promote item", err)
			return
		}
		printItem(cmd.OutOrStdout(), item)
	}),
}

var demoteCmd = &cobra.Command{
	Use:   "demote",
	Short: "Demote an item to its previous status",
	Run: itemCommand(func(ctx context.Context, cmd *cobra.Command, c *repository.Client, item *model.RepositoryItem) {
		if err := c.Demote(ctx, item); err != nil {
			fatalItemErr("failed to demote item", err)
			return
		}
		printItem(cmd.OutOrStdout(), item)
	}),
}

var updateStatusCmd = &cobra.Command{
	Use:   "update-status",
	Short: "Set the status of an item",
	Example: `% otarepo update-status --uri 'otm://repo1/lib_1_0_0.otm?ns=http://www.example.com/ns/a/v01_00' --to final`,
	Run: itemCommand(func(ctx context.Context, cmd *cobra.Command, c *repository.Client, item *model.RepositoryItem) {
		target, err := model.ParseStatus(otarepoFlags.status.target)
		if err != nil {
			wrapFatalln("invalid status", err)
			return
		}
		if err = c.UpdateStatus(ctx, item, target); err != nil {
			fatalItemErr("failed to update item status", err)
			return
		}
		printItem(cmd.OutOrStdout(), item)
	}),
}

var recalculateCRCCmd = &cobra.Command{
	Use:   "recalculate-crc",
	Short: "Recompute the checksum of an item",
	Run: itemCommand(func(ctx context.Context, cmd *cobra.Command, c *repository.Client, item *model.RepositoryItem) {
		if err := c.RecalculateCRC(ctx, item); err != nil {
			fatalItemErr("failed to recalculate checksum", err)
			return
		}
		printItem(cmd.OutOrStdout(), item)
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete an item",
	Long:  `Deletes an item from the repository, together with its local copy and work in progress.`,
	Run: itemCommand(func(ctx context.Context, cmd *cobra.Command, c *repository.Client, item *model.RepositoryItem) {
		if err := c.Delete(ctx, item); err != nil {
			fatalItemErr("failed to delete item", err)
			return
		}
		infoLogger.Printf("deleted %s", item.Identity())
	}),
}

func init() {
	for _, cmd := range []*cobra.Command{
		getCmd, downloadCmd, lockCmd, unlockCmd, commitCmd,
		promoteCmd, demoteCmd, updateStatusCmd, recalculateCRCCmd, deleteCmd,
	} {
		addItemFlags(cmd)
		rootCmd.AddCommand(cmd)
	}
	addForceFlag(downloadCmd)
	addCommitFlag(unlockCmd)
	addRemarksFlag(unlockCmd)
	addRemarksFlag(commitCmd)
	requireFlags(updateStatusCmd, addTargetStatusFlag(updateStatusCmd))
}
