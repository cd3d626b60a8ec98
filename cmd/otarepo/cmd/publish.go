// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"path/filepath"

	units "github.com/docker/go-units"
	"github.com/oneconcern/otarepo/pkg/model"
	"github.com/oneconcern/otarepo/pkg/repository"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a new item",
	Long: `Publishes a file as a new item of the repository.

The item is not downloaded: its local copy is created the next time it is read.`,
	Example: `% otarepo publish --file lib_1_0_0.otm --namespace http://www.example.com/ns/a/v01_00 --library lib --version 1.0.0`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := mustClient(ctx)
		if c == nil {
			return
		}
		initial := model.StatusDraft
		if otarepoFlags.list.status != "" {
			s, err := model.ParseStatus(otarepoFlags.list.status)
			if err != nil {
				wrapFatalln("invalid status", err)
				return
			}
			initial = s
		}

		path := otarepoFlags.publish.file
		f, err := current.fs.Open(path)
		if err != nil {
			wrapFatalln("failed to open file to publish", err)
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			wrapFatalln("failed to open file to publish", err)
			return
		}

		item, err := c.Publish(ctx, repository.PublishRequest{
			Content:       f,
			Filename:      filepath.Base(path),
			LibraryName:   otarepoFlags.publish.libraryName,
			Namespace:     otarepoFlags.item.namespace,
			Version:       otarepoFlags.item.version,
			VersionScheme: otarepoFlags.publish.versionScheme,
			InitialStatus: initial,
		})
		if err != nil {
			fatalItemErr("failed to publish item", err)
			return
		}
		infoLogger.Printf("published %s (%s)", item.Identity(), units.HumanSize(float64(info.Size())))
		printItem(cmd.OutOrStdout(), item)
	},
}

func init() {
	requireFlags(publishCmd, addPublishFlags(publishCmd)...)
	rootCmd.AddCommand(publishCmd)
}
