// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/oneconcern/otarepo/pkg/model"
	"github.com/oneconcern/otarepo/pkg/repository"
)

// infoLogger wraps informative messages to os.Stderr without cluttering expected output in tests.
var infoLogger = log.New(os.Stderr, "", 0)

const timeLayout = "2006-01-02 15:04:05"

func stateString(s model.State) string {
	switch s {
	case model.StateManagedWIP:
		return color.GreenString(s.String())
	case model.StateManagedLocked:
		return color.RedString(s.String())
	case model.StateUnmanaged:
		return color.HiBlackString(s.String())
	default:
		return s.String()
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(timeLayout)
}

func printItems(w io.Writer, items []*model.RepositoryItem) {
	table := uitable.New()
	table.MaxColWidth = 80
	table.AddRow("NAMESPACE", "FILENAME", "VERSION", "STATUS", "STATE", "LOCKED BY", "UPDATED")
	for _, item := range items {
		table.AddRow(
			item.BaseNamespace,
			item.Filename,
			item.Version,
			item.Status,
			stateString(item.State),
			item.LockedByUser,
			formatTime(item.LastUpdated),
		)
	}
	_, _ = fmt.Fprintln(w, table)
}

func printItem(w io.Writer, item *model.RepositoryItem) {
	table := uitable.New()
	table.AddRow("repository:", item.Repository)
	table.AddRow("namespace:", item.Namespace)
	table.AddRow("base namespace:", item.BaseNamespace)
	table.AddRow("filename:", item.Filename)
	table.AddRow("library:", item.LibraryName)
	table.AddRow("version:", item.Version)
	table.AddRow("type:", item.ItemType)
	table.AddRow("status:", item.Status)
	table.AddRow("state:", stateString(item.State))
	if item.LockedByUser != "" {
		table.AddRow("locked by:", item.LockedByUser)
	}
	table.AddRow("updated:", formatTime(item.LastUpdated))
	table.AddRow("crc:", item.CRC)
	_, _ = fmt.Fprintln(w, table)
}

func printSearchResults(w io.Writer, results []repository.SearchResult) {
	table := uitable.New()
	table.MaxColWidth = 80
	table.AddRow("KIND", "NAME", "NAMESPACE", "FILENAME", "VERSION", "STATE")
	for _, r := range results {
		switch r.Kind {
		case model.ResultLibrary:
			table.AddRow(r.Kind, r.Item.LibraryName, r.Item.BaseNamespace, r.Item.Filename, r.Item.Version, stateString(r.Item.State))
		case model.ResultEntity:
			lib := r.Entity.Library
			table.AddRow(r.Kind, r.Entity.EntityName, lib.BaseNamespace, lib.Filename, lib.Version, color.HiBlackString(r.Entity.EntityType))
		}
	}
	_, _ = fmt.Fprintln(w, table)
}

func printEntities(w io.Writer, entities []model.EntityInfo) {
	table := uitable.New()
	table.AddRow("ENTITY", "TYPE", "NAMESPACE", "FILENAME", "VERSION")
	for _, e := range entities {
		table.AddRow(e.EntityName, e.EntityType, e.Library.BaseNamespace, e.Library.Filename, e.Library.Version)
	}
	_, _ = fmt.Fprintln(w, table)
}

func printHistory(w io.Writer, history model.ItemHistory) {
	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true
	table.AddRow("COMMIT", "EFFECTIVE ON", "USER", "REMARKS")
	for _, commit := range history.SortedCommits() {
		table.AddRow(commit.CommitNumber, commit.EffectiveOn.Format(time.RFC3339), commit.User, commit.Remarks)
	}
	_, _ = fmt.Fprintln(w, table)
}

func printList(w io.Writer, values []string) {
	for _, v := range values {
		_, _ = fmt.Fprintln(w, v)
	}
}

// warnFromCache tells the user that the repository could not be reached
func warnFromCache(servedFromCache bool, warning error) {
	if servedFromCache {
		infoLogger.Println(color.YellowString("warning: repository unreachable, using local copy: %v", warning))
	}
}
