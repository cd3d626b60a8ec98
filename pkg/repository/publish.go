// Copyright © 2018 One Concern

package repository

import (
	"context"
	"io"
	"time"

	"github.com/oneconcern/otarepo/pkg/model"
	"github.com/oneconcern/otarepo/pkg/remote"
	"github.com/oneconcern/otarepo/pkg/repository/status"
	"github.com/oneconcern/otarepo/pkg/versionscheme"
	"go.uber.org/zap"
)

// PublishRequest describes a new item
type PublishRequest struct {
	Content       io.Reader
	Filename      string
	LibraryName   string
	Namespace     string
	Version       string
	VersionScheme string
	InitialStatus model.Status
}

// Publish a new item in the repository.
//
// The returned item is not downloaded: its local copy is created by the next read.
func (c *Client) Publish(ctx context.Context, rq PublishRequest) (*model.RepositoryItem, error) {
	namespace := model.NormalizeNamespace(rq.Namespace)
	baseNamespace := namespace
	if rq.VersionScheme != "" {
		scheme, err := versionscheme.Lookup(rq.VersionScheme)
		if err != nil {
			return nil, status.ErrVersionScheme.Wrap(err)
		}
		baseNamespace = scheme.BaseNamespace(namespace)
	}
	initial := rq.InitialStatus
	if initial == "" {
		initial = model.StatusDraft
	}

	meta, err := c.remote.Publish(ctx, remote.Publication{
		Content:       rq.Content,
		Filename:      rq.Filename,
		LibraryName:   rq.LibraryName,
		Namespace:     namespace,
		Version:       rq.Version,
		VersionScheme: rq.VersionScheme,
		Status:        initial,
	})
	if err != nil {
		return nil, err
	}

	placeholder := model.ItemMetadata{
		OwningRepository: c.id,
		Namespace:        namespace,
		BaseNamespace:    baseNamespace,
		Filename:         rq.Filename,
		LibraryName:      rq.LibraryName,
		Version:          rq.Version,
		VersionScheme:    rq.VersionScheme,
		Status:           initial,
	}
	if meta.BaseNamespace != "" {
		placeholder.BaseNamespace = meta.BaseNamespace
	}
	if meta.Version != "" {
		placeholder.Version = meta.Version
	}
	placeholder.LastUpdated = meta.LastUpdated
	placeholder.CRC = meta.CRC
	placeholder.ItemType = meta.ItemType

	item := model.NewRepositoryItem(c.id, placeholder)
	item.State = model.StateManagedUnlocked
	c.l.Info("published item", zap.String("item", item.Identity().Key()))
	return item, nil
}

// commitAsOf selects the commit of an item effective at some date
func (c *Client) commitAsOf(ctx context.Context, item *model.RepositoryItem, effective time.Time) (model.CommitEntry, error) {
	history, err := c.remote.History(ctx, item.Identity())
	if err != nil {
		return model.CommitEntry{}, err
	}
	commit, ok := history.CommitAsOf(effective)
	if !ok {
		return model.CommitEntry{}, status.ErrNoCommit.Wrapf("%s at %v", item.Identity(), effective)
	}
	return commit, nil
}

// HistoricalContentURL is where the content of an item, as of some date, can be fetched
func (c *Client) HistoricalContentURL(ctx context.Context, item *model.RepositoryItem, effective time.Time) (string, error) {
	commit, err := c.commitAsOf(ctx, item, effective)
	if err != nil {
		return "", err
	}
	return c.remote.HistoricalContentURL(item.Identity(), &commit.CommitNumber), nil
}

// HistoricalContent streams the content of an item as of some date. The caller closes the reader.
func (c *Client) HistoricalContent(ctx context.Context, item *model.RepositoryItem, effective time.Time) (io.ReadCloser, error) {
	commit, err := c.commitAsOf(ctx, item, effective)
	if err != nil {
		return nil, err
	}
	return c.remote.HistoricalContent(ctx, item.Identity(), &commit.CommitNumber)
}
