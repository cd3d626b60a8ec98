// Copyright © 2018 One Concern

package repository

import (
	"bytes"
	"context"
	"time"

	"github.com/oneconcern/otarepo/pkg/errors"
	"github.com/oneconcern/otarepo/pkg/localstore"
	"github.com/oneconcern/otarepo/pkg/model"
	remotestatus "github.com/oneconcern/otarepo/pkg/remote/status"
	"github.com/oneconcern/otarepo/pkg/repository/status"
	"github.com/oneconcern/otarepo/pkg/versionscheme"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DownloadResult tells how a download request was served
type DownloadResult struct {
	// Changed is true when a newer version of the item was fetched
	Changed bool

	// ServedFromCache is true when the remote repository could not be reached and the local copy was kept
	ServedFromCache bool

	// Warning is the reason why the local copy was kept
	Warning error
}

// ItemResult is an item read from the repository
type ItemResult struct {
	Item            *model.RepositoryItem
	ServedFromCache bool
	Warning         error
}

// DownloadContent makes sure the local copy of an item is up to date.
//
// An item is fetched at most once per session, unless forceUpdate is set. When
// the remote repository cannot be reached, an existing local copy is kept and
// the result says so.
func (c *Client) DownloadContent(ctx context.Context, baseNamespace, filename, version string, forceUpdate bool) (DownloadResult, error) {
	id := model.ItemIdentity{
		BaseNamespace: baseNamespace,
		Filename:      filename,
		Version:       version,
	}.Normalized()
	return c.download(ctx, id, forceUpdate, nil)
}

// DownloadItem makes sure the local copy of an item is up to date
func (c *Client) DownloadItem(ctx context.Context, item *model.RepositoryItem, forceUpdate bool) (DownloadResult, error) {
	return c.download(ctx, item.Identity(), forceUpdate, nil)
}

// download an item. Local files are updated within the changeset cs, or within a new one if cs is nil.
func (c *Client) download(ctx context.Context, id model.ItemIdentity, force bool, cs *localstore.ChangeSet) (DownloadResult, error) {
	key := id.Key()
	var localUpdated time.Time

	local, err := c.files.LoadMetadata(ctx, id)
	hasLocal := err == nil
	switch {
	case hasLocal:
		if err = c.checkOwner(local.OwningRepository, id); err != nil {
			return DownloadResult{}, err
		}
		localUpdated = local.LastUpdated
	case !isNotFound(err):
		return DownloadResult{}, err
	}

	if !force && c.Downloaded(id) {
		if !hasLocal {
			return DownloadResult{}, status.ErrUnavailable.Wrapf("no local copy of %s, which was already requested during this session", key)
		}
		return DownloadResult{}, nil
	}
	c.markDownloaded(key)

	var (
		meta    model.ItemMetadata
		content []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		meta, err = c.remote.Metadata(gctx, id)
		return
	})
	g.Go(func() (err error) {
		content, err = c.remote.Content(gctx, id)
		return
	})
	if err = g.Wait(); err != nil {
		if errors.Is(err, remotestatus.ErrUnavailable) {
			return c.fallback(ctx, id, err)
		}
		return DownloadResult{}, err
	}

	if meta.OwningRepository == "" {
		meta.OwningRepository = c.id
	}
	if err = c.checkOwner(meta.OwningRepository, id); err != nil {
		return DownloadResult{}, err
	}

	save := func(cs *localstore.ChangeSet) error {
		if err := cs.SaveNamespaceIDs(ctx, id.BaseNamespace); err != nil {
			return err
		}
		if err := cs.SaveMetadata(ctx, meta); err != nil {
			return err
		}
		return cs.SaveContent(ctx, id, bytes.NewReader(content))
	}
	if cs != nil {
		err = save(cs)
	} else {
		err = c.changeset(ctx, save)
	}
	if err != nil {
		return DownloadResult{}, err
	}

	res := DownloadResult{Changed: meta.LastUpdated.After(localUpdated)}
	c.l.Debug("downloaded item",
		zap.String("item", key),
		zap.Bool("changed", res.Changed),
		zap.Time("lastUpdated", meta.LastUpdated),
	)
	return res, nil
}

// fallback serves the local copy of an item when the remote repository is unreachable
func (c *Client) fallback(ctx context.Context, id model.ItemIdentity, cause error) (DownloadResult, error) {
	hasMetadata, err := c.files.HasMetadata(ctx, id)
	if err != nil {
		return DownloadResult{}, err
	}
	hasContent, err := c.files.HasContent(ctx, id)
	if err != nil {
		return DownloadResult{}, err
	}
	if !hasMetadata || !hasContent {
		return DownloadResult{}, status.ErrUnavailable.Wrap(cause)
	}
	c.l.Warn("repository unreachable, using local copy", zap.String("item", id.Key()), zap.Error(cause))
	return DownloadResult{ServedFromCache: true, Warning: cause}, nil
}

// GetRepositoryItem downloads an item if needed, then returns it from its local copy
func (c *Client) GetRepositoryItem(ctx context.Context, baseNamespace, filename, version string) (ItemResult, error) {
	res, err := c.DownloadContent(ctx, baseNamespace, filename, version, false)
	if err != nil {
		return ItemResult{}, err
	}
	id := model.ItemIdentity{
		BaseNamespace: baseNamespace,
		Filename:      filename,
		Version:       version,
	}.Normalized()
	meta, err := c.files.LoadMetadata(ctx, id)
	if err != nil {
		return ItemResult{}, err
	}
	item, err := c.newItem(ctx, *meta)
	if err != nil {
		return ItemResult{}, err
	}
	return ItemResult{
		Item:            item,
		ServedFromCache: res.ServedFromCache,
		Warning:         res.Warning,
	}, nil
}

// GetRepositoryItemByURI returns the item designated by a URI such as:
//
//	otm://<repository-id>/<filename>?ns=<namespace>&scheme=<version-scheme>
//
// The namespace argument applies when the URI does not carry one.
func (c *Client) GetRepositoryItemByURI(ctx context.Context, uri, namespace string) (ItemResult, error) {
	u, err := model.ParseItemURI(uri)
	if err != nil {
		return ItemResult{}, status.ErrInvalidURI.Wrap(err)
	}
	if u.Repository != c.id {
		return ItemResult{}, status.ErrForeignRepository.Wrapf("%s designates repository %q, not %q", uri, u.Repository, c.id)
	}
	ns := u.Namespace
	if ns == "" {
		ns = model.NormalizeNamespace(namespace)
	}
	if ns == "" {
		return ItemResult{}, status.ErrInvalidURI.Wrapf("no namespace for %s", uri)
	}

	scheme, err := versionscheme.Lookup(u.VersionScheme)
	if err != nil {
		return ItemResult{}, status.ErrVersionScheme.Wrap(err)
	}
	version, err := scheme.VersionIdentifier(ns, u.Filename)
	if err != nil {
		return ItemResult{}, status.ErrVersionScheme.Wrap(err)
	}
	return c.GetRepositoryItem(ctx, scheme.BaseNamespace(ns), u.Filename, version)
}
