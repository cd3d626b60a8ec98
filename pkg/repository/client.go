// Copyright © 2018 One Concern

// Package repository synchronizes items between a remote repository and their local copy.
//
// A Client decides when the local copy of an item can be trusted, updates
// local files atomically, and conducts the locking protocol with the remote
// repository, which remains the authority on locks.
//
// Items are downloaded at most once per client session unless a refresh is
// forced: callers who expect concurrent modifications by other users call
// ResetDownloadCache or force the download.
package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/oneconcern/otarepo/pkg/errors"
	"github.com/oneconcern/otarepo/pkg/localstore"
	"github.com/oneconcern/otarepo/pkg/model"
	"github.com/oneconcern/otarepo/pkg/remote"
	"github.com/oneconcern/otarepo/pkg/repository/status"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Client of a remote repository, with a local copy of its items.
//
// A Client is safe for concurrent use. Updates of local files run one at a time.
type Client struct {
	id     string
	remote *remote.Client
	files  *localstore.FileManager
	l      *zap.Logger
	writer *semaphore.Weighted

	nsmx           sync.RWMutex
	displayName    string
	rootNamespaces []string

	dlmx       sync.Mutex
	downloaded map[string]struct{}
}

// New client for the repository with some id, reached through a remote client,
// with local files managed by a file manager
func New(id string, rc *remote.Client, files *localstore.FileManager, opts ...Option) *Client {
	c := &Client{
		id:             id,
		remote:         rc,
		files:          files,
		l:              zap.NewNop(),
		writer:         semaphore.NewWeighted(1),
		displayName:    id,
		rootNamespaces: []string{},
		downloaded:     make(map[string]struct{}),
	}
	for _, apply := range opts {
		apply(c)
	}
	c.l = c.l.With(zap.String("repository", id))
	return c
}

// ID of the repository
func (c *Client) ID() string {
	return c.id
}

// DisplayName of the repository
func (c *Client) DisplayName() string {
	c.nsmx.RLock()
	defer c.nsmx.RUnlock()
	return c.displayName
}

// Endpoint of the remote repository
func (c *Client) Endpoint() string {
	return c.remote.Endpoint()
}

// User on behalf of whom items are locked
func (c *Client) User() string {
	return c.remote.User()
}

// Files gives access to the local copy of items
func (c *Client) Files() *localstore.FileManager {
	return c.files
}

// changeset runs fn within a local changeset, once no other changeset of this client is active
func (c *Client) changeset(ctx context.Context, fn func(*localstore.ChangeSet) error) error {
	if err := c.writer.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.writer.Release(1)
	return c.files.Do(ctx, fn)
}

func normalizeAll(namespaces []string) []string {
	res := make([]string, 0, len(namespaces))
	for _, ns := range namespaces {
		if n := model.NormalizeNamespace(ns); n != "" {
			res = append(res, n)
		}
	}
	sort.Strings(res)
	return res
}

// ListRootNamespaces returns a snapshot of the root namespaces of the repository
func (c *Client) ListRootNamespaces() []string {
	c.nsmx.RLock()
	defer c.nsmx.RUnlock()
	return append([]string{}, c.rootNamespaces...)
}

// SetRootNamespaces replaces the root namespaces of the repository
func (c *Client) SetRootNamespaces(namespaces []string) {
	normalized := normalizeAll(namespaces)
	c.nsmx.Lock()
	defer c.nsmx.Unlock()
	c.rootNamespaces = normalized
}

// RefreshRepositoryMetadata reloads the display name and root namespaces from the remote repository
func (c *Client) RefreshRepositoryMetadata(ctx context.Context) error {
	info, err := c.remote.RepositoryMetadata(ctx)
	if err != nil {
		return err
	}
	if info.ID != "" && info.ID != c.id {
		return status.ErrForeignRepository.Wrapf("endpoint %s serves repository %q, expected %q", c.Endpoint(), info.ID, c.id)
	}
	normalized := normalizeAll(info.RootNamespaces)

	c.nsmx.Lock()
	defer c.nsmx.Unlock()
	if info.DisplayName != "" {
		c.displayName = info.DisplayName
	}
	c.rootNamespaces = normalized
	return nil
}

// ResetDownloadCache forgets which items were downloaded during this session
func (c *Client) ResetDownloadCache() {
	c.dlmx.Lock()
	defer c.dlmx.Unlock()
	c.downloaded = make(map[string]struct{})
}

// Downloaded tells if an item was downloaded, or a download attempted, during this session
func (c *Client) Downloaded(id model.ItemIdentity) bool {
	c.dlmx.Lock()
	defer c.dlmx.Unlock()
	_, ok := c.downloaded[id.Key()]
	return ok
}

func (c *Client) markDownloaded(key string) {
	c.dlmx.Lock()
	defer c.dlmx.Unlock()
	c.downloaded[key] = struct{}{}
}

// checkOwner verifies that a record was issued by this repository
func (c *Client) checkOwner(owner string, id model.ItemIdentity) error {
	if owner != "" && owner != c.id {
		return status.ErrForeignRepository.Wrapf("%s is owned by %q, not %q", id, owner, c.id)
	}
	return nil
}

// checkMember verifies that an item was obtained from this client
func (c *Client) checkMember(item *model.RepositoryItem) error {
	if item == nil {
		return status.ErrNotMember.Wrapf("no item")
	}
	if item.Repository != c.id {
		return status.ErrNotMember.Wrapf("%s belongs to %q, not %q", item.Identity(), item.Repository, c.id)
	}
	return nil
}

// itemState computes the state of an item for the current user
func (c *Client) itemState(ctx context.Context, item *model.RepositoryItem) (model.State, error) {
	if item.LockedByUser == "" {
		return model.StateManagedUnlocked, nil
	}
	if item.LockedByUser != c.User() {
		return model.StateManagedLocked, nil
	}
	hasWIP, err := c.files.HasWIP(ctx, item.BaseNamespace, item.Filename)
	if err != nil {
		return "", err
	}
	if hasWIP {
		return model.StateManagedWIP, nil
	}
	return model.StateManagedLocked, nil
}

// newItem builds an item from a metadata record, with its state computed for the current user
func (c *Client) newItem(ctx context.Context, meta model.ItemMetadata) (*model.RepositoryItem, error) {
	owner := meta.OwningRepository
	if owner == "" {
		owner = c.id
	}
	item := model.NewRepositoryItem(owner, meta)
	state, err := c.itemState(ctx, item)
	if err != nil {
		return nil, err
	}
	item.State = state
	return item, nil
}

func (c *Client) newItems(ctx context.Context, records []model.ItemMetadata) ([]*model.RepositoryItem, error) {
	items := make([]*model.RepositoryItem, 0, len(records))
	for _, meta := range records {
		item, err := c.newItem(ctx, meta)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// reload refreshes an item in place from its local metadata record
func (c *Client) reload(ctx context.Context, item *model.RepositoryItem) error {
	meta, err := c.files.LoadMetadata(ctx, item.Identity())
	if err != nil {
		return err
	}
	item.Apply(*meta)
	state, err := c.itemState(ctx, item)
	if err != nil {
		return err
	}
	item.State = state
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, localstore.ErrNotFound)
}
