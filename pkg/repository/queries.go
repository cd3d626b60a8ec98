// Copyright © 2018 One Concern

package repository

import (
	"context"

	"github.com/oneconcern/otarepo/pkg/model"
)

// ListOptions filter item listings
type ListOptions struct {
	// IncludeStatus is the minimum status of listed items. Defaults to DRAFT, i.e. all items.
	IncludeStatus model.Status

	// LatestOnly keeps the latest version of each library
	LatestOnly bool

	// ItemType restricts the listing to one type of items
	ItemType model.ItemType
}

// SearchOptions filter search results
type SearchOptions ListOptions

// SearchResult is either an item or an entity defined in an item
type SearchResult struct {
	Kind   model.ResultKind
	Item   *model.RepositoryItem
	Entity *model.EntityInfo
}

func (o ListOptions) status() model.Status {
	if o.IncludeStatus == "" {
		return model.StatusDraft
	}
	return o.IncludeStatus
}

// ListItems lists the items in a base namespace
func (c *Client) ListItems(ctx context.Context, baseNamespace string, opts ListOptions) ([]*model.RepositoryItem, error) {
	records, err := c.remote.ListItems2(ctx, model.NormalizeNamespace(baseNamespace), opts.status(), opts.LatestOnly, opts.ItemType)
	if err != nil {
		return nil, err
	}
	return c.newItems(ctx, records)
}

// ListAllItems lists the items in a base namespace, final items only unless includeDraft is set
func (c *Client) ListAllItems(ctx context.Context, baseNamespace string, latestOnly, includeDraft bool) ([]*model.RepositoryItem, error) {
	records, err := c.remote.ListItems(ctx, model.NormalizeNamespace(baseNamespace), latestOnly, includeDraft)
	if err != nil {
		return nil, err
	}
	return c.newItems(ctx, records)
}

// Search items and entities matching a free text query
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	lopts := ListOptions(opts)
	found, err := c.remote.Search2(ctx, query, lopts.status(), opts.LatestOnly, opts.ItemType)
	if err != nil {
		return nil, err
	}
	results := make([]SearchResult, 0, len(found))
	for _, r := range found {
		result := SearchResult{Kind: r.Kind}
		switch r.Kind {
		case model.ResultLibrary:
			if result.Item, err = c.newItem(ctx, *r.Library); err != nil {
				return nil, err
			}
		case model.ResultEntity:
			entity := *r.Entity
			result.Entity = &entity
		}
		results = append(results, result)
	}
	return results, nil
}

// SearchItems searches items matching a free text query
func (c *Client) SearchItems(ctx context.Context, query string, latestOnly, includeDraft bool) ([]*model.RepositoryItem, error) {
	records, err := c.remote.Search(ctx, query, latestOnly, includeDraft)
	if err != nil {
		return nil, err
	}
	return c.newItems(ctx, records)
}

// VersionHistory lists all versions of the library of an item, latest first
func (c *Client) VersionHistory(ctx context.Context, item *model.RepositoryItem) ([]*model.RepositoryItem, error) {
	records, err := c.remote.VersionHistory(ctx, item.Identity())
	if err != nil {
		return nil, err
	}
	return c.newItems(ctx, records)
}

// History of the commits on an item
func (c *Client) History(ctx context.Context, item *model.RepositoryItem) (model.ItemHistory, error) {
	return c.remote.History(ctx, item.Identity())
}

// ItemWhereUsed lists the items depending on an item, transitively when indirect is set
func (c *Client) ItemWhereUsed(ctx context.Context, item *model.RepositoryItem, indirect bool) ([]*model.RepositoryItem, error) {
	records, err := c.remote.ItemWhereUsed(ctx, item.Identity(), indirect)
	if err != nil {
		return nil, err
	}
	return c.newItems(ctx, records)
}

// EntityWhereUsed lists the items referring to an entity, transitively when indirect is set
func (c *Client) EntityWhereUsed(ctx context.Context, entity model.EntityInfo, indirect bool) ([]*model.RepositoryItem, error) {
	records, err := c.remote.EntityWhereUsed(ctx, entity, indirect)
	if err != nil {
		return nil, err
	}
	return c.newItems(ctx, records)
}

// EntityWhereExtended lists the entities extending an entity
func (c *Client) EntityWhereExtended(ctx context.Context, entity model.EntityInfo) ([]model.EntityInfo, error) {
	return c.remote.EntityWhereExtended(ctx, entity)
}

// LockedItems lists the items locked by the current user
func (c *Client) LockedItems(ctx context.Context) ([]*model.RepositoryItem, error) {
	records, err := c.remote.LockedItems(ctx)
	if err != nil {
		return nil, err
	}
	return c.newItems(ctx, records)
}

// LocalItems lists the items of this repository with a local copy, without network access
func (c *Client) LocalItems(ctx context.Context) ([]*model.RepositoryItem, error) {
	records, err := c.files.ListMetadata(ctx)
	if err != nil {
		return nil, err
	}
	own := records[:0]
	for _, meta := range records {
		if meta.OwningRepository == "" || meta.OwningRepository == c.id {
			own = append(own, meta)
		}
	}
	return c.newItems(ctx, own)
}

// UserAuthorization tells the permission of the current user on a base namespace
func (c *Client) UserAuthorization(ctx context.Context, baseNamespace string) (model.Permission, error) {
	return c.remote.UserAuthorization(ctx, model.NormalizeNamespace(baseNamespace))
}

// ListNamespaceChildren lists the names of the direct children of a namespace
func (c *Client) ListNamespaceChildren(ctx context.Context, namespace string) ([]string, error) {
	return c.remote.NamespaceChildren(ctx, model.NormalizeNamespace(namespace))
}

// ListBaseNamespaces lists the base namespaces holding items
func (c *Client) ListBaseNamespaces(ctx context.Context) ([]string, error) {
	return c.remote.BaseNamespaces(ctx)
}

// ListAllNamespaces lists every namespace of the repository
func (c *Client) ListAllNamespaces(ctx context.Context) ([]string, error) {
	return c.remote.AllNamespaces(ctx)
}

// CreateRootNamespace adds a root namespace, then refreshes the repository metadata
func (c *Client) CreateRootNamespace(ctx context.Context, rootNamespace string) error {
	if err := c.remote.CreateRootNamespace(ctx, model.NormalizeNamespace(rootNamespace)); err != nil {
		return err
	}
	return c.RefreshRepositoryMetadata(ctx)
}

// DeleteRootNamespace removes a root namespace, then refreshes the repository metadata
func (c *Client) DeleteRootNamespace(ctx context.Context, rootNamespace string) error {
	if err := c.remote.DeleteRootNamespace(ctx, model.NormalizeNamespace(rootNamespace)); err != nil {
		return err
	}
	return c.RefreshRepositoryMetadata(ctx)
}

// CreateNamespace adds a namespace below a root namespace
func (c *Client) CreateNamespace(ctx context.Context, namespace string) error {
	return c.remote.CreateNamespace(ctx, model.NormalizeNamespace(namespace))
}

// DeleteNamespace removes an empty namespace
func (c *Client) DeleteNamespace(ctx context.Context, namespace string) error {
	return c.remote.DeleteNamespace(ctx, model.NormalizeNamespace(namespace))
}
