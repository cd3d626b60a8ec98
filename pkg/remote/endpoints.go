// Copyright © 2018 One Concern

package remote

import (
	"context"
	"io"
	"net/url"
	"strconv"

	"github.com/oneconcern/otarepo/pkg/model"
	"github.com/oneconcern/otarepo/pkg/remote/status"
)

// RepositoryMetadata fetches the description of the repository
func (c *Client) RepositoryMetadata(ctx context.Context) (model.RepositoryInfo, error) {
	var info model.RepositoryInfo
	err := c.call(ctx, getRequest(PathRepositoryMetadata, nil), &info)
	return info, err
}

func (c *Client) namespaces(ctx context.Context, rq request) ([]string, error) {
	var list NamespaceList
	if err := c.call(ctx, rq, &list); err != nil {
		return nil, err
	}
	if list.Namespaces == nil {
		return []string{}, nil
	}
	return list.Namespaces, nil
}

// AllNamespaces lists every namespace in the repository
func (c *Client) AllNamespaces(ctx context.Context) ([]string, error) {
	return c.namespaces(ctx, getRequest(PathAllNamespaces, nil))
}

// BaseNamespaces lists the base namespaces in the repository
func (c *Client) BaseNamespaces(ctx context.Context) ([]string, error) {
	return c.namespaces(ctx, getRequest(PathBaseNamespaces, nil))
}

// NamespaceChildren lists the direct children of a namespace
func (c *Client) NamespaceChildren(ctx context.Context, namespace string) ([]string, error) {
	return c.namespaces(ctx, getRequest(PathNamespaceChildren, url.Values{
		ParamBaseNamespace: {namespace},
	}))
}

func (c *Client) items(ctx context.Context, rq request) ([]model.ItemMetadata, error) {
	var list ItemList
	if err := c.call(ctx, rq, &list); err != nil {
		return nil, err
	}
	if list.Items == nil {
		return []model.ItemMetadata{}, nil
	}
	return list.Items, nil
}

// ListItems lists the items in a namespace (legacy listing, draft items included or not)
func (c *Client) ListItems(ctx context.Context, namespace string, latestVersionOnly, includeDraft bool) ([]model.ItemMetadata, error) {
	rq, err := postJSON(PathListItems, nil, ListItemsRequest{
		Namespace:         namespace,
		LatestVersionOnly: latestVersionOnly,
		IncludeDraft:      includeDraft,
	})
	if err != nil {
		return nil, err
	}
	return c.items(ctx, rq)
}

// ListItems2 lists the items in a namespace, with a minimum status and an optional item type
func (c *Client) ListItems2(ctx context.Context, namespace string, includeStatus model.Status, latestVersionOnly bool, itemType model.ItemType) ([]model.ItemMetadata, error) {
	var query url.Values
	if itemType != "" {
		query = url.Values{ParamItemType: {itemType.String()}}
	}
	rq, err := postJSON(PathListItems2, query, ListItems2Request{
		Namespace:         namespace,
		IncludeStatus:     includeStatus,
		LatestVersionOnly: latestVersionOnly,
	})
	if err != nil {
		return nil, err
	}
	return c.items(ctx, rq)
}

// Search items with a free text query (legacy search, items only)
func (c *Client) Search(ctx context.Context, query string, latestVersion, includeDraft bool) ([]model.ItemMetadata, error) {
	return c.items(ctx, getRequest(PathSearch, url.Values{
		ParamQuery:         {query},
		ParamLatestVersion: {strconv.FormatBool(latestVersion)},
		ParamIncludeDraft:  {strconv.FormatBool(includeDraft)},
	}))
}

// Search2 searches items and entities with a free text query
func (c *Client) Search2(ctx context.Context, query string, includeStatus model.Status, latestVersion bool, itemType model.ItemType) ([]model.SearchResult, error) {
	values := url.Values{
		ParamQuery:         {query},
		ParamLatestVersion: {strconv.FormatBool(latestVersion)},
	}
	if includeStatus != "" {
		values.Set(ParamIncludeStatus, includeStatus.String())
	}
	if itemType != "" {
		values.Set(ParamItemType, itemType.String())
	}
	var list SearchResultList
	if err := c.call(ctx, getRequest(PathSearch2, values), &list); err != nil {
		return nil, err
	}
	for _, result := range list.Results {
		if err := result.Validate(); err != nil {
			return nil, status.ErrUnreadable.Wrap(err)
		}
	}
	if list.Results == nil {
		return []model.SearchResult{}, nil
	}
	return list.Results, nil
}

// VersionHistory lists all versions of an item
func (c *Client) VersionHistory(ctx context.Context, id model.ItemIdentity) ([]model.ItemMetadata, error) {
	rq, err := postJSON(PathVersionHistory, nil, id)
	if err != nil {
		return nil, err
	}
	return c.items(ctx, rq)
}

// History lists the commits of an item
func (c *Client) History(ctx context.Context, id model.ItemIdentity) (model.ItemHistory, error) {
	var history model.ItemHistory
	rq, err := postJSON(PathHistory, nil, id)
	if err != nil {
		return history, err
	}
	err = c.call(ctx, rq, &history)
	return history, err
}

// ItemWhereUsed lists the items depending on an item
func (c *Client) ItemWhereUsed(ctx context.Context, id model.ItemIdentity, includeIndirect bool) ([]model.ItemMetadata, error) {
	rq, err := postJSON(PathItemWhereUsed, url.Values{
		ParamIncludeIndirect: {strconv.FormatBool(includeIndirect)},
	}, id)
	if err != nil {
		return nil, err
	}
	return c.items(ctx, rq)
}

// EntityWhereUsed lists the items referring to an entity
func (c *Client) EntityWhereUsed(ctx context.Context, entity model.EntityInfo, includeIndirect bool) ([]model.ItemMetadata, error) {
	rq, err := postJSON(PathEntityWhereUsed, url.Values{
		ParamIncludeIndirect: {strconv.FormatBool(includeIndirect)},
	}, entity)
	if err != nil {
		return nil, err
	}
	return c.items(ctx, rq)
}

// EntityWhereExtended lists the entities extending an entity
func (c *Client) EntityWhereExtended(ctx context.Context, entity model.EntityInfo) ([]model.EntityInfo, error) {
	rq, err := postJSON(PathEntityWhereExtended, nil, entity)
	if err != nil {
		return nil, err
	}
	var list EntityList
	if err = c.call(ctx, rq, &list); err != nil {
		return nil, err
	}
	if list.Entities == nil {
		return []model.EntityInfo{}, nil
	}
	return list.Entities, nil
}

// UserAuthorization tells the permission of the current user on a base namespace
func (c *Client) UserAuthorization(ctx context.Context, baseNamespace string) (model.Permission, error) {
	var p PermissionResponse
	err := c.call(ctx, getRequest(PathUserAuthorization, url.Values{
		ParamBaseNamespace: {baseNamespace},
	}), &p)
	return p.Permission, err
}

// LockedItems lists the items locked by the current user
func (c *Client) LockedItems(ctx context.Context) ([]model.ItemMetadata, error) {
	return c.items(ctx, getRequest(PathLockedItems, nil))
}

// CreateRootNamespace adds a root namespace to the repository
func (c *Client) CreateRootNamespace(ctx context.Context, rootNamespace string) error {
	return c.call(ctx, getRequest(PathCreateRootNamespace, url.Values{ParamRootNamespace: {rootNamespace}}), nil)
}

// DeleteRootNamespace removes a root namespace from the repository
func (c *Client) DeleteRootNamespace(ctx context.Context, rootNamespace string) error {
	return c.call(ctx, getRequest(PathDeleteRootNamespace, url.Values{ParamRootNamespace: {rootNamespace}}), nil)
}

// CreateNamespace adds a namespace under a root namespace
func (c *Client) CreateNamespace(ctx context.Context, namespace string) error {
	return c.call(ctx, getRequest(PathCreateNamespace, url.Values{ParamBaseNamespace: {namespace}}), nil)
}

// DeleteNamespace removes an empty namespace
func (c *Client) DeleteNamespace(ctx context.Context, namespace string) error {
	return c.call(ctx, getRequest(PathDeleteNamespace, url.Values{ParamBaseNamespace: {namespace}}), nil)
}

// Publication describes the upload of a new item
type Publication struct {
	Content       io.Reader
	Filename      string
	LibraryName   string
	Namespace     string
	Version       string
	VersionScheme string
	Status        model.Status
}

// Publish uploads a new item
func (c *Client) Publish(ctx context.Context, p Publication) (model.ItemMetadata, error) {
	var meta model.ItemMetadata
	f := c.newForm()
	if p.VersionScheme != "" {
		f.field(FieldVersionScheme, p.VersionScheme)
	}
	f.file(FieldFileContent, p.Filename, p.Content).
		field(FieldNamespace, p.Namespace).
		field(FieldLibraryName, p.LibraryName).
		field(FieldVersion, p.Version).
		field(FieldStatus, p.Status.String())
	rq, err := f.request(PathPublish)
	if err != nil {
		return meta, err
	}
	err = c.call(ctx, rq, &meta)
	return meta, err
}

func (c *Client) itemCall(ctx context.Context, path string, query url.Values, id model.ItemIdentity) (model.ItemMetadata, error) {
	var meta model.ItemMetadata
	rq, err := postJSON(path, query, id)
	if err != nil {
		return meta, err
	}
	err = c.call(ctx, rq, &meta)
	return meta, err
}

// Metadata fetches the metadata record of an item
func (c *Client) Metadata(ctx context.Context, id model.ItemIdentity) (model.ItemMetadata, error) {
	return c.itemCall(ctx, PathMetadata, nil, id)
}

// Content fetches the content of an item
func (c *Client) Content(ctx context.Context, id model.ItemIdentity) ([]byte, error) {
	rq, err := postJSON(PathContent, nil, id)
	if err != nil {
		return nil, err
	}
	return c.raw(ctx, rq)
}

// Lock an item for the current user
func (c *Client) Lock(ctx context.Context, id model.ItemIdentity) (model.ItemMetadata, error) {
	return c.itemCall(ctx, PathLock, nil, id)
}

// Unlock an item. When a work in progress is provided, it is committed before the lock is released.
func (c *Client) Unlock(ctx context.Context, id model.ItemIdentity, wip io.Reader, remarks string) (model.ItemMetadata, error) {
	f := c.newForm().jsonField(FieldItem, id)
	if wip != nil {
		f.file(FieldFileContent, id.Filename, wip).field(FieldRemarks, remarks)
	}
	return c.formCall(ctx, PathUnlock, f)
}

// Commit the work in progress on a locked item, keeping the lock
func (c *Client) Commit(ctx context.Context, id model.ItemIdentity, wip io.Reader, remarks string) (model.ItemMetadata, error) {
	f := c.newForm().
		jsonField(FieldItem, id).
		file(FieldFileContent, id.Filename, wip).
		field(FieldRemarks, remarks)
	return c.formCall(ctx, PathCommit, f)
}

func (c *Client) formCall(ctx context.Context, path string, f *form) (model.ItemMetadata, error) {
	var meta model.ItemMetadata
	rq, err := f.request(path)
	if err != nil {
		return meta, err
	}
	err = c.call(ctx, rq, &meta)
	return meta, err
}

// Promote an item to the next status
func (c *Client) Promote(ctx context.Context, id model.ItemIdentity) (model.ItemMetadata, error) {
	return c.itemCall(ctx, PathPromote, nil, id)
}

// Demote an item to the previous status
func (c *Client) Demote(ctx context.Context, id model.ItemIdentity) (model.ItemMetadata, error) {
	return c.itemCall(ctx, PathDemote, nil, id)
}

// UpdateStatus sets the status of an item
func (c *Client) UpdateStatus(ctx context.Context, id model.ItemIdentity, newStatus model.Status) (model.ItemMetadata, error) {
	return c.itemCall(ctx, PathUpdateStatus, url.Values{ParamNewStatus: {newStatus.String()}}, id)
}

// RecalculateCRC asks the repository to recompute the checksum of an item
func (c *Client) RecalculateCRC(ctx context.Context, id model.ItemIdentity) (model.ItemMetadata, error) {
	return c.itemCall(ctx, PathRecalculateCRC, nil, id)
}

// Delete an item from the repository
func (c *Client) Delete(ctx context.Context, id model.ItemIdentity) error {
	rq, err := postJSON(PathDelete, nil, id)
	if err != nil {
		return err
	}
	return c.call(ctx, rq, nil)
}

func historicalQuery(id model.ItemIdentity, commit *int) url.Values {
	values := url.Values{
		ParamHistoricalBaseNS:  {id.BaseNamespace},
		ParamHistoricalVersion: {id.Version},
		ParamHistoricalFile:    {id.Filename},
	}
	if commit != nil {
		values.Set(ParamHistoricalCommit, strconv.Itoa(*commit))
	}
	return values
}

// HistoricalContentURL is the location of the content of an item at some commit.
// A nil commit designates the latest content.
func (c *Client) HistoricalContentURL(id model.ItemIdentity, commit *int) string {
	return c.URL(PathHistoricalContent, historicalQuery(id, commit))
}

// HistoricalContent streams the content of an item at some commit. The caller closes the reader.
func (c *Client) HistoricalContent(ctx context.Context, id model.ItemIdentity, commit *int) (io.ReadCloser, error) {
	resp, err := c.send(ctx, getRequest(PathHistoricalContent, historicalQuery(id, commit)))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
