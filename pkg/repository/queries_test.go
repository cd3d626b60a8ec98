// Copyright © 2018 One Concern

package repository_test

import (
	"context"
	"errors"
	"io/ioutil"
	"sync"
	"testing"
	"time"

	"github.com/oneconcern/otarepo/pkg/model"
	"github.com/oneconcern/otarepo/pkg/repository"
	"github.com/oneconcern/otarepo/pkg/repository/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAndSearch(t *testing.T) {
	svc, _ := setupService(t)
	final := svc.Seed(model.ItemMetadata{
		Namespace:   rootNS + "/a/v01_01",
		Filename:    "lib_1_1_0.otm",
		LibraryName: "lib",
		Status:      model.StatusFinal,
	}, []byte("v1.1"))
	svc.AddEntity(model.EntityInfo{EntityName: "LibraryEntity", Library: final})
	require.True(t, svc.ForceLock(libID, "bob"))

	c, _ := newClient(t, svc, clientOptions{user: "alice"})
	ctx := context.Background()

	items, err := c.ListItems(ctx, libID.BaseNamespace, repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "1.1.0", items[0].Version)
	assert.Equal(t, model.StateManagedUnlocked, items[0].State)
	assert.Equal(t, "1.0.0", items[1].Version)
	assert.Equal(t, model.StateManagedLocked, items[1].State)
	assert.Equal(t, "bob", items[1].LockedByUser)
	assert.Equal(t, repoID, items[1].Repository)

	items, err = c.ListItems(ctx, libID.BaseNamespace, repository.ListOptions{IncludeStatus: model.StatusFinal})
	require.NoError(t, err)
	require.Len(t, items, 1)

	items, err = c.ListItems(ctx, libID.BaseNamespace, repository.ListOptions{ItemType: model.ItemTypeRelease})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = c.ListAllItems(ctx, libID.BaseNamespace, true, true)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1.1.0", items[0].Version)

	items, err = c.SearchItems(ctx, "lib", false, false)
	require.NoError(t, err)
	require.Len(t, items, 1)

	results, err := c.Search(ctx, "lib", repository.SearchOptions{LatestOnly: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, model.ResultLibrary, results[0].Kind)
	assert.Equal(t, final.Identity(), results[0].Item.Identity())
	assert.Equal(t, model.ResultEntity, results[1].Kind)
	assert.Equal(t, "LibraryEntity", results[1].Entity.EntityName)

	first := getItem(t, c, libID)
	versions, err := c.VersionHistory(ctx, first)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "1.1.0", versions[0].Version)

	p, err := c.UserAuthorization(ctx, libID.BaseNamespace)
	require.NoError(t, err)
	assert.Equal(t, model.PermissionWrite, p)
}

func TestWhereUsed(t *testing.T) {
	svc, _ := setupService(t)
	user := svc.Seed(model.ItemMetadata{Namespace: rootNS + "/b/v01_00", Filename: "user_1_0_0.otm"}, []byte("user"))
	top := svc.Seed(model.ItemMetadata{Namespace: rootNS + "/c/v01_00", Filename: "top_1_0_0.otm"}, []byte("top"))
	svc.AddWhereUsed(libID, user.Identity())
	svc.AddWhereUsed(user.Identity(), top.Identity())
	entity := model.EntityInfo{EntityName: "Thing", EntityType: "ValueWithAttributes"}
	svc.AddEntity(entity, top.Identity())
	svc.AddExtension(entity.EntityName, model.EntityInfo{EntityName: "SpecialThing"})

	c, _ := newClient(t, svc, clientOptions{})
	ctx := context.Background()
	item := getItem(t, c, libID)

	used, err := c.ItemWhereUsed(ctx, item, false)
	require.NoError(t, err)
	require.Len(t, used, 1)
	assert.Equal(t, user.Identity(), used[0].Identity())

	used, err = c.ItemWhereUsed(ctx, item, true)
	require.NoError(t, err)
	assert.Len(t, used, 2)

	used, err = c.EntityWhereUsed(ctx, entity, false)
	require.NoError(t, err)
	require.Len(t, used, 1)
	assert.Equal(t, top.Identity(), used[0].Identity())

	extended, err := c.EntityWhereExtended(ctx, entity)
	require.NoError(t, err)
	require.Len(t, extended, 1)
	assert.Equal(t, "SpecialThing", extended[0].EntityName)
}

func TestNamespaces(t *testing.T) {
	svc, _ := setupService(t)
	c, _ := newClient(t, svc, clientOptions{})
	ctx := context.Background()

	assert.Empty(t, c.ListRootNamespaces())
	require.NoError(t, c.RefreshRepositoryMetadata(ctx))
	assert.Equal(t, []string{rootNS}, c.ListRootNamespaces())
	assert.Equal(t, repoID, c.DisplayName())

	other := "http://other.example.com/root"
	require.NoError(t, c.CreateRootNamespace(ctx, other+"/"))
	assert.Equal(t, []string{other, rootNS}, c.ListRootNamespaces())

	require.NoError(t, c.CreateNamespace(ctx, other+"/child"))
	children, err := c.ListNamespaceChildren(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, []string{"child"}, children)

	all, err := c.ListAllNamespaces(ctx)
	require.NoError(t, err)
	assert.Contains(t, all, other+"/child")

	base, err := c.ListBaseNamespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{libID.BaseNamespace}, base)

	require.NoError(t, c.DeleteNamespace(ctx, other+"/child"))
	require.NoError(t, c.DeleteRootNamespace(ctx, other))
	assert.Equal(t, []string{rootNS}, c.ListRootNamespaces())

	snapshot := c.ListRootNamespaces()
	c.SetRootNamespaces([]string{"http://x.example.com/ns/", " http://a.example.com/ns"})
	assert.Equal(t, []string{rootNS}, snapshot, "snapshots are not affected by later updates")
	assert.Equal(t, []string{"http://a.example.com/ns", "http://x.example.com/ns"}, c.ListRootNamespaces())
}

func TestConcurrentRootNamespaces(t *testing.T) {
	svc, _ := setupService(t)
	c, _ := newClient(t, svc, clientOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.SetRootNamespaces([]string{rootNS})
		}()
		go func() {
			defer wg.Done()
			namespaces := c.ListRootNamespaces()
			assert.True(t, len(namespaces) <= 1)
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{rootNS}, c.ListRootNamespaces())
}

func TestRefreshForeignEndpoint(t *testing.T) {
	svc, _ := setupService(t)
	c, _ := newClient(t, svc, clientOptions{id: "repo2"})

	err := c.RefreshRepositoryMetadata(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrForeignRepository))
	assert.Empty(t, c.ListRootNamespaces())
}

func TestHistoricalContent(t *testing.T) {
	svc, original := setupService(t)
	c, _ := newClient(t, svc, clientOptions{})
	ctx := context.Background()
	item := getItem(t, c, libID)

	_, ok := svc.Update(libID, []byte("second version"), "bob")
	require.True(t, ok)

	history, err := c.History(ctx, item)
	require.NoError(t, err)
	require.Len(t, history.Commits, 2)
	initial := history.SortedCommits()[1]

	rdr, err := c.HistoricalContent(ctx, item, initial.EffectiveOn)
	require.NoError(t, err)
	buf, err := ioutil.ReadAll(rdr)
	require.NoError(t, rdr.Close())
	require.NoError(t, err)
	assert.Equal(t, original, buf)

	rdr, err = c.HistoricalContent(ctx, item, history.SortedCommits()[0].EffectiveOn.Add(time.Hour))
	require.NoError(t, err)
	buf, err = ioutil.ReadAll(rdr)
	require.NoError(t, rdr.Close())
	require.NoError(t, err)
	assert.Equal(t, "second version", string(buf))

	u, err := c.HistoricalContentURL(ctx, item, initial.EffectiveOn)
	require.NoError(t, err)
	assert.Contains(t, u, "commit=1")
	assert.Contains(t, u, svc.Endpoint())

	_, err = c.HistoricalContent(ctx, item, initial.EffectiveOn.Add(-time.Hour))
	assert.True(t, errors.Is(err, status.ErrNoCommit))
}

func TestLocalItems(t *testing.T) {
	svc, _ := setupService(t)
	svc.Seed(model.ItemMetadata{Namespace: rootNS + "/b/v01_00", Filename: "remote_1_0_0.otm"}, []byte("remote only"))
	c, fs := newClient(t, svc, clientOptions{user: "alice"})
	ctx := context.Background()

	items, err := c.LocalItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	item := getItem(t, c, libID)
	require.NoError(t, c.Lock(ctx, item))

	svc.ResetCalls()
	items, err = c.LocalItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, libID, items[0].Identity())
	assert.Equal(t, model.StateManagedWIP, items[0].State)
	assert.EqualValues(t, 0, svc.TotalCalls())

	other, _ := newClient(t, svc, clientOptions{id: "elsewhere", fs: fs})
	items, err = other.LocalItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
