// Copyright © 2018 One Concern

package remote_test

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"net/http"
	"strings"
	"testing"

	"github.com/oneconcern/otarepo/internal/rand"
	"github.com/oneconcern/otarepo/pkg/model"
	"github.com/oneconcern/otarepo/pkg/remote"
	"github.com/oneconcern/otarepo/pkg/remote/remotetest"
	"github.com/oneconcern/otarepo/pkg/remote/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rootNS = "http://www.example.com/ns"
	libNS  = rootNS + "/a/v01_00"
)

var libID = model.ItemIdentity{
	BaseNamespace: rootNS + "/a",
	Filename:      "lib_1_0_0.otm",
	Version:       "1.0.0",
}

func setupService(t testing.TB, opts ...remotetest.Option) (*remotetest.Service, []byte) {
	svc := remotetest.New("repo1", append([]remotetest.Option{remotetest.WithRootNamespaces(rootNS)}, opts...)...)
	t.Cleanup(svc.Close)
	content := rand.LetterBytes(256)
	svc.Seed(model.ItemMetadata{
		Namespace:   libNS,
		Filename:    libID.Filename,
		LibraryName: "lib",
	}, content)
	return svc, content
}

func newClient(t testing.TB, svc *remotetest.Service, opts ...remote.Option) *remote.Client {
	c, err := remote.New(svc.Endpoint(), opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	for _, endpoint := range []string{"", "ftp://example.com", "http://", "://bad"} {
		_, err := remote.New(endpoint)
		require.Errorf(t, err, "expected %q to be rejected", endpoint)
		assert.True(t, errors.Is(err, status.ErrInvalidRequest))
	}

	c, err := remote.New(" http://localhost:8080/repo/ ")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/repo", c.Endpoint())
	assert.Equal(t, "http://localhost:8080/repo/service/content", c.URL(remote.PathContent, nil))
}

func TestRepositoryMetadata(t *testing.T) {
	svc, _ := setupService(t, remotetest.WithDisplayName("Test repository"))
	c := newClient(t, svc)
	ctx := context.Background()

	info, err := c.RepositoryMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "repo1", info.ID)
	assert.Equal(t, "Test repository", info.DisplayName)
	assert.Equal(t, []string{rootNS}, info.RootNamespaces)

	all, err := c.AllNamespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{rootNS, rootNS + "/a", libNS}, all)

	base, err := c.BaseNamespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{libID.BaseNamespace}, base)

	children, err := c.NamespaceChildren(ctx, rootNS)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, children)
}

func TestMetadataAndContent(t *testing.T) {
	svc, content := setupService(t)
	c := newClient(t, svc)
	ctx := context.Background()

	meta, err := c.Metadata(ctx, libID)
	require.NoError(t, err)
	assert.Equal(t, "repo1", meta.OwningRepository)
	assert.Equal(t, libID, meta.Identity())
	assert.Equal(t, model.StatusDraft, meta.Status)
	assert.Equal(t, model.StateManagedUnlocked, meta.State)
	assert.False(t, meta.LastUpdated.IsZero())

	raw, err := c.Content(ctx, libID)
	require.NoError(t, err)
	assert.Equal(t, content, raw)

	missing := libID
	missing.Version = "9.9.9"
	_, err = c.Metadata(ctx, missing)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound))
	assert.True(t, errors.Is(err, status.ErrRejected))
}

func TestLockConflict(t *testing.T) {
	svc, _ := setupService(t)
	alice := newClient(t, svc, remote.Credentials("alice", "secret"))
	bob := newClient(t, svc, remote.Credentials("bob", "secret"))
	ctx := context.Background()

	meta, err := alice.Lock(ctx, libID)
	require.NoError(t, err)
	assert.Equal(t, "alice", meta.LockedBy)
	assert.Equal(t, model.StateManagedLocked, meta.State)

	_, err = bob.Lock(ctx, libID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrConflict))
	assert.True(t, errors.Is(err, status.ErrRejected))

	var rerr *status.ResponseError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, http.StatusConflict, rerr.StatusCode)
	assert.Contains(t, rerr.Message, "alice")

	locked, err := alice.LockedItems(ctx)
	require.NoError(t, err)
	require.Len(t, locked, 1)
	assert.Equal(t, libID, locked[0].Identity())

	locked, err = bob.LockedItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, locked)
}

func TestCommitAndUnlock(t *testing.T) {
	svc, content := setupService(t)
	c := newClient(t, svc, remote.Credentials("alice", "secret"))
	ctx := context.Background()

	_, err := c.Lock(ctx, libID)
	require.NoError(t, err)

	_, err = c.Commit(ctx, libID, strings.NewReader("first edit"), "work in progress")
	require.NoError(t, err)

	meta, err := c.Unlock(ctx, libID, strings.NewReader("second edit"), "done")
	require.NoError(t, err)
	assert.Empty(t, meta.LockedBy)

	raw, err := c.Content(ctx, libID)
	require.NoError(t, err)
	assert.Equal(t, "second edit", string(raw))

	history, err := c.History(ctx, libID)
	require.NoError(t, err)
	require.Len(t, history.Commits, 3)
	last := history.SortedCommits()[0]
	assert.Equal(t, 3, last.CommitNumber)
	assert.Equal(t, "alice", last.User)
	assert.Equal(t, "done", last.Remarks)

	first := 1
	rdr, err := c.HistoricalContent(ctx, libID, &first)
	require.NoError(t, err)
	defer rdr.Close()
	initial, err := ioutil.ReadAll(rdr)
	require.NoError(t, err)
	assert.Equal(t, content, initial)

	assert.Contains(t, c.HistoricalContentURL(libID, &first), "commit=1")
}

func TestUnlockWithoutCommit(t *testing.T) {
	svc, content := setupService(t)
	c := newClient(t, svc)
	ctx := context.Background()

	_, err := c.Lock(ctx, libID)
	require.NoError(t, err)
	_, err = c.Unlock(ctx, libID, nil, "")
	require.NoError(t, err)

	_, current, ok := svc.Item(libID)
	require.True(t, ok)
	assert.Equal(t, content, current)
}

func TestLifecycle(t *testing.T) {
	svc, _ := setupService(t)
	c := newClient(t, svc)
	ctx := context.Background()

	meta, err := c.Promote(ctx, libID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnderReview, meta.Status)

	meta, err = c.Demote(ctx, libID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, meta.Status)

	_, err = c.Demote(ctx, libID)
	assert.True(t, errors.Is(err, status.ErrRejected))

	meta, err = c.UpdateStatus(ctx, libID, model.StatusFinal)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinal, meta.Status)

	before := meta.LastUpdated
	meta, err = c.RecalculateCRC(ctx, libID)
	require.NoError(t, err)
	assert.True(t, meta.LastUpdated.After(before))

	require.NoError(t, c.Delete(ctx, libID))
	_, err = c.Metadata(ctx, libID)
	assert.True(t, errors.Is(err, status.ErrNotFound))
}

func TestPublish(t *testing.T) {
	svc, _ := setupService(t)
	c := newClient(t, svc)
	ctx := context.Background()

	meta, err := c.Publish(ctx, remote.Publication{
		Content:     bytes.NewReader([]byte("new library")),
		Filename:    "other_1_0_0.otm",
		LibraryName: "other",
		Namespace:   libNS,
		Version:     "1.0.0",
		Status:      model.StatusDraft,
	})
	require.NoError(t, err)
	assert.Equal(t, libID.BaseNamespace, meta.BaseNamespace)
	assert.Equal(t, "repo1", meta.OwningRepository)

	_, err = c.Publish(ctx, remote.Publication{
		Content:   bytes.NewReader([]byte("new library")),
		Filename:  "other_1_0_0.otm",
		Namespace: libNS,
		Version:   "1.0.0",
	})
	assert.True(t, errors.Is(err, status.ErrConflict))

	items, err := c.ListItems2(ctx, libID.BaseNamespace, model.StatusDraft, false, "")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestMaxUploadSize(t *testing.T) {
	svc, _ := setupService(t)
	c := newClient(t, svc, remote.MaxUploadSize(8))

	_, err := c.Commit(context.Background(), libID, bytes.NewReader(rand.Bytes(9)), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrTooLarge))
	assert.EqualValues(t, 0, svc.Calls(remote.PathCommit))
}

func TestListAndSearch(t *testing.T) {
	svc, _ := setupService(t)
	svc.Seed(model.ItemMetadata{
		Namespace:   rootNS + "/a/v01_01",
		Filename:    "lib_1_1_0.otm",
		LibraryName: "lib",
		Status:      model.StatusFinal,
	}, []byte("v1.1"))
	svc.AddEntity(model.EntityInfo{EntityName: "LibEntity", EntityType: "BusinessObject"})
	c := newClient(t, svc)
	ctx := context.Background()

	items, err := c.ListItems(ctx, libID.BaseNamespace, false, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1.1.0", items[0].Version)

	items, err = c.ListItems2(ctx, libID.BaseNamespace, model.StatusDraft, true, model.ItemTypeLibrary)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1.1.0", items[0].Version)

	items, err = c.VersionHistory(ctx, libID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "1.1.0", items[0].Version)

	items, err = c.Search(ctx, "LIB", false, true)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	results, err := c.Search2(ctx, "lib", model.StatusFinal, false, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, model.ResultLibrary, results[0].Kind)
	assert.Equal(t, "1.1.0", results[0].Library.Version)
	assert.Equal(t, model.ResultEntity, results[1].Kind)
	assert.Equal(t, "LibEntity", results[1].Entity.EntityName)
}

func TestWhereUsed(t *testing.T) {
	svc, _ := setupService(t)
	user := svc.Seed(model.ItemMetadata{Namespace: rootNS + "/b/v01_00", Filename: "user_1_0_0.otm"}, []byte("user"))
	indirect := svc.Seed(model.ItemMetadata{Namespace: rootNS + "/c/v01_00", Filename: "top_1_0_0.otm"}, []byte("top"))
	svc.AddWhereUsed(libID, user.Identity())
	svc.AddWhereUsed(user.Identity(), indirect.Identity())
	entity := model.EntityInfo{EntityName: "Thing"}
	svc.AddEntity(entity, user.Identity())
	svc.AddExtension("Thing", model.EntityInfo{EntityName: "BetterThing"})
	c := newClient(t, svc)
	ctx := context.Background()

	items, err := c.ItemWhereUsed(ctx, libID, false)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = c.ItemWhereUsed(ctx, libID, true)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = c.EntityWhereUsed(ctx, entity, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, user.Identity(), items[0].Identity())

	entities, err := c.EntityWhereExtended(ctx, entity)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "BetterThing", entities[0].EntityName)
}

func TestNamespaceManagement(t *testing.T) {
	svc, _ := setupService(t)
	c := newClient(t, svc)
	ctx := context.Background()

	require.NoError(t, c.CreateRootNamespace(ctx, "http://other.example.com/root"))
	err := c.CreateRootNamespace(ctx, rootNS+"/nested")
	assert.True(t, errors.Is(err, status.ErrConflict))

	require.NoError(t, c.CreateNamespace(ctx, "http://other.example.com/root/child"))
	children, err := c.NamespaceChildren(ctx, "http://other.example.com/root")
	require.NoError(t, err)
	assert.Equal(t, []string{"child"}, children)

	err = c.DeleteRootNamespace(ctx, rootNS)
	assert.True(t, errors.Is(err, status.ErrConflict))

	require.NoError(t, c.DeleteNamespace(ctx, "http://other.example.com/root/child"))
	require.NoError(t, c.DeleteRootNamespace(ctx, "http://other.example.com/root"))

	info, err := c.RepositoryMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{rootNS}, info.RootNamespaces)
}

func TestAuthorization(t *testing.T) {
	svc, _ := setupService(t, remotetest.WithUser("alice", "secret"))
	svc.SetPermission(libID.BaseNamespace, model.PermissionReadFinal)
	ctx := context.Background()

	anonymous := newClient(t, svc)
	_, err := anonymous.Metadata(ctx, libID)
	assert.True(t, errors.Is(err, status.ErrUnauthorized))

	wrong := newClient(t, svc, remote.Credentials("alice", "guess"))
	_, err = wrong.Metadata(ctx, libID)
	assert.True(t, errors.Is(err, status.ErrUnauthorized))

	c := newClient(t, svc, remote.Credentials("alice", "secret"))
	p, err := c.UserAuthorization(ctx, libID.BaseNamespace)
	require.NoError(t, err)
	assert.Equal(t, model.PermissionReadFinal, p)

	_, err = c.Lock(ctx, libID)
	assert.True(t, errors.Is(err, status.ErrUnauthorized))
}

func TestUnavailable(t *testing.T) {
	svc, _ := setupService(t)
	c := newClient(t, svc)
	svc.Close()

	_, err := c.Metadata(context.Background(), libID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrUnavailable))
	assert.False(t, errors.Is(err, status.ErrRejected))
}

func TestInjectedFailure(t *testing.T) {
	svc, _ := setupService(t)
	c := newClient(t, svc)
	svc.Fail(remote.PathContent, http.StatusInternalServerError)

	_, err := c.Content(context.Background(), libID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrRejected))
	assert.False(t, errors.Is(err, status.ErrConflict))

	var rerr *status.ResponseError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "injected failure", rerr.Message)

	svc.Heal()
	_, err = c.Content(context.Background(), libID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, svc.Calls(remote.PathContent))
}

func TestMetrics(t *testing.T) {
	svc, _ := setupService(t)
	reg := prometheus.NewRegistry()
	c := newClient(t, svc, remote.Registerer(reg))
	ctx := context.Background()

	_, err := c.Metadata(ctx, libID)
	require.NoError(t, err)
	_, err = c.Content(ctx, libID)
	require.NoError(t, err)
	svc.Fail(remote.PathContent, http.StatusServiceUnavailable)
	_, err = c.Content(ctx, libID)
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "otarepo_remote_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// a second client reuses the registered collectors
	_ = newClient(t, svc, remote.Registerer(reg))
}
