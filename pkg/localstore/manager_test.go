// Copyright © 2018 One Concern

package localstore

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oneconcern/otarepo/internal/faultfs"
	"github.com/oneconcern/otarepo/pkg/model"
	"github.com/oneconcern/otarepo/pkg/storage"
	"github.com/oneconcern/otarepo/pkg/storage/localfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testID = model.ItemIdentity{
	BaseNamespace: "http://www.example.com/ns/a",
	Filename:      "lib_1_0_0.otm",
	Version:       "1.0.0",
}

func testMetadata(lastUpdated time.Time) model.ItemMetadata {
	return model.ItemMetadata{
		OwningRepository: "repo1",
		Namespace:        "http://www.example.com/ns/a/v01_00",
		BaseNamespace:    testID.BaseNamespace,
		Filename:         testID.Filename,
		LibraryName:      "lib",
		Version:          testID.Version,
		Status:           model.StatusDraft,
		State:            model.StateManagedUnlocked,
		LastUpdated:      lastUpdated,
	}
}

func setupManager(t testing.TB, fs afero.Fs, opts ...Option) (*FileManager, storage.Store) {
	t.Helper()
	if fs == nil {
		fs = afero.NewMemMapFs()
	}
	store, err := localfs.NewAtomic(fs)
	require.NoError(t, err)
	m, err := New(context.Background(), store, opts...)
	require.NoError(t, err)
	return m, store
}

func readContent(t testing.TB, m *FileManager, id model.ItemIdentity) string {
	t.Helper()
	rdr, err := m.Content(context.Background(), id)
	require.NoError(t, err)
	defer rdr.Close()
	b, err := ioutil.ReadAll(rdr)
	require.NoError(t, err)
	return string(b)
}

func TestLoadMissingMetadata(t *testing.T) {
	m, _ := setupManager(t, nil)
	_, err := m.LoadMetadata(context.Background(), testID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	has, err := m.HasContent(context.Background(), testID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCommitChangeSet(t *testing.T) {
	ctx := context.Background()
	m, store := setupManager(t, nil)
	now := time.Now().UTC().Truncate(time.Second)

	err := m.Do(ctx, func(cs *ChangeSet) error {
		if err := cs.SaveNamespaceIDs(ctx, testID.BaseNamespace); err != nil {
			return err
		}
		if err := cs.SaveMetadata(ctx, testMetadata(now)); err != nil {
			return err
		}
		return cs.SaveContent(ctx, testID, bytes.NewBufferString("content v1"))
	})
	require.NoError(t, err)

	meta, err := m.LoadMetadata(ctx, testID)
	require.NoError(t, err)
	assert.True(t, now.Equal(meta.LastUpdated))
	assert.Equal(t, "repo1", meta.OwningRepository)
	assert.Equal(t, "content v1", readContent(t, m, testID))

	nsid, err := storage.ReadAll(ctx, store, "items/com/example/www/ns/nsid.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(nsid), "namespace: http://www.example.com/ns")

	keys, err := store.KeysPrefix(ctx, model.GetPathPrefixToChangeSets())
	require.NoError(t, err)
	assert.Empty(t, keys, "committed changesets leave no backup behind")

	all, err := m.ListMetadata(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, testID, all[0].Identity())
}

func TestRollbackChangeSet(t *testing.T) {
	ctx := context.Background()
	m, store := setupManager(t, nil)
	before := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

	require.NoError(t, m.Do(ctx, func(cs *ChangeSet) error {
		if err := cs.SaveMetadata(ctx, testMetadata(before)); err != nil {
			return err
		}
		return cs.SaveContent(ctx, testID, bytes.NewBufferString("content v1"))
	}))

	// warm up the metadata cache
	_, err := m.LoadMetadata(ctx, testID)
	require.NoError(t, err)

	other := testID
	other.Version = "1.1.0"
	failure := errors.New("remote went away")

	err = m.Do(ctx, func(cs *ChangeSet) error {
		if err := cs.SaveMetadata(ctx, testMetadata(time.Now().UTC())); err != nil {
			return err
		}
		if err := cs.SaveContent(ctx, testID, bytes.NewBufferString("content v2")); err != nil {
			return err
		}
		if err := cs.SaveContent(ctx, other, bytes.NewBufferString("new")); err != nil {
			return err
		}
		if err := cs.CopyContentToWIP(ctx, testID); err != nil {
			return err
		}
		return failure
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure), "the triggering error is returned")

	meta, err := m.LoadMetadata(ctx, testID)
	require.NoError(t, err)
	assert.True(t, before.Equal(meta.LastUpdated), "metadata restored")
	assert.Equal(t, "content v1", readContent(t, m, testID))

	has, err := m.HasContent(ctx, other)
	require.NoError(t, err)
	assert.False(t, has, "files created by the changeset are removed")

	has, err = m.HasWIP(ctx, testID.BaseNamespace, testID.Filename)
	require.NoError(t, err)
	assert.False(t, has)

	keys, err := store.KeysPrefix(ctx, model.GetPathPrefixToChangeSets())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRollbackOnPanic(t *testing.T) {
	ctx := context.Background()
	m, _ := setupManager(t, nil)

	assert.Panics(t, func() {
		_ = m.Do(ctx, func(cs *ChangeSet) error {
			require.NoError(t, cs.SaveContent(ctx, testID, bytes.NewBufferString("boom")))
			panic("unexpected")
		})
	})

	has, err := m.HasContent(ctx, testID)
	require.NoError(t, err)
	assert.False(t, has)

	// the manager is released
	require.NoError(t, m.Do(ctx, func(*ChangeSet) error { return nil }))
}

func TestDeleteInChangeSet(t *testing.T) {
	ctx := context.Background()
	m, _ := setupManager(t, nil)

	require.NoError(t, m.Do(ctx, func(cs *ChangeSet) error {
		if err := cs.SaveMetadata(ctx, testMetadata(time.Now())); err != nil {
			return err
		}
		if err := cs.SaveContent(ctx, testID, bytes.NewBufferString("content")); err != nil {
			return err
		}
		return cs.SaveWIP(ctx, testID.BaseNamespace, testID.Filename, bytes.NewBufferString("wip"))
	}))

	// rolled back deletion
	err := m.Do(ctx, func(cs *ChangeSet) error {
		require.NoError(t, cs.DeleteMetadata(ctx, testID))
		require.NoError(t, cs.DeleteContent(ctx, testID))
		require.NoError(t, cs.DeleteWIP(ctx, testID.BaseNamespace, testID.Filename))
		return errors.New("abort")
	})
	require.Error(t, err)
	has, err := m.HasMetadata(ctx, testID)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = m.HasWIP(ctx, testID.BaseNamespace, testID.Filename)
	require.NoError(t, err)
	assert.True(t, has)

	// committed deletion
	require.NoError(t, m.Do(ctx, func(cs *ChangeSet) error {
		if err := cs.DeleteMetadata(ctx, testID); err != nil {
			return err
		}
		if err := cs.DeleteContent(ctx, testID); err != nil {
			return err
		}
		return cs.DeleteWIP(ctx, testID.BaseNamespace, testID.Filename)
	}))
	_, err = m.LoadMetadata(ctx, testID)
	assert.True(t, errors.Is(err, ErrNotFound))
	has, err = m.HasContent(ctx, testID)
	require.NoError(t, err)
	assert.False(t, has)

	// deleting missing files is a no-op
	require.NoError(t, m.Do(ctx, func(cs *ChangeSet) error {
		return cs.DeleteContent(ctx, testID)
	}))
}

func TestSingleActiveChangeSet(t *testing.T) {
	ctx := context.Background()
	m, _ := setupManager(t, nil)

	cs, err := m.Begin(ctx)
	require.NoError(t, err)

	_, err = m.Begin(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChangeSetActive))

	err = m.Do(ctx, func(*ChangeSet) error { return nil })
	assert.True(t, errors.Is(err, ErrChangeSetActive))

	require.NoError(t, cs.Commit(ctx))

	err = cs.Commit(ctx)
	assert.True(t, errors.Is(err, ErrChangeSetClosed))
	err = cs.Rollback(ctx)
	assert.True(t, errors.Is(err, ErrChangeSetClosed))
	err = cs.SaveContent(ctx, testID, bytes.NewBufferString("late"))
	assert.True(t, errors.Is(err, ErrChangeSetClosed))

	cs2, err := m.Begin(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, cs.ID(), cs2.ID())
	require.NoError(t, cs2.Rollback(ctx))
}

func TestFailedWriteRollsBack(t *testing.T) {
	ctx := context.Background()
	var tripped bool
	ffs := faultfs.New(afero.NewMemMapFs(), func(name string) bool {
		name = strings.TrimLeft(filepath.ToSlash(name), "/")
		if tripped || !strings.HasPrefix(name, "items/") || strings.HasSuffix(name, ".yaml") {
			return false
		}
		tripped = true // fail once: the rollback must succeed
		return true
	})
	core, logs := observer.New(zap.DebugLevel)
	m, _ := setupManager(t, ffs, Logger(zap.New(core)))

	before := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, m.Do(ctx, func(cs *ChangeSet) error {
		if err := cs.SaveMetadata(ctx, testMetadata(before)); err != nil {
			return err
		}
		return cs.SaveContent(ctx, testID, bytes.NewBufferString("content v1"))
	}))

	ffs.Arm()
	err := m.Do(ctx, func(cs *ChangeSet) error {
		if err := cs.SaveMetadata(ctx, testMetadata(time.Now().UTC())); err != nil {
			return err
		}
		return cs.SaveContent(ctx, testID, bytes.NewBufferString("content v2"))
	})
	ffs.Disarm()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocalStore))
	assert.True(t, ffs.Failures() > 0)

	meta, err := m.LoadMetadata(ctx, testID)
	require.NoError(t, err)
	assert.True(t, before.Equal(meta.LastUpdated), "metadata written before the failure is restored")
	assert.Equal(t, "content v1", readContent(t, m, testID))
	assert.Equal(t, 0, logs.FilterMessage("rollback failed").Len())
}

func TestRecoverInterruptedChangeSet(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	m, _ := setupManager(t, fs)

	before := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, m.Do(ctx, func(cs *ChangeSet) error {
		if err := cs.SaveMetadata(ctx, testMetadata(before)); err != nil {
			return err
		}
		return cs.SaveContent(ctx, testID, bytes.NewBufferString("content v1"))
	}))

	// simulate a process interrupted in the middle of a changeset
	cs, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, cs.SaveMetadata(ctx, testMetadata(time.Now().UTC())))
	require.NoError(t, cs.SaveContent(ctx, testID, bytes.NewBufferString("content v2")))
	require.NoError(t, cs.SaveWIP(ctx, testID.BaseNamespace, testID.Filename, bytes.NewBufferString("wip")))

	core, logs := observer.New(zap.WarnLevel)
	recovered, store := setupManager(t, fs, Logger(zap.New(core)))
	assert.Equal(t, 1, logs.FilterMessage("rolling back interrupted changeset").Len())

	meta, err := recovered.LoadMetadata(ctx, testID)
	require.NoError(t, err)
	assert.True(t, before.Equal(meta.LastUpdated))
	assert.Equal(t, "content v1", readContent(t, recovered, testID))
	has, err := recovered.HasWIP(ctx, testID.BaseNamespace, testID.Filename)
	require.NoError(t, err)
	assert.False(t, has)

	keys, err := store.KeysPrefix(ctx, model.GetPathPrefixToChangeSets())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLocation(t *testing.T) {
	m, _ := setupManager(t, nil, Root("/var/otarepo"), CacheSize(8))
	loc, err := m.WIPLocation(testID.BaseNamespace, testID.Filename)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/var/otarepo", "wip", "com", "example", "www", "ns", "a", "lib_1_0_0.otm"), loc)
	assert.Equal(t, "/var/otarepo", m.Root())
	assert.Equal(t, "localfs-atomic", m.String())
}
