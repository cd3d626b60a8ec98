// Copyright © 2018 One Concern

// Package localstore manages the local copy of repository items.
//
// All modifications of local files happen within a ChangeSet: either every file
// touched by the changeset is updated, or none is. A FileManager runs at most one
// changeset at a time.
package localstore

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/oneconcern/otarepo/pkg/errors"
	"github.com/oneconcern/otarepo/pkg/model"
	"github.com/oneconcern/otarepo/pkg/storage"
	storagestatus "github.com/oneconcern/otarepo/pkg/storage/status"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

const defaultCacheSize = 256

// FileManager knows how to read and update the local files of a repository:
// metadata records, content and work in progress
type FileManager struct {
	store     storage.Store
	l         *zap.Logger
	root      string
	cacheSize int
	cache     *lru.Cache // metadata key -> model.ItemMetadata

	mx     sync.Mutex
	active *ChangeSet
}

// New file manager on top of a store.
//
// Changesets left over by an interrupted process are rolled back.
func New(ctx context.Context, store storage.Store, opts ...Option) (*FileManager, error) {
	m := &FileManager{
		store:     store,
		l:         zap.NewNop(),
		cacheSize: defaultCacheSize,
	}
	for _, apply := range opts {
		apply(m)
	}

	var err error
	m.cache, err = lru.New(m.cacheSize)
	if err != nil {
		return nil, ErrLocalStore.Wrap(err)
	}

	if err = m.recover(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *FileManager) String() string {
	return m.store.String()
}

// Root folder of the local repository, if known
func (m *FileManager) Root() string {
	return m.root
}

// Location of a key on the local file system, if the root is known
func (m *FileManager) Location(key string) string {
	if m.root == "" {
		return key
	}
	return filepath.Join(m.root, filepath.FromSlash(key))
}

// LoadMetadata reads the local metadata record of an item.
//
// It returns ErrNotFound when the item has never been downloaded.
func (m *FileManager) LoadMetadata(ctx context.Context, id model.ItemIdentity) (*model.ItemMetadata, error) {
	key, err := model.GetPathToMetadata(id)
	if err != nil {
		return nil, err
	}
	return m.loadMetadataKey(ctx, key)
}

func (m *FileManager) loadMetadataKey(ctx context.Context, key string) (*model.ItemMetadata, error) {
	if cached, ok := m.cache.Get(key); ok {
		meta := cached.(model.ItemMetadata)
		return &meta, nil
	}

	buf, err := m.readKey(ctx, key)
	if err != nil {
		return nil, err
	}
	var meta model.ItemMetadata
	if err = yaml.Unmarshal(buf, &meta); err != nil {
		return nil, ErrCorrupted.Wrapf("metadata %q: %v", key, err)
	}
	m.cache.Add(key, meta)
	return &meta, nil
}

// HasMetadata tells if an item has a local metadata record
func (m *FileManager) HasMetadata(ctx context.Context, id model.ItemIdentity) (bool, error) {
	key, err := model.GetPathToMetadata(id)
	if err != nil {
		return false, err
	}
	return m.has(ctx, key)
}

// HasContent tells if the content of an item is available locally
func (m *FileManager) HasContent(ctx context.Context, id model.ItemIdentity) (bool, error) {
	key, err := model.GetPathToContent(id)
	if err != nil {
		return false, err
	}
	return m.has(ctx, key)
}

// Content of an item, from the local copy
func (m *FileManager) Content(ctx context.Context, id model.ItemIdentity) (io.ReadCloser, error) {
	key, err := model.GetPathToContent(id)
	if err != nil {
		return nil, err
	}
	return m.get(ctx, key)
}

// HasWIP tells if a work in progress exists locally for a file in a base namespace
func (m *FileManager) HasWIP(ctx context.Context, baseNamespace, filename string) (bool, error) {
	key, err := model.GetPathToWIP(baseNamespace, filename)
	if err != nil {
		return false, err
	}
	return m.has(ctx, key)
}

// WIPContent reads the local work in progress for a file in a base namespace
func (m *FileManager) WIPContent(ctx context.Context, baseNamespace, filename string) (io.ReadCloser, error) {
	key, err := model.GetPathToWIP(baseNamespace, filename)
	if err != nil {
		return nil, err
	}
	return m.get(ctx, key)
}

// WIPLocation yields where the work in progress on a file lives
func (m *FileManager) WIPLocation(baseNamespace, filename string) (string, error) {
	key, err := model.GetPathToWIP(baseNamespace, filename)
	if err != nil {
		return "", err
	}
	return m.Location(key), nil
}

// ListMetadata returns all the metadata records stored locally
func (m *FileManager) ListMetadata(ctx context.Context) ([]model.ItemMetadata, error) {
	keys, err := m.store.KeysPrefix(ctx, model.GetPathPrefixToItems())
	if err != nil {
		return nil, ErrLocalStore.Wrap(err)
	}
	res := make([]model.ItemMetadata, 0, len(keys))
	for _, key := range keys {
		if !model.IsMetadataPath(key) {
			continue
		}
		meta, err := m.loadMetadataKey(ctx, key)
		if err != nil {
			m.l.Warn("skipping unreadable metadata", zap.String("key", key), zap.Error(err))
			continue
		}
		res = append(res, *meta)
	}
	return res, nil
}

func (m *FileManager) has(ctx context.Context, key string) (bool, error) {
	has, err := m.store.Has(ctx, key)
	if err != nil {
		return false, ErrLocalStore.Wrap(err)
	}
	return has, nil
}

func (m *FileManager) get(ctx context.Context, key string) (io.ReadCloser, error) {
	rdr, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storagestatus.ErrNotExists) {
			return nil, ErrNotFound.Wrapf("%q", key)
		}
		return nil, ErrLocalStore.Wrap(err)
	}
	return rdr, nil
}

func (m *FileManager) readKey(ctx context.Context, key string) ([]byte, error) {
	rdr, err := m.get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rdr.Close()
	var buf bytes.Buffer
	if _, err = io.Copy(&buf, rdr); err != nil {
		return nil, ErrLocalStore.Wrap(err)
	}
	return buf.Bytes(), nil
}

func (m *FileManager) invalidate(key string) {
	m.cache.Remove(key)
}

// Begin a new changeset. Only one changeset may be active at any time.
func (m *FileManager) Begin(ctx context.Context) (*ChangeSet, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.active != nil {
		return nil, ErrChangeSetActive.Wrapf("changeset %s", m.active.id)
	}
	cs := newChangeSet(m)
	m.active = cs
	m.l.Debug("changeset started", zap.String("changeset", cs.id))
	return cs, nil
}

func (m *FileManager) release(cs *ChangeSet) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.active == cs {
		m.active = nil
	}
}

// Do runs fn within a changeset.
//
// The changeset is committed when fn returns no error. It is rolled back when fn
// fails or panics. Rollback failures are logged and never hide the original error.
func (m *FileManager) Do(ctx context.Context, fn func(*ChangeSet) error) (err error) {
	cs, err := m.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cs.rollbackAndLog(ctx)
			panic(r)
		}
	}()

	if err = fn(cs); err != nil {
		cs.rollbackAndLog(ctx)
		return err
	}
	return cs.Commit(ctx)
}
