// Copyright © 2018 One Concern

package localstore

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/oneconcern/otarepo/pkg/errors"
	"github.com/oneconcern/otarepo/pkg/model"
	"github.com/oneconcern/otarepo/pkg/storage"
	"github.com/segmentio/ksuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

const (
	journalFile  = "journal.yaml"
	backupFolder = "backup"
)

type journalEntry struct {
	Key     string `yaml:"key"`
	Existed bool   `yaml:"existed"`
}

type journal struct {
	ChangeSetID string         `yaml:"changeSetID"`
	StartTime   time.Time      `yaml:"startTime"`
	Entries     []journalEntry `yaml:"entries"`
}

// ChangeSet groups local file updates, which are either all committed or all rolled back.
//
// Before a file is first modified, its previous version is saved and recorded in
// a journal, so a rollback (or the recovery of an interrupted process) restores it.
type ChangeSet struct {
	id      string
	m       *FileManager
	journal journal
	touched map[string]struct{}

	mx     sync.Mutex
	closed bool
}

func newChangeSet(m *FileManager) *ChangeSet {
	id := ksuid.New().String()
	return &ChangeSet{
		id: id,
		m:  m,
		journal: journal{
			ChangeSetID: id,
			StartTime:   time.Now().UTC(),
		},
		touched: make(map[string]struct{}, 10),
	}
}

// ID of the changeset
func (cs *ChangeSet) ID() string {
	return cs.id
}

func (cs *ChangeSet) journalKey() string {
	return path.Join(model.GetPathPrefixToChangeSet(cs.id), journalFile)
}

func backupKey(changeSetID, key string) string {
	return path.Join(model.GetPathPrefixToChangeSet(changeSetID), backupFolder, key)
}

// touch records the previous version of a key, before its first modification
func (cs *ChangeSet) touch(ctx context.Context, key string) error {
	if _, ok := cs.touched[key]; ok {
		return nil
	}
	existed, err := cs.m.has(ctx, key)
	if err != nil {
		return err
	}
	if existed {
		if _, err = storage.ReadTee(ctx, cs.m.store, key, cs.m.store, backupKey(cs.id, key)); err != nil {
			return ErrLocalStore.Wrapf("backup of %q: %v", key, err)
		}
	}
	cs.journal.Entries = append(cs.journal.Entries, journalEntry{Key: key, Existed: existed})
	if err = cs.writeJournal(ctx); err != nil {
		cs.journal.Entries = cs.journal.Entries[:len(cs.journal.Entries)-1]
		return err
	}
	cs.touched[key] = struct{}{}
	return nil
}

func (cs *ChangeSet) writeJournal(ctx context.Context) error {
	buf, err := yaml.Marshal(cs.journal)
	if err != nil {
		return ErrLocalStore.Wrap(err)
	}
	if err = cs.m.store.Put(ctx, cs.journalKey(), bytes.NewReader(buf)); err != nil {
		return ErrLocalStore.Wrapf("journal: %v", err)
	}
	return nil
}

func (cs *ChangeSet) put(ctx context.Context, key string, source io.Reader) error {
	cs.mx.Lock()
	defer cs.mx.Unlock()
	if cs.closed {
		return ErrChangeSetClosed.Wrapf("changeset %s", cs.id)
	}
	if err := cs.touch(ctx, key); err != nil {
		return err
	}
	cs.m.invalidate(key)
	if err := cs.m.store.Put(ctx, key, source); err != nil {
		return ErrLocalStore.Wrapf("writing %q: %v", key, err)
	}
	return nil
}

func (cs *ChangeSet) remove(ctx context.Context, key string) error {
	cs.mx.Lock()
	defer cs.mx.Unlock()
	if cs.closed {
		return ErrChangeSetClosed.Wrapf("changeset %s", cs.id)
	}
	exists, err := cs.m.has(ctx, key)
	if err != nil || !exists {
		return err
	}
	if err = cs.touch(ctx, key); err != nil {
		return err
	}
	cs.m.invalidate(key)
	if err = cs.m.store.Delete(ctx, key); err != nil {
		return ErrLocalStore.Wrapf("deleting %q: %v", key, err)
	}
	return nil
}

// SaveMetadata writes the local metadata record of an item
func (cs *ChangeSet) SaveMetadata(ctx context.Context, meta model.ItemMetadata) error {
	key, err := model.GetPathToMetadata(meta.Identity())
	if err != nil {
		return err
	}
	buf, err := yaml.Marshal(meta)
	if err != nil {
		return ErrLocalStore.Wrap(err)
	}
	return cs.put(ctx, key, bytes.NewReader(buf))
}

// SaveContent writes the local content of an item
func (cs *ChangeSet) SaveContent(ctx context.Context, id model.ItemIdentity, content io.Reader) error {
	key, err := model.GetPathToContent(id)
	if err != nil {
		return err
	}
	return cs.put(ctx, key, content)
}

// SaveWIP writes the work in progress on a file
func (cs *ChangeSet) SaveWIP(ctx context.Context, baseNamespace, filename string, content io.Reader) error {
	key, err := model.GetPathToWIP(baseNamespace, filename)
	if err != nil {
		return err
	}
	return cs.put(ctx, key, content)
}

// CopyContentToWIP starts a work in progress from the local content of an item
func (cs *ChangeSet) CopyContentToWIP(ctx context.Context, id model.ItemIdentity) error {
	rdr, err := cs.m.Content(ctx, id)
	if err != nil {
		return err
	}
	defer rdr.Close()
	return cs.SaveWIP(ctx, id.BaseNamespace, id.Filename, rdr)
}

// SaveNamespaceIDs writes the missing namespace id files for a namespace and its ancestors
func (cs *ChangeSet) SaveNamespaceIDs(ctx context.Context, namespace string) error {
	files, err := model.NamespaceIDFiles(namespace)
	if err != nil {
		return err
	}
	for key, nsid := range files {
		has, err := cs.m.has(ctx, key)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		buf, err := yaml.Marshal(nsid)
		if err != nil {
			return ErrLocalStore.Wrap(err)
		}
		if err = cs.put(ctx, key, bytes.NewReader(buf)); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMetadata removes the local metadata record of an item
func (cs *ChangeSet) DeleteMetadata(ctx context.Context, id model.ItemIdentity) error {
	key, err := model.GetPathToMetadata(id)
	if err != nil {
		return err
	}
	return cs.remove(ctx, key)
}

// DeleteContent removes the local content of an item
func (cs *ChangeSet) DeleteContent(ctx context.Context, id model.ItemIdentity) error {
	key, err := model.GetPathToContent(id)
	if err != nil {
		return err
	}
	return cs.remove(ctx, key)
}

// DeleteWIP removes the work in progress on a file
func (cs *ChangeSet) DeleteWIP(ctx context.Context, baseNamespace, filename string) error {
	key, err := model.GetPathToWIP(baseNamespace, filename)
	if err != nil {
		return err
	}
	return cs.remove(ctx, key)
}

// Commit the changeset: all updates are kept
func (cs *ChangeSet) Commit(ctx context.Context) error {
	cs.mx.Lock()
	if cs.closed {
		cs.mx.Unlock()
		return ErrChangeSetClosed.Wrapf("changeset %s", cs.id)
	}

	// without a journal, the changeset may no longer be rolled back
	if err := cs.m.store.Delete(ctx, cs.journalKey()); err != nil {
		cs.mx.Unlock()
		cs.rollbackAndLog(ctx)
		return ErrLocalStore.Wrapf("committing changeset %s: %v", cs.id, err)
	}
	cs.closed = true
	cs.mx.Unlock()

	if err := purgeChangeSet(context.WithoutCancel(ctx), cs.m.store, cs.id); err != nil {
		cs.m.l.Warn("could not remove changeset backups", zap.String("changeset", cs.id), zap.Error(err))
	}
	cs.m.release(cs)
	cs.m.l.Debug("changeset committed", zap.String("changeset", cs.id), zap.Int("files", len(cs.journal.Entries)))
	return nil
}

// Rollback the changeset: every file touched is restored to its previous version
func (cs *ChangeSet) Rollback(ctx context.Context) error {
	cs.mx.Lock()
	if cs.closed {
		cs.mx.Unlock()
		return ErrChangeSetClosed.Wrapf("changeset %s", cs.id)
	}
	cs.closed = true
	cs.mx.Unlock()
	defer cs.m.release(cs)

	ctx = context.WithoutCancel(ctx)
	err := restore(ctx, cs.m, cs.journal)
	if len(cs.journal.Entries) > 0 {
		err = multierr.Append(err, cs.m.store.Delete(ctx, cs.journalKey()))
	}
	err = multierr.Append(err, purgeChangeSet(ctx, cs.m.store, cs.id))
	if err != nil {
		return ErrLocalStore.Wrapf("rollback of changeset %s: %v", cs.id, err)
	}
	cs.m.l.Debug("changeset rolled back", zap.String("changeset", cs.id), zap.Int("files", len(cs.journal.Entries)))
	return nil
}

func (cs *ChangeSet) rollbackAndLog(ctx context.Context) {
	if err := cs.Rollback(ctx); err != nil {
		cs.m.l.Error("rollback failed", zap.String("changeset", cs.id), zap.Error(err))
	}
}

// restore touched files, last touched first
func restore(ctx context.Context, m *FileManager, j journal) error {
	var err error
	for i := len(j.Entries) - 1; i >= 0; i-- {
		entry := j.Entries[i]
		m.invalidate(entry.Key)
		if entry.Existed {
			_, ert := storage.ReadTee(ctx, m.store, backupKey(j.ChangeSetID, entry.Key), m.store, entry.Key)
			err = multierr.Append(err, ert)
			continue
		}
		err = multierr.Append(err, m.store.Delete(ctx, entry.Key))
	}
	return err
}

func purgeChangeSet(ctx context.Context, store storage.Store, changeSetID string) error {
	keys, err := store.KeysPrefix(ctx, model.GetPathPrefixToChangeSet(changeSetID))
	if err != nil {
		return err
	}
	for _, key := range keys {
		err = multierr.Append(err, store.Delete(ctx, key))
	}
	return err
}

// recover rolls back changesets left over by an interrupted process
func (m *FileManager) recover(ctx context.Context) error {
	keys, err := m.store.KeysPrefix(ctx, model.GetPathPrefixToChangeSets())
	if err != nil {
		return ErrLocalStore.Wrap(err)
	}

	ids := make(map[string]struct{})
	for _, key := range keys {
		rest := strings.TrimPrefix(key, model.GetPathPrefixToChangeSets())
		if id := strings.SplitN(rest, "/", 2)[0]; id != "" {
			ids[id] = struct{}{}
		}
	}

	for id := range ids {
		jkey := path.Join(model.GetPathPrefixToChangeSet(id), journalFile)
		buf, erj := m.readKey(ctx, jkey)
		if erj == nil {
			var j journal
			if erj = yaml.Unmarshal(buf, &j); erj != nil {
				return ErrCorrupted.Wrapf("journal of changeset %s: %v", id, erj)
			}
			j.ChangeSetID = id
			m.l.Warn("rolling back interrupted changeset", zap.String("changeset", id), zap.Int("files", len(j.Entries)))
			if err = restore(ctx, m, j); err != nil {
				return ErrLocalStore.Wrapf("recovering changeset %s: %v", id, err)
			}
		} else if !errors.Is(erj, ErrNotFound) {
			return erj
		}
		if err = purgeChangeSet(ctx, m.store, id); err != nil {
			return ErrLocalStore.Wrapf("recovering changeset %s: %v", id, err)
		}
	}
	return nil
}
