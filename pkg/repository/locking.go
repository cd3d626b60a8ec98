// Copyright © 2018 One Concern

package repository

import (
	"context"

	"github.com/oneconcern/otarepo/pkg/localstore"
	"github.com/oneconcern/otarepo/pkg/model"
	"github.com/oneconcern/otarepo/pkg/repository/status"
	"go.uber.org/zap"
)

// Lock an item for the current user, and start a work in progress from its local copy.
//
// The local copy must be at least as recent as the remote one. On success, the
// item is in the MANAGED_WIP state.
func (c *Client) Lock(ctx context.Context, item *model.RepositoryItem) error {
	if err := c.checkMember(item); err != nil {
		return err
	}
	id := item.Identity()

	var (
		locked   model.ItemMetadata
		acquired bool
	)
	err := c.changeset(ctx, func(cs *localstore.ChangeSet) error {
		current, err := c.remote.Metadata(ctx, id)
		if err != nil {
			return err
		}
		local, err := c.files.LoadMetadata(ctx, id)
		switch {
		case err == nil:
			if current.LastUpdated.After(local.LastUpdated) {
				return status.ErrOutOfSync.Wrapf("%s was updated on %v, local copy dates from %v", id, current.LastUpdated, local.LastUpdated)
			}
		case isNotFound(err):
			if !current.LastUpdated.IsZero() {
				return status.ErrOutOfSync.Wrapf("%s has no local copy", id)
			}
		default:
			return err
		}

		if locked, err = c.remote.Lock(ctx, id); err != nil {
			return err
		}
		acquired = true
		if locked.OwningRepository == "" {
			locked.OwningRepository = c.id
		}
		if err = cs.SaveMetadata(ctx, locked); err != nil {
			return err
		}
		return cs.CopyContentToWIP(ctx, id)
	})
	if err != nil {
		if acquired {
			c.releaseAfterFailure(ctx, id, err)
		}
		return err
	}

	item.Apply(locked)
	if item.LockedByUser == "" {
		item.LockedByUser = c.User()
	}
	item.State = model.StateManagedWIP
	c.l.Info("locked item", zap.String("item", id.Key()), zap.String("user", item.LockedByUser))
	return nil
}

// releaseAfterFailure gives back a lock acquired for a work in progress which could not be started locally
func (c *Client) releaseAfterFailure(ctx context.Context, id model.ItemIdentity, cause error) {
	if _, err := c.remote.Unlock(context.WithoutCancel(ctx), id, nil, ""); err != nil {
		c.l.Error("could not release lock after local failure",
			zap.String("item", id.Key()),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
}

// Unlock an item. When commitWIP is set, the local work in progress is committed
// first, with some remarks.
//
// The work in progress is discarded and the local copy refreshed. On success,
// the item is in the MANAGED_UNLOCKED state.
func (c *Client) Unlock(ctx context.Context, item *model.RepositoryItem, commitWIP bool, remarks string) error {
	if err := c.checkMember(item); err != nil {
		return err
	}
	id := item.Identity()
	if commitWIP {
		if err := c.requireWIP(ctx, id); err != nil {
			return err
		}
	}

	err := c.changeset(ctx, func(cs *localstore.ChangeSet) error {
		unlocked, err := c.remoteUnlock(ctx, id, commitWIP, remarks)
		if err != nil {
			return err
		}
		if unlocked.OwningRepository == "" {
			unlocked.OwningRepository = c.id
		}
		if err = cs.SaveMetadata(ctx, unlocked); err != nil {
			return err
		}
		if err = cs.DeleteWIP(ctx, id.BaseNamespace, id.Filename); err != nil {
			return err
		}
		_, err = c.download(ctx, id, true, cs)
		return err
	})
	if err != nil {
		return err
	}

	if err = c.reload(ctx, item); err != nil {
		return err
	}
	item.LockedByUser = ""
	item.State = model.StateManagedUnlocked
	c.l.Info("unlocked item", zap.String("item", id.Key()), zap.Bool("committed", commitWIP))
	return nil
}

func (c *Client) remoteUnlock(ctx context.Context, id model.ItemIdentity, commitWIP bool, remarks string) (model.ItemMetadata, error) {
	if !commitWIP {
		return c.remote.Unlock(ctx, id, nil, remarks)
	}
	wip, err := c.files.WIPContent(ctx, id.BaseNamespace, id.Filename)
	if err != nil {
		return model.ItemMetadata{}, err
	}
	defer wip.Close()
	return c.remote.Unlock(ctx, id, wip, remarks)
}

// Commit the local work in progress on an item, which remains locked
func (c *Client) Commit(ctx context.Context, item *model.RepositoryItem, remarks string) error {
	if err := c.checkMember(item); err != nil {
		return err
	}
	id := item.Identity()
	if err := c.requireWIP(ctx, id); err != nil {
		return err
	}

	wip, err := c.files.WIPContent(ctx, id.BaseNamespace, id.Filename)
	if err != nil {
		return err
	}
	_, err = c.remote.Commit(ctx, id, wip, remarks)
	_ = wip.Close()
	if err != nil {
		return err
	}

	if _, err = c.download(ctx, id, true, nil); err != nil {
		return err
	}
	if err = c.reload(ctx, item); err != nil {
		return err
	}
	item.State = model.StateManagedWIP
	c.l.Info("committed item", zap.String("item", id.Key()))
	return nil
}

func (c *Client) requireWIP(ctx context.Context, id model.ItemIdentity) error {
	hasWIP, err := c.files.HasWIP(ctx, id.BaseNamespace, id.Filename)
	if err != nil {
		return err
	}
	if !hasWIP {
		location, _ := c.files.WIPLocation(id.BaseNamespace, id.Filename)
		return status.ErrWIPMissing.Wrapf("%s", location)
	}
	return nil
}

// Promote an item to its next status
func (c *Client) Promote(ctx context.Context, item *model.RepositoryItem) error {
	return c.transition(ctx, item, "promoted", c.remote.Promote)
}

// Demote an item to its previous status
func (c *Client) Demote(ctx context.Context, item *model.RepositoryItem) error {
	return c.transition(ctx, item, "demoted", c.remote.Demote)
}

// UpdateStatus sets the status of an item
func (c *Client) UpdateStatus(ctx context.Context, item *model.RepositoryItem, newStatus model.Status) error {
	return c.transition(ctx, item, "status updated", func(ctx context.Context, id model.ItemIdentity) (model.ItemMetadata, error) {
		return c.remote.UpdateStatus(ctx, id, newStatus)
	})
}

// RecalculateCRC asks the repository to recompute the checksum of an item
func (c *Client) RecalculateCRC(ctx context.Context, item *model.RepositoryItem) error {
	return c.transition(ctx, item, "checksum recalculated", c.remote.RecalculateCRC)
}

// transition applies a remote change on an item, then refreshes its local copy and the item itself
func (c *Client) transition(ctx context.Context, item *model.RepositoryItem, what string,
	call func(context.Context, model.ItemIdentity) (model.ItemMetadata, error)) error {
	if err := c.checkMember(item); err != nil {
		return err
	}
	id := item.Identity()
	if _, err := call(ctx, id); err != nil {
		return err
	}
	if _, err := c.download(ctx, id, true, nil); err != nil {
		return err
	}
	if err := c.reload(ctx, item); err != nil {
		return err
	}
	c.l.Info(what, zap.String("item", id.Key()), zap.Stringer("status", item.Status))
	return nil
}

// Delete an item from the repository, together with its local copy
func (c *Client) Delete(ctx context.Context, item *model.RepositoryItem) error {
	if err := c.checkMember(item); err != nil {
		return err
	}
	id := item.Identity()
	if err := c.remote.Delete(ctx, id); err != nil {
		return err
	}
	err := c.changeset(ctx, func(cs *localstore.ChangeSet) error {
		if err := cs.DeleteMetadata(ctx, id); err != nil {
			return err
		}
		if err := cs.DeleteContent(ctx, id); err != nil {
			return err
		}
		return cs.DeleteWIP(ctx, id.BaseNamespace, id.Filename)
	})
	if err != nil {
		return err
	}
	c.l.Info("deleted item", zap.String("item", id.Key()))
	return nil
}
