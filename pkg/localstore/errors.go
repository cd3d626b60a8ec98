// Copyright © 2018 One Concern

package localstore

import "github.com/oneconcern/otarepo/pkg/errors"

var (
	// ErrChangeSetActive indicates that a changeset is already open on this file manager
	ErrChangeSetActive = errors.New("a changeset is already active")

	// ErrChangeSetClosed indicates an operation on a committed or rolled back changeset
	ErrChangeSetClosed = errors.New("changeset is closed")

	// ErrNotFound indicates that the requested local file does not exist
	ErrNotFound = errors.New("local file not found")

	// ErrCorrupted indicates a local metadata record which cannot be read
	ErrCorrupted = errors.New("corrupted local file")

	// ErrLocalStore indicates any other failure of the local file system
	ErrLocalStore = errors.New("local store error")
)
