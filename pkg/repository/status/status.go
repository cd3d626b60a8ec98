// Copyright © 2018 One Concern

// Package status declares error constants returned by the repository client
package status

import "github.com/oneconcern/otarepo/pkg/errors"

var (
	// ErrUnavailable indicates that the remote repository cannot be reached and no local copy can stand in
	ErrUnavailable = errors.New("repository unavailable and no local copy")

	// ErrOutOfSync indicates a local copy older than the remote one, when a lock is requested
	ErrOutOfSync = errors.New("local copy is out of sync with the repository")

	// ErrForeignRepository indicates an item or URI owned by another repository
	ErrForeignRepository = errors.New("item belongs to another repository")

	// ErrNotMember indicates an item which was not obtained from this repository client
	ErrNotMember = errors.New("item is not managed by this repository")

	// ErrWIPMissing indicates a commit requested without a local work in progress
	ErrWIPMissing = errors.New("work in progress file not found")

	// ErrInvalidURI indicates a malformed item URI
	ErrInvalidURI = errors.New("invalid item URI")

	// ErrVersionScheme indicates an unknown version scheme, or a namespace or
	// file name which does not comply with it
	ErrVersionScheme = errors.New("version scheme error")

	// ErrNoCommit indicates that an item has no commit at the requested date
	ErrNoCommit = errors.New("no commit effective at this date")
)
