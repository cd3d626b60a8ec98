package model

import (
	"strings"
	"time"
)

// Status is the lifecycle status of an item, as managed by the remote repository
type Status string

const (
	// StatusDraft is the status of a newly published item
	StatusDraft Status = "DRAFT"

	// StatusUnderReview is the status of an item submitted for review
	StatusUnderReview Status = "UNDER_REVIEW"

	// StatusFinal is the status of a released item
	StatusFinal Status = "FINAL"

	// StatusObsolete is the status of a retired item. This is a terminal status.
	StatusObsolete Status = "OBSOLETE"
)

var statusOrder = []Status{StatusDraft, StatusUnderReview, StatusFinal, StatusObsolete}

// IsValid checks the value of a status
func (s Status) IsValid() bool {
	return s.rank() >= 0
}

func (s Status) String() string {
	return string(s)
}

func (s Status) rank() int {
	for i, st := range statusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Next status reached on promotion. It returns false when the status may not be promoted.
func (s Status) Next() (Status, bool) {
	r := s.rank()
	if r < 0 || r == len(statusOrder)-1 {
		return s, false
	}
	return statusOrder[r+1], true
}

// Previous status reached on demotion. It returns false when the status may not be demoted.
func (s Status) Previous() (Status, bool) {
	r := s.rank()
	if r <= 0 {
		return s, false
	}
	return statusOrder[r-1], true
}

// ParseStatus reads a status, case-insensitively. Dashes are accepted in place of underscores.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(value)), "-", "_"))
	if !s.IsValid() {
		return "", ErrInvalidStatus.Wrapf("%q", value)
	}
	return s, nil
}

// State of an item as seen from this client
type State string

const (
	// StateUnmanaged is the state of an item not known from any repository
	StateUnmanaged State = "UNMANAGED"

	// StateManagedUnlocked is the state of an item nobody holds a lock on
	StateManagedUnlocked State = "MANAGED_UNLOCKED"

	// StateManagedLocked is the state of an item locked by another user, or by
	// the current user from another workstation
	StateManagedLocked State = "MANAGED_LOCKED"

	// StateManagedWIP is the state of an item locked by the current user, with a local work in progress
	StateManagedWIP State = "MANAGED_WIP"
)

// IsValid checks the value of a state
func (s State) IsValid() bool {
	switch s {
	case StateUnmanaged, StateManagedUnlocked, StateManagedLocked, StateManagedWIP:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	return string(s)
}

// ItemType tells the kind of artifact stored in a repository
type ItemType string

const (
	// ItemTypeLibrary is a schema library
	ItemTypeLibrary ItemType = "LIBRARY"

	// ItemTypeRelease is a release of libraries
	ItemTypeRelease ItemType = "RELEASE"

	// ItemTypeAssembly is an assembly of releases
	ItemTypeAssembly ItemType = "ASSEMBLY"
)

// IsValid checks the value of an item type
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeLibrary, ItemTypeRelease, ItemTypeAssembly:
		return true
	default:
		return false
	}
}

func (t ItemType) String() string {
	return string(t)
}

// Permission granted to the current user on a namespace
type Permission string

const (
	// PermissionNone grants no access
	PermissionNone Permission = "NONE"

	// PermissionReadFinal grants read access to final items only
	PermissionReadFinal Permission = "READ_FINAL"

	// PermissionReadDraft grants read access to all items
	PermissionReadDraft Permission = "READ_DRAFT"

	// PermissionWrite grants read and write access
	PermissionWrite Permission = "WRITE"
)

var permissionOrder = []Permission{PermissionNone, PermissionReadFinal, PermissionReadDraft, PermissionWrite}

// Implies tells if this permission grants at least the other one
func (p Permission) Implies(other Permission) bool {
	var mine, theirs = -1, -1
	for i, pp := range permissionOrder {
		if pp == p {
			mine = i
		}
		if pp == other {
			theirs = i
		}
	}
	return mine >= 0 && theirs >= 0 && mine >= theirs
}

func (p Permission) String() string {
	return string(p)
}

// ItemIdentity uniquely identifies an item across repositories
type ItemIdentity struct {
	BaseNamespace string `json:"baseNamespace" yaml:"baseNamespace"`
	Filename      string `json:"filename" yaml:"filename"`
	Version       string `json:"version" yaml:"version"`
}

// Normalized returns the identity with a normalized base namespace
func (id ItemIdentity) Normalized() ItemIdentity {
	id.BaseNamespace = NormalizeNamespace(id.BaseNamespace)
	return id
}

// Key used to remember which items have been downloaded during a session
func (id ItemIdentity) Key() string {
	return NormalizeNamespace(id.BaseNamespace) + "~" + id.Filename + "~" + id.Version
}

func (id ItemIdentity) String() string {
	return id.Key()
}

// ItemMetadata is the metadata record describing an item.
//
// It is exchanged with the remote service and persisted next to the local copy of the item.
type ItemMetadata struct {
	OwningRepository string    `json:"owningRepository,omitempty" yaml:"owningRepository,omitempty"`
	Namespace        string    `json:"namespace" yaml:"namespace"`
	BaseNamespace    string    `json:"baseNamespace" yaml:"baseNamespace"`
	Filename         string    `json:"filename" yaml:"filename"`
	LibraryName      string    `json:"libraryName,omitempty" yaml:"libraryName,omitempty"`
	Version          string    `json:"version" yaml:"version"`
	VersionScheme    string    `json:"versionScheme,omitempty" yaml:"versionScheme,omitempty"`
	Status           Status    `json:"status,omitempty" yaml:"status,omitempty"`
	State            State     `json:"state,omitempty" yaml:"state,omitempty"` // the server's view: MANAGED_UNLOCKED or MANAGED_LOCKED
	LockedBy         string    `json:"lockedBy,omitempty" yaml:"lockedBy,omitempty"`
	LastUpdated      time.Time `json:"lastUpdated,omitempty" yaml:"lastUpdated,omitempty"`
	CRC              int64     `json:"crc,omitempty" yaml:"crc,omitempty"`
	ItemType         ItemType  `json:"itemType,omitempty" yaml:"itemType,omitempty"`
	_                struct{}
}

// Identity of the item described by this record
func (m ItemMetadata) Identity() ItemIdentity {
	return ItemIdentity{
		BaseNamespace: m.BaseNamespace,
		Filename:      m.Filename,
		Version:       m.Version,
	}.Normalized()
}

// RepositoryItem is an item as known by a client of a repository.
//
// The State is always computed locally: the server's lock state, the current
// user and the presence of a local work in progress determine it.
type RepositoryItem struct {
	Repository    string    `json:"repository" yaml:"repository"`
	BaseNamespace string    `json:"baseNamespace" yaml:"baseNamespace"`
	Namespace     string    `json:"namespace" yaml:"namespace"`
	Filename      string    `json:"filename" yaml:"filename"`
	LibraryName   string    `json:"libraryName,omitempty" yaml:"libraryName,omitempty"`
	Version       string    `json:"version" yaml:"version"`
	VersionScheme string    `json:"versionScheme,omitempty" yaml:"versionScheme,omitempty"`
	Status        Status    `json:"status,omitempty" yaml:"status,omitempty"`
	State         State     `json:"state" yaml:"state"`
	LockedByUser  string    `json:"lockedByUser,omitempty" yaml:"lockedByUser,omitempty"`
	LastUpdated   time.Time `json:"lastUpdated,omitempty" yaml:"lastUpdated,omitempty"`
	CRC           int64     `json:"crc,omitempty" yaml:"crc,omitempty"`
	ItemType      ItemType  `json:"itemType,omitempty" yaml:"itemType,omitempty"`
}

// NewRepositoryItem builds an item from a metadata record, on behalf of a repository.
//
// The state is copied from the record: callers recompute it for the current user.
func NewRepositoryItem(repository string, m ItemMetadata) *RepositoryItem {
	item := &RepositoryItem{Repository: repository}
	item.Apply(m)
	return item
}

// Apply refreshes the item in place from a metadata record
func (i *RepositoryItem) Apply(m ItemMetadata) {
	i.BaseNamespace = NormalizeNamespace(m.BaseNamespace)
	i.Namespace = NormalizeNamespace(m.Namespace)
	i.Filename = m.Filename
	i.LibraryName = m.LibraryName
	i.Version = m.Version
	i.VersionScheme = m.VersionScheme
	i.Status = m.Status
	i.State = m.State
	i.LockedByUser = m.LockedBy
	i.LastUpdated = m.LastUpdated
	i.CRC = m.CRC
	i.ItemType = m.ItemType
	if i.ItemType == "" {
		i.ItemType = ItemTypeLibrary
	}
}

// Identity of this item
func (i *RepositoryItem) Identity() ItemIdentity {
	return ItemIdentity{
		BaseNamespace: i.BaseNamespace,
		Filename:      i.Filename,
		Version:       i.Version,
	}.Normalized()
}

// Metadata renders the record sent to the remote service to identify this item
func (i *RepositoryItem) Metadata() ItemMetadata {
	return ItemMetadata{
		OwningRepository: i.Repository,
		Namespace:        i.Namespace,
		BaseNamespace:    NormalizeNamespace(i.BaseNamespace),
		Filename:         i.Filename,
		LibraryName:      i.LibraryName,
		Version:          i.Version,
		VersionScheme:    i.VersionScheme,
		Status:           i.Status,
		LockedBy:         i.LockedByUser,
		LastUpdated:      i.LastUpdated,
		CRC:              i.CRC,
		ItemType:         i.ItemType,
	}
}
