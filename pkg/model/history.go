package model

import (
	"sort"
	"time"
)

// CommitEntry is one commit in the history of an item
type CommitEntry struct {
	CommitNumber int       `json:"commitNumber" yaml:"commitNumber"`
	EffectiveOn  time.Time `json:"effectiveOn" yaml:"effectiveOn"`
	User         string    `json:"user,omitempty" yaml:"user,omitempty"`
	Remarks      string    `json:"remarks,omitempty" yaml:"remarks,omitempty"`
}

// ItemHistory is the list of commits applied to an item
type ItemHistory struct {
	Item    ItemMetadata  `json:"item" yaml:"item"`
	Commits []CommitEntry `json:"commits" yaml:"commits"`
}

// SortedCommits returns the commits, most recent first
func (h ItemHistory) SortedCommits() []CommitEntry {
	commits := make([]CommitEntry, len(h.Commits))
	copy(commits, h.Commits)
	sort.SliceStable(commits, func(i, j int) bool {
		return commits[i].CommitNumber > commits[j].CommitNumber
	})
	return commits
}

// CommitAsOf selects the latest commit effective at some date.
//
// Dates are compared with a precision of one second. It returns false when no
// commit was effective at that date.
func (h ItemHistory) CommitAsOf(effective time.Time) (CommitEntry, bool) {
	limit := effective.Truncate(time.Second)
	for _, commit := range h.SortedCommits() {
		if !commit.EffectiveOn.Truncate(time.Second).After(limit) {
			return commit, true
		}
	}
	return CommitEntry{}, false
}
