// Package model describes the base objects manipulated by otarepo.
//
// The package exposes a model for repository item metadata, and the layout of
// the local repository folder.
//
// The object model for otarepo is composed of:
//
//  Items:
//    A versioned schema library (or release, or assembly) published to a remote repository.
//    An item is identified by its base namespace, its file name and its version.
//
//  Metadata:
//    The record describing an item: status, lock owner, last update time, owning repository.
//    The same record is exchanged with the remote service and kept next to the local content.
//
//  History:
//    The list of commits applied to an item, used to retrieve content as of a date.
//
//  Namespaces:
//    URIs scoping items. Root namespaces are owned by a repository, base namespaces
//    are namespaces stripped of their version suffix.
package model
