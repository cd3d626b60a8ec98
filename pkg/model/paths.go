package model

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

const (
	itemsPrefix      = "items/"
	wipPrefix        = "wip/"
	changeSetsPrefix = ".changesets/"

	// descriptor files
	metadataSuffix  = ".meta.yaml"
	namespaceIDFile = "nsid.yaml"
)

// NamespaceID is the descriptor written in every local namespace folder,
// so the folder can be mapped back to its namespace URI
type NamespaceID struct {
	Namespace string `json:"namespace" yaml:"namespace"`
}

// NormalizeNamespace trims surrounding white space and trailing slashes
func NormalizeNamespace(ns string) string {
	return strings.TrimRight(strings.TrimSpace(ns), "/")
}

// NamespacePath maps a namespace URI to a relative folder.
//
// Host labels are reversed, then path segments are appended:
//
//	http://www.example.com/ns/a -> com/example/www/ns/a
func NamespacePath(ns string) (string, error) {
	segments, err := namespaceSegments(ns)
	if err != nil {
		return "", err
	}
	return strings.Join(segments, "/"), nil
}

func namespaceSegments(ns string) ([]string, error) {
	normalized := NormalizeNamespace(ns)
	u, err := url.Parse(normalized)
	if err != nil {
		return nil, ErrInvalidNamespace.Wrap(err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return nil, ErrInvalidNamespace.Wrapf("namespace %q is not an absolute URI", ns)
	}

	labels := strings.Split(strings.ToLower(u.Hostname()), ".")
	segments := make([]string, 0, len(labels)+4)
	for i := len(labels) - 1; i >= 0; i-- {
		if labels[i] == "" {
			continue
		}
		segments = append(segments, labels[i])
	}
	if port := u.Port(); port != "" {
		segments[len(segments)-1] += "_" + port
	}
	for _, segment := range strings.Split(u.Path, "/") {
		if segment == "" || segment == "." {
			continue
		}
		if err := validSegment(segment); err != nil {
			return nil, ErrInvalidNamespace.Wrapf("namespace %q: %v", ns, err)
		}
		segments = append(segments, segment)
	}
	return segments, nil
}

func validSegment(segment string) error {
	switch {
	case segment == "", segment == ".", segment == "..":
		return fmt.Errorf("invalid path segment %q", segment)
	case strings.ContainsAny(segment, `/\`):
		return fmt.Errorf("path segment %q contains a separator", segment)
	case strings.HasPrefix(segment, "."):
		return fmt.Errorf("path segment %q may not be hidden", segment)
	}
	return nil
}

func itemFolder(id ItemIdentity) (string, error) {
	nsPath, err := NamespacePath(id.BaseNamespace)
	if err != nil {
		return "", err
	}
	if err := validSegment(id.Filename); err != nil {
		return "", ErrInvalidPath.Wrapf("filename: %v", err)
	}
	if err := validSegment(id.Version); err != nil {
		return "", ErrInvalidPath.Wrapf("version: %v", err)
	}
	return path.Join(itemsPrefix, nsPath, id.Version), nil
}

// GetPathToContent yields the local key of the content of an item
func GetPathToContent(id ItemIdentity) (string, error) {
	folder, err := itemFolder(id)
	if err != nil {
		return "", err
	}
	return path.Join(folder, id.Filename), nil
}

// GetPathToMetadata yields the local key of the metadata record of an item
func GetPathToMetadata(id ItemIdentity) (string, error) {
	folder, err := itemFolder(id)
	if err != nil {
		return "", err
	}
	return path.Join(folder, id.Filename+metadataSuffix), nil
}

// GetPathToWIP yields the local key of the work in progress on an item.
//
// There is at most one work in progress per file name in a base namespace, whatever the version.
func GetPathToWIP(baseNamespace, filename string) (string, error) {
	nsPath, err := NamespacePath(baseNamespace)
	if err != nil {
		return "", err
	}
	if err := validSegment(filename); err != nil {
		return "", ErrInvalidPath.Wrapf("filename: %v", err)
	}
	return path.Join(wipPrefix, nsPath, filename), nil
}

// GetPathToNamespaceID yields the local key of the namespace id file for a namespace folder
func GetPathToNamespaceID(ns string) (string, error) {
	nsPath, err := NamespacePath(ns)
	if err != nil {
		return "", err
	}
	return path.Join(itemsPrefix, nsPath, namespaceIDFile), nil
}

// NamespaceIDFiles lists the namespace id files to write for a namespace and
// all its ancestors, from the host folder down to the namespace itself
func NamespaceIDFiles(ns string) (map[string]NamespaceID, error) {
	normalized := NormalizeNamespace(ns)
	u, err := url.Parse(normalized)
	if err != nil {
		return nil, ErrInvalidNamespace.Wrap(err)
	}
	if _, err = namespaceSegments(normalized); err != nil {
		return nil, err
	}

	res := make(map[string]NamespaceID)
	current := u.Scheme + "://" + u.Host
	for _, segment := range append([]string{""}, strings.Split(u.Path, "/")...) {
		if segment == "." {
			continue
		}
		if segment != "" {
			current += "/" + segment
		} else if len(res) > 0 {
			continue
		}
		key, err := GetPathToNamespaceID(current)
		if err != nil {
			return nil, err
		}
		res[key] = NamespaceID{Namespace: current}
	}
	return res, nil
}

// GetPathPrefixToItems yields the local folder holding all items
func GetPathPrefixToItems() string {
	return itemsPrefix
}

// GetPathPrefixToChangeSet yields the local folder where a changeset keeps its backups
func GetPathPrefixToChangeSet(changeSetID string) string {
	return path.Join(changeSetsPrefix, changeSetID) + "/"
}

// GetPathPrefixToChangeSets yields the local folder holding all changesets
func GetPathPrefixToChangeSets() string {
	return changeSetsPrefix
}

// IsMetadataPath tells if a local key refers to a metadata record
func IsMetadataPath(key string) bool {
	return strings.HasPrefix(key, itemsPrefix) && strings.HasSuffix(key, metadataSuffix)
}
