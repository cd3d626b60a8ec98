// Copyright © 2018 One Concern

// Package versionscheme knows how versions are carried by namespaces and file names.
//
// A version scheme derives the base namespace of an item (its namespace
// stripped from any version information) and its version identifier.
package versionscheme

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/blang/semver"
	"github.com/oneconcern/otarepo/pkg/errors"
	"github.com/oneconcern/otarepo/pkg/model"
)

var (
	// ErrUnknownScheme indicates a version scheme which is not registered
	ErrUnknownScheme = errors.New("unknown version scheme")

	// ErrInvalidVersion indicates a version identifier which does not comply with the scheme
	ErrInvalidVersion = errors.New("invalid version identifier")

	// ErrInvalidNamespace indicates a namespace without version information
	ErrInvalidNamespace = errors.New("namespace does not carry a version")
)

// Scheme knows how to read and write versions in namespaces and file names
type Scheme interface {
	Name() string

	// BaseNamespace strips the version suffix from a namespace
	BaseNamespace(namespace string) string

	// VersionIdentifier derives the version of an item from its namespace and file name
	VersionIdentifier(namespace, filename string) (string, error)

	// VersionedNamespace builds the namespace of a version, from its base namespace
	VersionedNamespace(baseNamespace, version string) (string, error)

	// Filename of a library at some version
	Filename(libraryName, version string) (string, error)

	// Compare two version identifiers: -1, 0, or 1
	Compare(a, b string) (int, error)
}

// DefaultScheme is the scheme applied when none is specified
const DefaultScheme = "OTA2"

var (
	mx       sync.RWMutex
	registry = map[string]Scheme{
		DefaultScheme: OTA2{},
	}
)

// Register a version scheme under its name
func Register(scheme Scheme) {
	mx.Lock()
	defer mx.Unlock()
	registry[strings.ToUpper(scheme.Name())] = scheme
}

// Lookup a version scheme by name. An empty name yields the default scheme.
func Lookup(name string) (Scheme, error) {
	if name == "" {
		name = DefaultScheme
	}
	mx.RLock()
	defer mx.RUnlock()
	scheme, ok := registry[strings.ToUpper(name)]
	if !ok {
		return nil, ErrUnknownScheme.Wrapf("%q", name)
	}
	return scheme, nil
}

// Names of the registered schemes, sorted
func Names() []string {
	mx.RLock()
	defer mx.RUnlock()
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

var (
	ota2NamespaceRe = regexp.MustCompile(`/v(\d+)((?:_\d+)*)$`)
	ota2FilenameRe  = regexp.MustCompile(`_(\d+)_(\d+)_(\d+)\.[A-Za-z0-9]+$`)
)

// OTA2 is the version scheme where namespaces end with a major and minor
// version (as in ".../v01_02") and file names carry the full version (as in "Lib_1_2_3.otm")
type OTA2 struct{}

// Name of the scheme
func (OTA2) Name() string {
	return DefaultScheme
}

// BaseNamespace strips the version suffix from a namespace
func (OTA2) BaseNamespace(namespace string) string {
	ns := model.NormalizeNamespace(namespace)
	return model.NormalizeNamespace(ota2NamespaceRe.ReplaceAllString(ns, ""))
}

// VersionIdentifier derives the version from the namespace (major and minor),
// and from the file name (patch) when available
func (s OTA2) VersionIdentifier(namespace, filename string) (string, error) {
	match := ota2NamespaceRe.FindStringSubmatch(model.NormalizeNamespace(namespace))
	if match == nil {
		return "", ErrInvalidNamespace.Wrapf("%q", namespace)
	}
	parts := []string{match[1]}
	if match[2] != "" {
		parts = append(parts, strings.Split(strings.TrimPrefix(match[2], "_"), "_")...)
	}
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	if fm := ota2FilenameRe.FindStringSubmatch(filename); fm != nil && trimZeros(fm[1]) == trimZeros(parts[0]) && trimZeros(fm[2]) == trimZeros(parts[1]) {
		parts[2] = fm[3]
	}
	v, err := parse(strings.Join(parts[:3], "."))
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// VersionedNamespace builds the namespace of a version, as in ".../v01_02"
func (OTA2) VersionedNamespace(baseNamespace, version string) (string, error) {
	v, err := parse(version)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/v%02d_%02d", model.NormalizeNamespace(baseNamespace), v.Major, v.Minor), nil
}

// Filename of a library, as in "Lib_1_2_3.otm"
func (OTA2) Filename(libraryName, version string) (string, error) {
	v, err := parse(version)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%d_%d_%d.otm", libraryName, v.Major, v.Minor, v.Patch), nil
}

// Compare two version identifiers
func (OTA2) Compare(a, b string) (int, error) {
	va, err := parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := parse(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

func parse(version string) (semver.Version, error) {
	parts := strings.Split(strings.TrimSpace(version), ".")
	for i := range parts {
		if _, err := strconv.Atoi(parts[i]); err == nil {
			parts[i] = trimZeros(parts[i])
		}
	}
	v, err := semver.ParseTolerant(strings.Join(parts, "."))
	if err != nil {
		return semver.Version{}, ErrInvalidVersion.Wrapf("%q: %v", version, err)
	}
	return v, nil
}

func trimZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}
