package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeNamespace(t *testing.T) {
	assert.Equal(t, "http://example.com/ns", NormalizeNamespace(" http://example.com/ns/ "))
	assert.Equal(t, "http://example.com/ns", NormalizeNamespace("http://example.com/ns//"))
	assert.Equal(t, "http://example.com/ns", NormalizeNamespace("http://example.com/ns"))
}

func TestNamespacePath(t *testing.T) {
	for _, toPin := range []struct {
		name       string
		ns         string
		expected   string
		wantsError bool
	}{
		{name: "host and path", ns: "http://www.example.com/ns/a", expected: "com/example/www/ns/a"},
		{name: "trailing slash", ns: "http://www.example.com/ns/a/", expected: "com/example/www/ns/a"},
		{name: "host only", ns: "http://Example.COM", expected: "com/example"},
		{name: "with port", ns: "http://localhost:8080/ns", expected: "localhost_8080/ns"},
		{name: "relative", ns: "ns/a", wantsError: true},
		{name: "parent segment", ns: "http://example.com/ns/../a", wantsError: true},
		{name: "hidden segment", ns: "http://example.com/.changesets", wantsError: true},
	} {
		fixture := toPin
		t.Run(fixture.name, func(t *testing.T) {
			t.Parallel()
			p, err := NamespacePath(fixture.ns)
			if fixture.wantsError {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidNamespace))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, fixture.expected, p)
		})
	}
}

func TestPathsForItems(t *testing.T) {
	id := ItemIdentity{BaseNamespace: "http://www.example.com/ns/a/", Filename: "lib_1_0.otm", Version: "1.0.0"}

	p, err := GetPathToContent(id)
	require.NoError(t, err)
	assert.Equal(t, "items/com/example/www/ns/a/1.0.0/lib_1_0.otm", p)

	p, err = GetPathToMetadata(id)
	require.NoError(t, err)
	assert.Equal(t, "items/com/example/www/ns/a/1.0.0/lib_1_0.otm.meta.yaml", p)
	assert.True(t, IsMetadataPath(p))

	p, err = GetPathToWIP(id.BaseNamespace, id.Filename)
	require.NoError(t, err)
	assert.Equal(t, "wip/com/example/www/ns/a/lib_1_0.otm", p)

	p, err = GetPathToNamespaceID(id.BaseNamespace)
	require.NoError(t, err)
	assert.Equal(t, "items/com/example/www/ns/a/nsid.yaml", p)

	assert.Equal(t, ".changesets/123/", GetPathPrefixToChangeSet("123"))

	_, err = GetPathToContent(ItemIdentity{BaseNamespace: id.BaseNamespace, Filename: "../x", Version: "1.0.0"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPath))

	_, err = GetPathToMetadata(ItemIdentity{BaseNamespace: id.BaseNamespace, Filename: "x.otm", Version: ".."})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPath))
}

func TestNamespaceIDFiles(t *testing.T) {
	files, err := NamespaceIDFiles("http://www.example.com/ns/a")
	require.NoError(t, err)
	assert.Equal(t, map[string]NamespaceID{
		"items/com/example/www/nsid.yaml":      {Namespace: "http://www.example.com"},
		"items/com/example/www/ns/nsid.yaml":   {Namespace: "http://www.example.com/ns"},
		"items/com/example/www/ns/a/nsid.yaml": {Namespace: "http://www.example.com/ns/a"},
	}, files)

	_, err = NamespaceIDFiles("not a namespace")
	require.Error(t, err)
}

func TestItemURI(t *testing.T) {
	u, err := ParseItemURI("otm://repo1/lib_1_0.otm?ns=http://www.example.com/ns/v1&scheme=OTA2")
	require.NoError(t, err)
	assert.Equal(t, ItemURI{
		Repository:    "repo1",
		Filename:      "lib_1_0.otm",
		Namespace:     "http://www.example.com/ns/v1",
		VersionScheme: "OTA2",
	}, u)

	again, err := ParseItemURI(u.String())
	require.NoError(t, err)
	assert.Equal(t, u, again)

	for _, bad := range []string{"http://repo1/x.otm", "otm:///x.otm", "otm://repo1/", "otm://repo1/a/b.otm"} {
		_, err = ParseItemURI(bad)
		require.Errorf(t, err, "expected %q to be rejected", bad)
		assert.True(t, errors.Is(err, ErrInvalidURI))
	}
}
