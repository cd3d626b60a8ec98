package model

import (
	"net/url"
	"strings"
)

// URIScheme is the scheme of item URIs
const URIScheme = "otm"

// ItemURI designates an item in a repository, as in:
//
//	otm://<repository-id>/<filename>?ns=<namespace>&scheme=<version-scheme>
type ItemURI struct {
	Repository    string
	Filename      string
	Namespace     string
	VersionScheme string
}

// ParseItemURI reads an item URI
func ParseItemURI(uri string) (ItemURI, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return ItemURI{}, ErrInvalidURI.Wrap(err)
	}
	if u.Scheme != URIScheme {
		return ItemURI{}, ErrInvalidURI.Wrapf("expected scheme %q in %q", URIScheme, uri)
	}
	if u.Host == "" {
		return ItemURI{}, ErrInvalidURI.Wrapf("missing repository in %q", uri)
	}
	filename := strings.Trim(u.Path, "/")
	if filename == "" || strings.Contains(filename, "/") {
		return ItemURI{}, ErrInvalidURI.Wrapf("invalid file name in %q", uri)
	}
	q := u.Query()
	return ItemURI{
		Repository:    u.Host,
		Filename:      filename,
		Namespace:     NormalizeNamespace(q.Get("ns")),
		VersionScheme: q.Get("scheme"),
	}, nil
}

func (u ItemURI) String() string {
	q := url.Values{}
	if u.Namespace != "" {
		q.Set("ns", u.Namespace)
	}
	if u.VersionScheme != "" {
		q.Set("scheme", u.VersionScheme)
	}
	res := url.URL{
		Scheme:   URIScheme,
		Host:     u.Repository,
		Path:     "/" + u.Filename,
		RawQuery: q.Encode(),
	}
	return res.String()
}
