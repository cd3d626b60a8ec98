package model

import "github.com/oneconcern/otarepo/pkg/errors"

var (
	// ErrInvalidNamespace indicates a namespace which is not an absolute URI
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrInvalidPath indicates an item file name or version which cannot be mapped to a local path
	ErrInvalidPath = errors.New("invalid item path")

	// ErrInvalidURI indicates a malformed item URI
	ErrInvalidURI = errors.New("invalid item URI")

	// ErrInvalidStatus indicates an unknown item status
	ErrInvalidStatus = errors.New("invalid item status")
)
