// Copyright © 2018 One Concern

package config

import "github.com/oneconcern/otarepo/pkg/errors"

var (
	// ErrInvalidConfig reports a configuration which cannot be used
	ErrInvalidConfig = errors.New("invalid repository configuration")

	// ErrInvalidKey reports a missing or malformed secret key
	ErrInvalidKey = errors.New("invalid secret key")

	// ErrSealedPassword reports a sealed password which cannot be opened
	ErrSealedPassword = errors.New("cannot open sealed password")
)
