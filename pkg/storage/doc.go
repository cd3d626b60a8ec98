// Copyright © 2018 One Concern

// Package storage provides the key/value interface used to keep
// repository artifacts on disk.
//
// Keys are slash-separated relative paths. The only backend is the local file
// system (see localfs), wrapped by Instrument when tracing is enabled.
package storage
