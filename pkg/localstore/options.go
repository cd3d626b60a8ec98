// Copyright © 2018 One Concern

package localstore

import "go.uber.org/zap"

// Option for the file manager
type Option func(*FileManager)

// Logger for the file manager
func Logger(l *zap.Logger) Option {
	return func(m *FileManager) {
		if l != nil {
			m.l = l
		}
	}
}

// CacheSize sets the number of metadata records kept in memory. Defaults to 256.
func CacheSize(size int) Option {
	return func(m *FileManager) {
		if size > 0 {
			m.cacheSize = size
		}
	}
}

// Root tells where the local repository lives on disk. This is informative only:
// all accesses go through the store.
func Root(root string) Option {
	return func(m *FileManager) {
		m.root = root
	}
}
