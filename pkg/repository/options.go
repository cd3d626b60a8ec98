// Copyright © 2018 One Concern

package repository

import "go.uber.org/zap"

// Option for the repository client
type Option func(*Client)

// Logger for the repository client
func Logger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.l = l
		}
	}
}

// DisplayName of the repository, until refreshed from the remote service
func DisplayName(name string) Option {
	return func(c *Client) {
		c.displayName = name
	}
}

// RootNamespaces known for the repository, until refreshed from the remote service
func RootNamespaces(namespaces ...string) Option {
	return func(c *Client) {
		c.rootNamespaces = normalizeAll(namespaces)
	}
}
