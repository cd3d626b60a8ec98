package model

import "fmt"

// ResultKind discriminates search results
type ResultKind string

const (
	// ResultLibrary is a search result matching a whole item
	ResultLibrary ResultKind = "LIBRARY"

	// ResultEntity is a search result matching an entity defined inside an item
	ResultEntity ResultKind = "ENTITY"
)

// EntityInfo describes a named entity defined by an item
type EntityInfo struct {
	EntityName string       `json:"entityName" yaml:"entityName"`
	EntityType string       `json:"entityType,omitempty" yaml:"entityType,omitempty"`
	Namespace  string       `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Library    ItemMetadata `json:"library" yaml:"library"`
}

// SearchResult is the wire representation of a search result: either an item or an entity
type SearchResult struct {
	Kind    ResultKind    `json:"resultType"`
	Library *ItemMetadata `json:"library,omitempty"`
	Entity  *EntityInfo   `json:"entity,omitempty"`
}

// Validate checks that the payload matches the result kind
func (r SearchResult) Validate() error {
	switch r.Kind {
	case ResultLibrary:
		if r.Library == nil {
			return fmt.Errorf("library search result without library")
		}
	case ResultEntity:
		if r.Entity == nil {
			return fmt.Errorf("entity search result without entity")
		}
	default:
		return fmt.Errorf("unknown search result type %q", r.Kind)
	}
	return nil
}

// RepositoryInfo describes a remote repository
type RepositoryInfo struct {
	ID             string   `json:"id" yaml:"id"`
	DisplayName    string   `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	RootNamespaces []string `json:"rootNamespaces" yaml:"rootNamespaces"`
}
