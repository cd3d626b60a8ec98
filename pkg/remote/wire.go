// Copyright © 2018 One Concern

package remote

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/otarepo/pkg/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ServicePath is the root of all endpoints, relative to the repository endpoint
const ServicePath = "/service"

// Endpoints of the remote repository service, relative to ServicePath
const (
	PathRepositoryMetadata  = "/repository-metadata"
	PathAllNamespaces       = "/all-namespaces"
	PathBaseNamespaces      = "/base-namespaces"
	PathNamespaceChildren   = "/namespace-children"
	PathListItems           = "/list-items"
	PathListItems2          = "/list-items2"
	PathVersionHistory      = "/version-history"
	PathSearch              = "/search"
	PathSearch2             = "/search2"
	PathCreateRootNamespace = "/create-root-namespace"
	PathDeleteRootNamespace = "/delete-root-namespace"
	PathCreateNamespace     = "/create-namespace"
	PathDeleteNamespace     = "/delete-namespace"
	PathPublish             = "/publish"
	PathLock                = "/lock"
	PathUnlock              = "/unlock"
	PathCommit              = "/commit"
	PathPromote             = "/promote"
	PathDemote              = "/demote"
	PathUpdateStatus        = "/update-status"
	PathRecalculateCRC      = "/recalculate-crc"
	PathDelete              = "/delete"
	PathMetadata            = "/metadata"
	PathContent             = "/content"
	PathHistory             = "/history"
	PathUserAuthorization   = "/user-authorization"
	PathLockedItems         = "/locked-items"
	PathItemWhereUsed       = "/item-where-used"
	PathEntityWhereUsed     = "/entity-where-used"
	PathEntityWhereExtended = "/entity-where-extended"
	PathHistoricalContent   = "/historical-content"
)

// Query parameters
const (
	ParamBaseNamespace     = "baseNamespace"
	ParamRootNamespace     = "rootNamespace"
	ParamItemType          = "itemType"
	ParamQuery             = "query"
	ParamLatestVersion     = "latestVersion"
	ParamIncludeDraft      = "includeDraft"
	ParamIncludeStatus     = "includeStatus"
	ParamIncludeIndirect   = "includeIndirect"
	ParamNewStatus         = "newStatus"
	ParamHistoricalBaseNS  = "basens"
	ParamHistoricalVersion = "version"
	ParamHistoricalFile    = "filename"
	ParamHistoricalCommit  = "commit"
)

// Multipart form fields
const (
	FieldItem          = "item"
	FieldFileContent   = "fileContent"
	FieldRemarks       = "remarks"
	FieldNamespace     = "namespace"
	FieldLibraryName   = "libraryName"
	FieldVersion       = "version"
	FieldStatus        = "status"
	FieldVersionScheme = "versionScheme"
)

// NamespaceList is the envelope of namespace listings
type NamespaceList struct {
	Namespaces []string `json:"namespaces"`
}

// ItemList is the envelope of item listings
type ItemList struct {
	Items []model.ItemMetadata `json:"items"`
}

// EntityList is the envelope of entity listings
type EntityList struct {
	Entities []model.EntityInfo `json:"entities"`
}

// SearchResultList is the envelope of polymorphic search results
type SearchResultList struct {
	Results []model.SearchResult `json:"results"`
}

// PermissionResponse is the envelope of user authorizations
type PermissionResponse struct {
	Permission model.Permission `json:"permission"`
}

// ErrorResponse is the body returned with error statuses
type ErrorResponse struct {
	Message string `json:"message"`
}

// ListItemsRequest is the body of list-items requests
type ListItemsRequest struct {
	Namespace         string `json:"namespace"`
	LatestVersionOnly bool   `json:"latestVersionOnly"`
	IncludeDraft      bool   `json:"includeDraft"`
}

// ListItems2Request is the body of list-items2 requests
type ListItems2Request struct {
	Namespace         string       `json:"namespace"`
	IncludeStatus     model.Status `json:"includeStatus"`
	LatestVersionOnly bool         `json:"latestVersionOnly"`
}
