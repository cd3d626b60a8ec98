// Copyright © 2018 One Concern

package remotetest

import (
	"io/ioutil"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/oneconcern/otarepo/pkg/model"
	"github.com/oneconcern/otarepo/pkg/remote"
	"github.com/oneconcern/otarepo/pkg/versionscheme"
)

const maxFormMemory = 32 << 20

func (s *Service) routes() map[string]handler {
	return map[string]handler{
		remote.PathRepositoryMetadata:  s.repositoryMetadata,
		remote.PathAllNamespaces:       s.allNamespaces,
		remote.PathBaseNamespaces:      s.baseNamespaces,
		remote.PathNamespaceChildren:   s.namespaceChildren,
		remote.PathListItems:           s.listItems,
		remote.PathListItems2:          s.listItems2,
		remote.PathVersionHistory:      s.versionHistory,
		remote.PathSearch:              s.search,
		remote.PathSearch2:             s.search2,
		remote.PathCreateRootNamespace: s.createRootNamespace,
		remote.PathDeleteRootNamespace: s.deleteRootNamespace,
		remote.PathCreateNamespace:     s.createNamespace,
		remote.PathDeleteNamespace:     s.deleteNamespace,
		remote.PathPublish:             s.publish,
		remote.PathLock:                s.lock,
		remote.PathUnlock:              s.unlock,
		remote.PathCommit:              s.commitWIP,
		remote.PathPromote:             s.promote,
		remote.PathDemote:              s.demote,
		remote.PathUpdateStatus:        s.updateStatus,
		remote.PathRecalculateCRC:      s.recalculateCRC,
		remote.PathDelete:              s.deleteItem,
		remote.PathMetadata:            s.metadata,
		remote.PathContent:             s.content,
		remote.PathHistory:             s.history,
		remote.PathUserAuthorization:   s.userAuthorization,
		remote.PathLockedItems:         s.lockedItems,
		remote.PathItemWhereUsed:       s.itemWhereUsed,
		remote.PathEntityWhereUsed:     s.entityWhereUsed,
		remote.PathEntityWhereExtended: s.entityWhereExtended,
		remote.PathHistoricalContent:   s.historicalContent,
	}
}

func (s *Service) repositoryMetadata(_ *http.Request, _ string) (interface{}, error) {
	info := s.info
	info.RootNamespaces = append([]string{}, s.info.RootNamespaces...)
	return info, nil
}

func sortedKeys(set map[string]struct{}) []string {
	res := make([]string, 0, len(set))
	for k := range set {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

func (s *Service) allNamespaces(_ *http.Request, _ string) (interface{}, error) {
	return remote.NamespaceList{Namespaces: sortedKeys(s.namespaces)}, nil
}

func (s *Service) baseNamespaces(_ *http.Request, _ string) (interface{}, error) {
	set := make(map[string]struct{})
	for _, rec := range s.items {
		set[rec.meta.BaseNamespace] = struct{}{}
	}
	return remote.NamespaceList{Namespaces: sortedKeys(set)}, nil
}

func (s *Service) namespaceChildren(r *http.Request, _ string) (interface{}, error) {
	parent := model.NormalizeNamespace(r.URL.Query().Get(remote.ParamBaseNamespace))
	if _, ok := s.namespaces[parent]; !ok {
		return nil, fail(http.StatusNotFound, "namespace %s does not exist", parent)
	}
	children := make(map[string]struct{})
	for ns := range s.namespaces {
		rest := strings.TrimPrefix(ns, parent+"/")
		if rest == ns || rest == "" || strings.Contains(rest, "/") {
			continue
		}
		children[rest] = struct{}{}
	}
	return remote.NamespaceList{Namespaces: sortedKeys(children)}, nil
}

func statusAtLeast(s, floor model.Status) bool {
	for current, ok := floor, true; ok; current, ok = current.Next() {
		if current == s {
			return true
		}
	}
	return false
}

// latest keeps the highest version of each library
func latest(items []model.ItemMetadata) []model.ItemMetadata {
	best := make(map[string]model.ItemMetadata)
	for _, meta := range items {
		key := meta.BaseNamespace + "~" + libraryKey(meta)
		current, ok := best[key]
		if !ok || compareVersions(meta, current) > 0 {
			best[key] = meta
		}
	}
	res := make([]model.ItemMetadata, 0, len(best))
	for _, meta := range best {
		res = append(res, meta)
	}
	return sortItems(res)
}

func libraryKey(meta model.ItemMetadata) string {
	if meta.LibraryName != "" {
		return meta.LibraryName
	}
	return meta.Filename
}

func compareVersions(a, b model.ItemMetadata) int {
	scheme, err := versionscheme.Lookup(a.VersionScheme)
	if err == nil {
		if c, err := scheme.Compare(a.Version, b.Version); err == nil {
			return c
		}
	}
	return strings.Compare(a.Version, b.Version)
}

func sortItems(items []model.ItemMetadata) []model.ItemMetadata {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].BaseNamespace != items[j].BaseNamespace {
			return items[i].BaseNamespace < items[j].BaseNamespace
		}
		if libraryKey(items[i]) != libraryKey(items[j]) {
			return libraryKey(items[i]) < libraryKey(items[j])
		}
		return compareVersions(items[i], items[j]) > 0
	})
	return items
}

func (s *Service) selectItems(keep func(model.ItemMetadata) bool, latestOnly bool) []model.ItemMetadata {
	res := make([]model.ItemMetadata, 0, len(s.items))
	for _, rec := range s.items {
		meta := s.view(rec)
		if keep(meta) {
			res = append(res, meta)
		}
	}
	if latestOnly {
		return latest(res)
	}
	return sortItems(res)
}

func readable(meta model.ItemMetadata, includeDraft bool) bool {
	return includeDraft || statusAtLeast(meta.Status, model.StatusFinal)
}

func (s *Service) listItems(r *http.Request, _ string) (interface{}, error) {
	var rq remote.ListItemsRequest
	if err := decode(r, &rq); err != nil {
		return nil, err
	}
	ns := model.NormalizeNamespace(rq.Namespace)
	return remote.ItemList{Items: s.selectItems(func(meta model.ItemMetadata) bool {
		return meta.BaseNamespace == ns && readable(meta, rq.IncludeDraft)
	}, rq.LatestVersionOnly)}, nil
}

func (s *Service) listItems2(r *http.Request, _ string) (interface{}, error) {
	var rq remote.ListItems2Request
	if err := decode(r, &rq); err != nil {
		return nil, err
	}
	ns := model.NormalizeNamespace(rq.Namespace)
	minStatus := rq.IncludeStatus
	if minStatus == "" {
		minStatus = model.StatusDraft
	}
	itemType := model.ItemType(r.URL.Query().Get(remote.ParamItemType))
	return remote.ItemList{Items: s.selectItems(func(meta model.ItemMetadata) bool {
		return meta.BaseNamespace == ns &&
			statusAtLeast(meta.Status, minStatus) &&
			(itemType == "" || meta.ItemType == itemType)
	}, rq.LatestVersionOnly)}, nil
}

func matches(meta model.ItemMetadata, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(meta.Filename), q) ||
		strings.Contains(strings.ToLower(meta.LibraryName), q)
}

func (s *Service) search(r *http.Request, _ string) (interface{}, error) {
	query := r.URL.Query().Get(remote.ParamQuery)
	includeDraft := boolParam(r, remote.ParamIncludeDraft)
	return remote.ItemList{Items: s.selectItems(func(meta model.ItemMetadata) bool {
		return matches(meta, query) && readable(meta, includeDraft)
	}, boolParam(r, remote.ParamLatestVersion))}, nil
}

func (s *Service) search2(r *http.Request, _ string) (interface{}, error) {
	values := r.URL.Query()
	query := values.Get(remote.ParamQuery)
	minStatus := model.Status(values.Get(remote.ParamIncludeStatus))
	if minStatus == "" {
		minStatus = model.StatusDraft
	}
	itemType := model.ItemType(values.Get(remote.ParamItemType))

	items := s.selectItems(func(meta model.ItemMetadata) bool {
		return matches(meta, query) &&
			statusAtLeast(meta.Status, minStatus) &&
			(itemType == "" || meta.ItemType == itemType)
	}, boolParam(r, remote.ParamLatestVersion))

	results := make([]model.SearchResult, 0, len(items)+len(s.entities))
	for i := range items {
		results = append(results, model.SearchResult{Kind: model.ResultLibrary, Library: &items[i]})
	}
	for i := range s.entities {
		if strings.Contains(strings.ToLower(s.entities[i].EntityName), strings.ToLower(query)) {
			entity := s.entities[i]
			results = append(results, model.SearchResult{Kind: model.ResultEntity, Entity: &entity})
		}
	}
	return remote.SearchResultList{Results: results}, nil
}

func (s *Service) find(r *http.Request) (*record, error) {
	var id model.ItemIdentity
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return nil, fail(http.StatusBadRequest, "malformed form: %v", err)
		}
		if err := json.Unmarshal([]byte(r.FormValue(remote.FieldItem)), &id); err != nil {
			return nil, fail(http.StatusBadRequest, "malformed item: %v", err)
		}
	} else if err := decode(r, &id); err != nil {
		return nil, err
	}
	rec, ok := s.items[id.Normalized().Key()]
	if !ok {
		return nil, fail(http.StatusNotFound, "item %s not found", id.Key())
	}
	return rec, nil
}

func (s *Service) versionHistory(r *http.Request, _ string) (interface{}, error) {
	rec, err := s.find(r)
	if err != nil {
		return nil, err
	}
	return remote.ItemList{Items: s.selectItems(func(meta model.ItemMetadata) bool {
		return meta.BaseNamespace == rec.meta.BaseNamespace && libraryKey(meta) == libraryKey(rec.meta)
	}, false)}, nil
}

func (s *Service) history(r *http.Request, _ string) (interface{}, error) {
	rec, err := s.find(r)
	if err != nil {
		return nil, err
	}
	return model.ItemHistory{
		Item:    s.view(rec),
		Commits: append([]model.CommitEntry{}, rec.commits...),
	}, nil
}

func (s *Service) metadata(r *http.Request, _ string) (interface{}, error) {
	rec, err := s.find(r)
	if err != nil {
		return nil, err
	}
	return s.view(rec), nil
}

func (s *Service) content(r *http.Request, _ string) (interface{}, error) {
	rec, err := s.find(r)
	if err != nil {
		return nil, err
	}
	return append([]byte{}, rec.content...), nil
}

func (s *Service) historicalContent(r *http.Request, _ string) (interface{}, error) {
	values := r.URL.Query()
	id := model.ItemIdentity{
		BaseNamespace: values.Get(remote.ParamHistoricalBaseNS),
		Filename:      values.Get(remote.ParamHistoricalFile),
		Version:       values.Get(remote.ParamHistoricalVersion),
	}
	rec, ok := s.items[id.Key()]
	if !ok {
		return nil, fail(http.StatusNotFound, "item %s not found", id.Key())
	}
	raw := values.Get(remote.ParamHistoricalCommit)
	if raw == "" {
		return append([]byte{}, rec.content...), nil
	}
	commit, err := strconv.Atoi(raw)
	if err != nil || commit < 1 || commit > len(rec.versions) {
		return nil, fail(http.StatusNotFound, "commit %q not found", raw)
	}
	return append([]byte{}, rec.versions[commit-1]...), nil
}

func (s *Service) requireWrite(user string, meta model.ItemMetadata) error {
	if !s.permission(meta.BaseNamespace).Implies(model.PermissionWrite) {
		return fail(http.StatusForbidden, "user %s may not modify %s", user, meta.BaseNamespace)
	}
	return nil
}

func (s *Service) lock(r *http.Request, user string) (interface{}, error) {
	rec, err := s.find(r)
	if err != nil {
		return nil, err
	}
	if err = s.requireWrite(user, rec.meta); err != nil {
		return nil, err
	}
	switch {
	case rec.meta.LockedBy == user:
		return s.view(rec), nil
	case rec.meta.LockedBy != "":
		return nil, fail(http.StatusConflict, "item is locked by %s", rec.meta.LockedBy)
	case rec.meta.Status != model.StatusDraft:
		return nil, fail(http.StatusBadRequest, "only draft items may be locked")
	}
	rec.meta.LockedBy = user
	rec.meta.LastUpdated = s.now()
	return s.view(rec), nil
}

func (s *Service) lockedByUser(rec *record, user string) error {
	switch rec.meta.LockedBy {
	case user:
		return nil
	case "":
		return fail(http.StatusBadRequest, "item is not locked")
	default:
		return fail(http.StatusConflict, "item is locked by %s", rec.meta.LockedBy)
	}
}

func uploaded(r *http.Request) ([]byte, bool, error) {
	file, _, err := r.FormFile(remote.FieldFileContent)
	if err == http.ErrMissingFile {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail(http.StatusBadRequest, "malformed upload: %v", err)
	}
	defer file.Close()
	content, err := ioutil.ReadAll(file)
	if err != nil {
		return nil, false, fail(http.StatusBadRequest, "malformed upload: %v", err)
	}
	return content, true, nil
}

func (s *Service) unlock(r *http.Request, user string) (interface{}, error) {
	rec, err := s.find(r)
	if err != nil {
		return nil, err
	}
	if err = s.lockedByUser(rec, user); err != nil {
		return nil, err
	}
	content, ok, err := uploaded(r)
	if err != nil {
		return nil, err
	}
	if ok {
		s.commit(rec, content, user, r.FormValue(remote.FieldRemarks))
	}
	rec.meta.LockedBy = ""
	rec.meta.LastUpdated = s.now()
	return s.view(rec), nil
}

func (s *Service) commitWIP(r *http.Request, user string) (interface{}, error) {
	rec, err := s.find(r)
	if err != nil {
		return nil, err
	}
	if err = s.lockedByUser(rec, user); err != nil {
		return nil, err
	}
	content, ok, err := uploaded(r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fail(http.StatusBadRequest, "missing %s", remote.FieldFileContent)
	}
	s.commit(rec, content, user, r.FormValue(remote.FieldRemarks))
	return s.view(rec), nil
}

func (s *Service) transition(r *http.Request, user string, next func(model.Status) (model.Status, error)) (interface{}, error) {
	rec, err := s.find(r)
	if err != nil {
		return nil, err
	}
	if err = s.requireWrite(user, rec.meta); err != nil {
		return nil, err
	}
	if rec.meta.LockedBy != "" {
		return nil, fail(http.StatusConflict, "item is locked by %s", rec.meta.LockedBy)
	}
	status, err := next(rec.meta.Status)
	if err != nil {
		return nil, err
	}
	rec.meta.Status = status
	rec.meta.LastUpdated = s.now()
	return s.view(rec), nil
}

func (s *Service) promote(r *http.Request, user string) (interface{}, error) {
	return s.transition(r, user, func(current model.Status) (model.Status, error) {
		next, ok := current.Next()
		if !ok {
			return current, fail(http.StatusBadRequest, "%s items may not be promoted", current)
		}
		return next, nil
	})
}

func (s *Service) demote(r *http.Request, user string) (interface{}, error) {
	return s.transition(r, user, func(current model.Status) (model.Status, error) {
		previous, ok := current.Previous()
		if !ok {
			return current, fail(http.StatusBadRequest, "%s items may not be demoted", current)
		}
		return previous, nil
	})
}

func (s *Service) updateStatus(r *http.Request, user string) (interface{}, error) {
	status, err := model.ParseStatus(r.URL.Query().Get(remote.ParamNewStatus))
	if err != nil {
		return nil, fail(http.StatusBadRequest, err.Error())
	}
	return s.transition(r, user, func(model.Status) (model.Status, error) {
		return status, nil
	})
}

func (s *Service) recalculateCRC(r *http.Request, user string) (interface{}, error) {
	rec, err := s.find(r)
	if err != nil {
		return nil, err
	}
	if err = s.requireWrite(user, rec.meta); err != nil {
		return nil, err
	}
	rec.meta.CRC = int64(crc32Of(rec.content))
	rec.meta.LastUpdated = s.now()
	return s.view(rec), nil
}

func (s *Service) deleteItem(r *http.Request, user string) (interface{}, error) {
	rec, err := s.find(r)
	if err != nil {
		return nil, err
	}
	if err = s.requireWrite(user, rec.meta); err != nil {
		return nil, err
	}
	if rec.meta.LockedBy != "" {
		return nil, fail(http.StatusConflict, "item is locked by %s", rec.meta.LockedBy)
	}
	delete(s.items, rec.meta.Identity().Key())
	return nil, nil
}

func (s *Service) userAuthorization(r *http.Request, _ string) (interface{}, error) {
	ns := model.NormalizeNamespace(r.URL.Query().Get(remote.ParamBaseNamespace))
	return remote.PermissionResponse{Permission: s.permission(ns)}, nil
}

func (s *Service) lockedItems(_ *http.Request, user string) (interface{}, error) {
	return remote.ItemList{Items: s.selectItems(func(meta model.ItemMetadata) bool {
		return meta.LockedBy == user
	}, false)}, nil
}

func (s *Service) metadataOf(ids []model.ItemIdentity) []model.ItemMetadata {
	res := make([]model.ItemMetadata, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.items[id.Key()]; ok {
			res = append(res, s.view(rec))
		}
	}
	return sortItems(res)
}

// dependents walks the where-used graph, transitively when indirect
func (s *Service) dependents(direct []model.ItemIdentity, indirect bool) []model.ItemIdentity {
	seen := make(map[string]struct{})
	var res []model.ItemIdentity
	queue := append([]model.ItemIdentity{}, direct...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := seen[id.Key()]; ok {
			continue
		}
		seen[id.Key()] = struct{}{}
		res = append(res, id)
		if indirect {
			queue = append(queue, s.whereUsed[id.Key()]...)
		}
	}
	return res
}

func (s *Service) itemWhereUsed(r *http.Request, _ string) (interface{}, error) {
	rec, err := s.find(r)
	if err != nil {
		return nil, err
	}
	direct := s.whereUsed[rec.meta.Identity().Key()]
	return remote.ItemList{Items: s.metadataOf(s.dependents(direct, boolParam(r, remote.ParamIncludeIndirect)))}, nil
}

func (s *Service) entityWhereUsed(r *http.Request, _ string) (interface{}, error) {
	var entity model.EntityInfo
	if err := decode(r, &entity); err != nil {
		return nil, err
	}
	direct := s.entityUsers[entity.EntityName]
	return remote.ItemList{Items: s.metadataOf(s.dependents(direct, boolParam(r, remote.ParamIncludeIndirect)))}, nil
}

func (s *Service) entityWhereExtended(r *http.Request, _ string) (interface{}, error) {
	var entity model.EntityInfo
	if err := decode(r, &entity); err != nil {
		return nil, err
	}
	return remote.EntityList{Entities: append([]model.EntityInfo{}, s.extensions[entity.EntityName]...)}, nil
}

func (s *Service) createRootNamespace(r *http.Request, _ string) (interface{}, error) {
	ns := model.NormalizeNamespace(r.URL.Query().Get(remote.ParamRootNamespace))
	if _, err := model.NamespacePath(ns); err != nil {
		return nil, fail(http.StatusBadRequest, err.Error())
	}
	if root, ok := s.rootOf(ns); ok {
		return nil, fail(http.StatusConflict, "namespace %s is already managed under %s", ns, root)
	}
	for _, root := range s.info.RootNamespaces {
		if strings.HasPrefix(root, ns+"/") {
			return nil, fail(http.StatusConflict, "root namespace %s is nested in %s", root, ns)
		}
	}
	s.addRoot(ns)
	return nil, nil
}

func (s *Service) inUse(ns string) bool {
	for _, rec := range s.items {
		if rec.meta.Namespace == ns || strings.HasPrefix(rec.meta.Namespace, ns+"/") {
			return true
		}
	}
	return false
}

func (s *Service) deleteRootNamespace(r *http.Request, _ string) (interface{}, error) {
	ns := model.NormalizeNamespace(r.URL.Query().Get(remote.ParamRootNamespace))
	index := sort.SearchStrings(s.info.RootNamespaces, ns)
	if index == len(s.info.RootNamespaces) || s.info.RootNamespaces[index] != ns {
		return nil, fail(http.StatusNotFound, "root namespace %s does not exist", ns)
	}
	if s.inUse(ns) {
		return nil, fail(http.StatusConflict, "root namespace %s is not empty", ns)
	}
	s.info.RootNamespaces = append(s.info.RootNamespaces[:index], s.info.RootNamespaces[index+1:]...)
	for known := range s.namespaces {
		if known == ns || strings.HasPrefix(known, ns+"/") {
			delete(s.namespaces, known)
		}
	}
	return nil, nil
}

func (s *Service) createNamespace(r *http.Request, _ string) (interface{}, error) {
	ns := model.NormalizeNamespace(r.URL.Query().Get(remote.ParamBaseNamespace))
	if _, ok := s.rootOf(ns); !ok {
		return nil, fail(http.StatusBadRequest, "namespace %s is not under a root namespace", ns)
	}
	if _, exists := s.namespaces[ns]; exists {
		return nil, fail(http.StatusConflict, "namespace %s already exists", ns)
	}
	s.addNamespace(ns)
	return nil, nil
}

func (s *Service) deleteNamespace(r *http.Request, _ string) (interface{}, error) {
	ns := model.NormalizeNamespace(r.URL.Query().Get(remote.ParamBaseNamespace))
	if _, exists := s.namespaces[ns]; !exists {
		return nil, fail(http.StatusNotFound, "namespace %s does not exist", ns)
	}
	if root, _ := s.rootOf(ns); root == ns {
		return nil, fail(http.StatusBadRequest, "%s is a root namespace", ns)
	}
	if s.inUse(ns) {
		return nil, fail(http.StatusConflict, "namespace %s is not empty", ns)
	}
	for known := range s.namespaces {
		if strings.HasPrefix(known, ns+"/") {
			return nil, fail(http.StatusConflict, "namespace %s has children", ns)
		}
	}
	delete(s.namespaces, ns)
	return nil, nil
}

func (s *Service) publish(r *http.Request, user string) (interface{}, error) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return nil, fail(http.StatusBadRequest, "malformed form: %v", err)
	}
	file, header, err := r.FormFile(remote.FieldFileContent)
	if err != nil {
		return nil, fail(http.StatusBadRequest, "missing %s: %v", remote.FieldFileContent, err)
	}
	defer file.Close()
	content, err := ioutil.ReadAll(file)
	if err != nil {
		return nil, fail(http.StatusBadRequest, "malformed upload: %v", err)
	}

	meta := model.ItemMetadata{
		Namespace:     r.FormValue(remote.FieldNamespace),
		Filename:      header.Filename,
		LibraryName:   r.FormValue(remote.FieldLibraryName),
		Version:       r.FormValue(remote.FieldVersion),
		VersionScheme: r.FormValue(remote.FieldVersionScheme),
	}
	if raw := r.FormValue(remote.FieldStatus); raw != "" {
		if meta.Status, err = model.ParseStatus(raw); err != nil {
			return nil, fail(http.StatusBadRequest, err.Error())
		}
	}
	if _, err = versionscheme.Lookup(meta.VersionScheme); err != nil {
		return nil, fail(http.StatusBadRequest, err.Error())
	}
	meta = s.complete(meta)
	if _, ok := s.rootOf(meta.Namespace); !ok {
		return nil, fail(http.StatusBadRequest, "namespace %s is not under a root namespace", meta.Namespace)
	}
	if err = s.requireWrite(user, meta); err != nil {
		return nil, err
	}
	key := meta.Identity().Key()
	if _, exists := s.items[key]; exists {
		return nil, fail(http.StatusConflict, "item %s already exists", key)
	}

	s.addNamespace(meta.Namespace)
	rec := &record{meta: meta}
	s.commit(rec, content, user, "initial version")
	s.items[key] = rec
	return s.view(rec), nil
}
