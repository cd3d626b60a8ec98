// Copyright © 2018 One Concern

// Package remotetest runs an in-memory repository service for tests.
//
// The service arbitrates locks, keeps item histories and namespaces, counts
// requests per endpoint and can be told to fail.
package remotetest

import (
	"fmt"
	"hash/crc32"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/otarepo/pkg/model"
	"github.com/oneconcern/otarepo/pkg/remote"
	"github.com/oneconcern/otarepo/pkg/versionscheme"
	"go.uber.org/atomic"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Anonymous is the user recorded for requests without credentials
const Anonymous = "anonymous"

type record struct {
	meta     model.ItemMetadata
	content  []byte
	commits  []model.CommitEntry
	versions [][]byte // content by commit number - 1
}

// Service is a fake repository service listening on a local port
type Service struct {
	*httptest.Server

	mu          sync.Mutex
	info        model.RepositoryInfo
	namespaces  map[string]struct{}
	items       map[string]*record
	users       map[string]string
	permissions map[string]model.Permission
	failures    map[string]int
	whereUsed   map[string][]model.ItemIdentity
	entityUsers map[string][]model.ItemIdentity
	extensions  map[string][]model.EntityInfo
	entities    []model.EntityInfo
	epoch       time.Time
	ticks       int

	calls map[string]*atomic.Int64
	total *atomic.Int64
}

// Option for the fake service
type Option func(*Service)

// WithUser requires basic authentication. Several users may be declared.
func WithUser(user, password string) Option {
	return func(s *Service) {
		s.users[user] = password
	}
}

// WithRootNamespaces declares the initial root namespaces
func WithRootNamespaces(namespaces ...string) Option {
	return func(s *Service) {
		for _, ns := range namespaces {
			s.addRoot(model.NormalizeNamespace(ns))
		}
	}
}

// WithDisplayName of the repository
func WithDisplayName(name string) Option {
	return func(s *Service) {
		s.info.DisplayName = name
	}
}

// New fake service for the repository with some id. The caller closes it.
func New(id string, opts ...Option) *Service {
	s := &Service{
		info:        model.RepositoryInfo{ID: id, DisplayName: id, RootNamespaces: []string{}},
		namespaces:  make(map[string]struct{}),
		items:       make(map[string]*record),
		users:       make(map[string]string),
		permissions: make(map[string]model.Permission),
		failures:    make(map[string]int),
		whereUsed:   make(map[string][]model.ItemIdentity),
		entityUsers: make(map[string][]model.ItemIdentity),
		extensions:  make(map[string][]model.EntityInfo),
		epoch:       time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
		calls:       make(map[string]*atomic.Int64),
		total:       atomic.NewInt64(0),
	}
	for _, apply := range opts {
		apply(s)
	}

	mux := http.NewServeMux()
	for path, h := range s.routes() {
		s.calls[path] = atomic.NewInt64(0)
		mux.HandleFunc(remote.ServicePath+path, s.wrap(path, h))
	}
	s.Server = httptest.NewServer(mux)
	return s
}

// Endpoint of the repository, to configure clients
func (s *Service) Endpoint() string {
	return s.URL
}

// ID of the repository
func (s *Service) ID() string {
	return s.info.ID
}

// Calls received by an endpoint, as in remote.PathLock
func (s *Service) Calls(path string) int64 {
	c, ok := s.calls[path]
	if !ok {
		return 0
	}
	return c.Load()
}

// TotalCalls received by the service
func (s *Service) TotalCalls() int64 {
	return s.total.Load()
}

// ResetCalls sets all request counters back to zero
func (s *Service) ResetCalls() {
	for _, c := range s.calls {
		c.Store(0)
	}
	s.total.Store(0)
}

// Fail makes an endpoint answer with some HTTP status code, until Heal is called
func (s *Service) Fail(path string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = code
}

// Heal removes all injected failures
func (s *Service) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]int)
}

// SetPermission granted on a base namespace and the namespaces below it. The default is write access.
func (s *Service) SetPermission(baseNamespace string, p model.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions[model.NormalizeNamespace(baseNamespace)] = p
}

// Seed an item in the repository.
//
// Missing base namespace, version, status and owning repository are derived.
func (s *Service) Seed(meta model.ItemMetadata, content []byte) model.ItemMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta = s.complete(meta)
	s.addNamespace(meta.Namespace)
	rec := &record{meta: meta}
	s.commit(rec, content, "system", "initial version")
	s.items[meta.Identity().Key()] = rec
	return rec.meta
}

// Update the content of an item, as another client would
func (s *Service) Update(id model.ItemIdentity, content []byte, user string) (model.ItemMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[id.Key()]
	if !ok {
		return model.ItemMetadata{}, false
	}
	s.commit(rec, content, user, "updated")
	return rec.meta, true
}

// ForceLock locks an item on behalf of some user
func (s *Service) ForceLock(id model.ItemIdentity, user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[id.Key()]
	if !ok {
		return false
	}
	rec.meta.LockedBy = user
	rec.meta.LastUpdated = s.now()
	return true
}

// Item as currently stored by the service
func (s *Service) Item(id model.ItemIdentity) (model.ItemMetadata, []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[id.Key()]
	if !ok {
		return model.ItemMetadata{}, nil, false
	}
	return s.view(rec), append([]byte(nil), rec.content...), true
}

// AddWhereUsed declares items depending on another item
func (s *Service) AddWhereUsed(id model.ItemIdentity, dependents ...model.ItemIdentity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whereUsed[id.Key()] = append(s.whereUsed[id.Key()], dependents...)
}

// AddEntity declares an entity defined by an item, with the items referring to it
func (s *Service) AddEntity(entity model.EntityInfo, users ...model.ItemIdentity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = append(s.entities, entity)
	s.entityUsers[entity.EntityName] = append(s.entityUsers[entity.EntityName], users...)
}

// AddExtension declares an entity extending another one
func (s *Service) AddExtension(entityName string, extension model.EntityInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extensions[entityName] = append(s.extensions[entityName], extension)
}

// now is a clock moving one second forward on every call
func (s *Service) now() time.Time {
	s.ticks++
	return s.epoch.Add(time.Duration(s.ticks) * time.Second)
}

func (s *Service) complete(meta model.ItemMetadata) model.ItemMetadata {
	meta.Namespace = model.NormalizeNamespace(meta.Namespace)
	if meta.OwningRepository == "" {
		meta.OwningRepository = s.info.ID
	}
	scheme, err := versionscheme.Lookup(meta.VersionScheme)
	if err == nil {
		if meta.BaseNamespace == "" {
			meta.BaseNamespace = scheme.BaseNamespace(meta.Namespace)
		}
		if meta.Version == "" {
			meta.Version, _ = scheme.VersionIdentifier(meta.Namespace, meta.Filename)
		}
	}
	if meta.BaseNamespace == "" {
		meta.BaseNamespace = meta.Namespace
	}
	meta.BaseNamespace = model.NormalizeNamespace(meta.BaseNamespace)
	if meta.Status == "" {
		meta.Status = model.StatusDraft
	}
	if meta.ItemType == "" {
		meta.ItemType = model.ItemTypeLibrary
	}
	meta.State = ""
	return meta
}

func (s *Service) commit(rec *record, content []byte, user, remarks string) {
	rec.content = append([]byte(nil), content...)
	rec.versions = append(rec.versions, rec.content)
	rec.meta.CRC = int64(crc32Of(rec.content))
	rec.meta.LastUpdated = s.now()
	rec.commits = append(rec.commits, model.CommitEntry{
		CommitNumber: len(rec.versions),
		EffectiveOn:  rec.meta.LastUpdated,
		User:         user,
		Remarks:      remarks,
	})
}

func crc32Of(content []byte) uint32 {
	return crc32.ChecksumIEEE(content)
}

// view renders a record as sent to clients
func (s *Service) view(rec *record) model.ItemMetadata {
	meta := rec.meta
	if meta.LockedBy != "" {
		meta.State = model.StateManagedLocked
	} else {
		meta.State = model.StateManagedUnlocked
	}
	return meta
}

func (s *Service) addRoot(ns string) {
	for _, root := range s.info.RootNamespaces {
		if root == ns {
			return
		}
	}
	s.info.RootNamespaces = append(s.info.RootNamespaces, ns)
	sort.Strings(s.info.RootNamespaces)
	s.namespaces[ns] = struct{}{}
}

func (s *Service) rootOf(ns string) (string, bool) {
	for _, root := range s.info.RootNamespaces {
		if ns == root || strings.HasPrefix(ns, root+"/") {
			return root, true
		}
	}
	return "", false
}

// addNamespace registers a namespace and its ancestors below its root
func (s *Service) addNamespace(ns string) {
	root, ok := s.rootOf(ns)
	if !ok {
		s.addRoot(ns)
		return
	}
	current := root
	for _, segment := range strings.Split(strings.TrimPrefix(ns, root), "/") {
		if segment == "" {
			continue
		}
		current += "/" + segment
		s.namespaces[current] = struct{}{}
	}
}

func (s *Service) permission(ns string) model.Permission {
	best, granted := -1, model.PermissionWrite
	for prefix, p := range s.permissions {
		if (ns == prefix || strings.HasPrefix(ns, prefix+"/")) && len(prefix) > best {
			best, granted = len(prefix), p
		}
	}
	return granted
}

// httpError is answered with its status code and message
type httpError struct {
	code int
	msg  string
}

func (e *httpError) Error() string {
	return e.msg
}

func fail(code int, msg string, args ...interface{}) error {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &httpError{code: code, msg: msg}
}

type handler func(r *http.Request, user string) (interface{}, error)

func (s *Service) wrap(path string, h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.calls[path].Inc()
		s.total.Inc()

		s.mu.Lock()
		defer s.mu.Unlock()

		if code, ok := s.failures[path]; ok {
			writeError(w, code, "injected failure")
			return
		}
		user, ok := s.authenticate(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		payload, err := h(r, user)
		if err != nil {
			if he, ok := err.(*httpError); ok {
				writeError(w, he.code, he.msg)
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		switch p := payload.(type) {
		case nil:
			w.WriteHeader(http.StatusOK)
		case []byte:
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(p)
		default:
			buf, err := json.Marshal(p)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(buf)
		}
	}
}

func (s *Service) authenticate(r *http.Request) (string, bool) {
	user, password, hasAuth := r.BasicAuth()
	if len(s.users) == 0 {
		if !hasAuth || user == "" {
			return Anonymous, true
		}
		return user, true
	}
	expected, known := s.users[user]
	return user, hasAuth && known && expected == password
}

func writeError(w http.ResponseWriter, code int, msg string) {
	buf, _ := json.Marshal(remote.ErrorResponse{Message: msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(buf)
}

func decode(r *http.Request, target interface{}) error {
	raw, err := ioutil.ReadAll(r.Body)
	if err != nil {
		return fail(http.StatusBadRequest, err.Error())
	}
	if err = json.Unmarshal(raw, target); err != nil {
		return fail(http.StatusBadRequest, "malformed request: %v", err)
	}
	return nil
}

func boolParam(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}
