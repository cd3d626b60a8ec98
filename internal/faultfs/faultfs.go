// Package faultfs wraps an afero.Fs to inject failures on writes, for tests
// exercising the rollback of local changesets
package faultfs

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// ErrInjected is the error returned by injected failures
var ErrInjected = errors.New("injected file system failure")

// Matcher decides if a write to some file should fail
type Matcher func(name string) bool

// Fs is an afero.Fs which fails writes to files selected by a matcher, once armed
type Fs struct {
	afero.Fs

	mx      sync.Mutex
	armed   bool
	match   Matcher
	failed  int
	written []string
	latency time.Duration
}

// New fault injecting file system
func New(base afero.Fs, match Matcher) *Fs {
	return &Fs{Fs: base, match: match}
}

// Arm enables failure injection
func (f *Fs) Arm() {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.armed = true
}

// Disarm disables failure injection
func (f *Fs) Disarm() {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.armed = false
}

// SetLatency slows down every write by some duration
func (f *Fs) SetLatency(d time.Duration) {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.latency = d
}

// Failures counts the injected failures
func (f *Fs) Failures() int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.failed
}

// Written lists the files opened for writing, successfully or not
func (f *Fs) Written() []string {
	f.mx.Lock()
	defer f.mx.Unlock()
	return append([]string(nil), f.written...)
}

func (f *Fs) shouldFail(name string) bool {
	f.mx.Lock()
	latency := f.latency
	f.mx.Unlock()
	if latency > 0 {
		time.Sleep(latency)
	}

	f.mx.Lock()
	defer f.mx.Unlock()
	f.written = append(f.written, name)
	if f.armed && f.match != nil && f.match(name) {
		f.failed++
		return true
	}
	return false
}

// Create fails for matching files when armed
func (f *Fs) Create(name string) (afero.File, error) {
	if f.shouldFail(name) {
		return nil, &os.PathError{Op: "create", Path: name, Err: ErrInjected}
	}
	return f.Fs.Create(name)
}

// OpenFile fails for matching files opened for writing when armed
func (f *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE) != 0 && f.shouldFail(name) {
		return nil, &os.PathError{Op: "open", Path: name, Err: ErrInjected}
	}
	return f.Fs.OpenFile(name, flag, perm)
}

// Rename fails for matching targets when armed
func (f *Fs) Rename(oldname, newname string) error {
	if f.shouldFail(newname) {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: ErrInjected}
	}
	return f.Fs.Rename(oldname, newname)
}

// Name of this file system
func (f *Fs) Name() string {
	return "faultfs:" + f.Fs.Name()
}
