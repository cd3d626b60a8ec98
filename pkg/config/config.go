// Copyright © 2018 One Concern

// Package config describes how to reach a remote repository and where to keep its local copy.
//
// Configurations are YAML documents. Missing settings are completed with defaults,
// and passwords may be stored sealed with a local secret key.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"time"

	units "github.com/docker/go-units"
	"github.com/imdario/mergo"
	"github.com/oneconcern/otarepo/pkg/dlogger"
	"github.com/spf13/afero"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"
)

const (
	// DefaultTimeout of remote calls
	DefaultTimeout = 30 * time.Second

	// DefaultMaxUpload is the default limit on uploaded contents
	DefaultMaxUpload = "64MiB"

	// HomeDir is the folder holding the CLI settings, relative to the user's home
	HomeDir = ".otarepo"
)

// RepositoryConfig describes a remote repository and its local copy
type RepositoryConfig struct {
	ID                string        `json:"id" yaml:"id"`
	DisplayName       string        `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Endpoint          string        `json:"endpoint" yaml:"endpoint"`
	User              string        `json:"user,omitempty" yaml:"user,omitempty"`
	Password          string        `json:"password,omitempty" yaml:"password,omitempty"`
	EncryptedPassword string        `json:"encryptedPassword,omitempty" yaml:"encryptedPassword,omitempty"`
	KeyFile           string        `json:"keyFile,omitempty" yaml:"keyFile,omitempty"`
	LocalRoot         string        `json:"localRoot,omitempty" yaml:"localRoot,omitempty"`
	LogLevel          string        `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	Timeout           time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RateLimit         float64       `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"` // requests per second, 0 for none
	RateBurst         int           `json:"rateBurst,omitempty" yaml:"rateBurst,omitempty"`
	MaxUpload         string        `json:"maxUpload,omitempty" yaml:"maxUpload,omitempty"` // e.g. "10MiB", "0" for no limit
}

// Defaults for settings left empty
func Defaults() RepositoryConfig {
	base := baseDir()
	return RepositoryConfig{
		KeyFile:   filepath.Join(base, "secret.key"),
		LogLevel:  dlogger.LogLevelInfo,
		Timeout:   DefaultTimeout,
		RateBurst: 1,
		MaxUpload: DefaultMaxUpload,
	}
}

func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return HomeDir
	}
	return filepath.Join(home, HomeDir)
}

// Parse a YAML configuration, then complete it with defaults
func Parse(data []byte) (*RepositoryConfig, error) {
	var c RepositoryConfig
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, ErrInvalidConfig.Wrap(err)
	}
	if err := c.Complete(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load a configuration file
func Load(fs afero.Fs, path string) (*RepositoryConfig, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Complete the configuration with defaults. The local root defaults to a folder named after the repository.
func (c *RepositoryConfig) Complete() error {
	if err := mergo.Merge(c, Defaults()); err != nil {
		return ErrInvalidConfig.Wrap(err)
	}
	if c.LocalRoot == "" && c.ID != "" {
		c.LocalRoot = filepath.Join(baseDir(), "repositories", c.ID)
	}
	if c.DisplayName == "" {
		c.DisplayName = c.ID
	}
	return nil
}

// Validate the settings required to reach a repository
func (c RepositoryConfig) Validate() error {
	if c.ID == "" {
		return ErrInvalidConfig.Wrapf("a repository id is required")
	}
	if c.Endpoint == "" {
		return ErrInvalidConfig.Wrapf("an endpoint is required for repository %q", c.ID)
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return ErrInvalidConfig.Wrap(err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidConfig.Wrapf("endpoint %q is not an http(s) URL", c.Endpoint)
	}
	if c.LogLevel != dlogger.LogLevelNone {
		var lvl zapcore.Level
		if err = lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return ErrInvalidConfig.Wrap(err)
		}
	}
	if c.Timeout < 0 || c.RateLimit < 0 {
		return ErrInvalidConfig.Wrapf("timeout and rate limit may not be negative")
	}
	if _, err = c.MaxUploadBytes(); err != nil {
		return err
	}
	if c.Password != "" && c.EncryptedPassword != "" {
		return ErrInvalidConfig.Wrapf("password and encryptedPassword are exclusive")
	}
	return nil
}

// MaxUploadBytes is the limit on uploaded contents, in bytes. Zero means no limit.
func (c RepositoryConfig) MaxUploadBytes() (int64, error) {
	if c.MaxUpload == "" || c.MaxUpload == "0" {
		return 0, nil
	}
	size, err := units.RAMInBytes(c.MaxUpload)
	if err != nil {
		return 0, ErrInvalidConfig.Wrap(err)
	}
	if size < 0 {
		return 0, ErrInvalidConfig.Wrapf("negative upload size %q", c.MaxUpload)
	}
	return size, nil
}

// Marshal the configuration as YAML
func (c RepositoryConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save the configuration to a file, readable by its owner only
func (c RepositoryConfig) Save(fs afero.Fs, path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err = fs.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0600)
}

// Redacted copy of the configuration, safe to display
func (c RepositoryConfig) Redacted() RepositoryConfig {
	if c.Password != "" {
		c.Password = redacted
	}
	if c.EncryptedPassword != "" {
		c.EncryptedPassword = redacted
	}
	return c
}

const redacted = "********"
