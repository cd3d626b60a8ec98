// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/oneconcern/otarepo/pkg/config"
	"github.com/oneconcern/otarepo/pkg/dlogger"
	"github.com/oneconcern/otarepo/pkg/errors"
	"github.com/oneconcern/otarepo/pkg/localstore"
	"github.com/oneconcern/otarepo/pkg/remote"
	"github.com/oneconcern/otarepo/pkg/repository"
	"github.com/oneconcern/otarepo/pkg/repository/status"
	"github.com/oneconcern/otarepo/pkg/storage"
	"github.com/oneconcern/otarepo/pkg/storage/localfs"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// session holds what a command needs to talk to a repository
type session struct {
	fs       afero.Fs
	registry *prometheus.Registry
	cfg      *config.RepositoryConfig
	client   *repository.Client
}

var current *session

// used to patch over the host filesystem during test
var hostFs = afero.NewOsFs()

func resetSession() {
	current = &session{
		fs:       hostFs,
		registry: prometheus.NewRegistry(),
	}
}

// configFileLocation tells where the configuration is read from, or written to
func configFileLocation() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	if location := os.Getenv(envConfigLocation); location != "" {
		return location
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(config.HomeDir, "otarepo.yaml")
	}
	return filepath.Join(home, config.HomeDir, "otarepo.yaml")
}

// repositoryConfig resolves the configuration from the config file, the environment and flags
func repositoryConfig() (*config.RepositoryConfig, error) {
	if current.cfg != nil {
		return current.cfg, nil
	}
	var cfg config.RepositoryConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, config.ErrInvalidConfig.Wrap(err)
	}
	if err := cfg.Complete(); err != nil {
		return nil, err
	}
	current.cfg = &cfg
	return current.cfg, nil
}

func getLogger(cfg *config.RepositoryConfig) (*zap.Logger, error) {
	return dlogger.GetLogger(cfg.LogLevel, dlogger.Console(true))
}

// repositoryClient builds a client for the configured repository
func repositoryClient(ctx context.Context) (*repository.Client, error) {
	if current.client != nil {
		return current.client, nil
	}
	cfg, err := repositoryConfig()
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	l, err := getLogger(cfg)
	if err != nil {
		return nil, err
	}

	var k *config.Key
	if cfg.EncryptedPassword != "" {
		if k, err = config.ReadKey(current.fs, cfg.KeyFile); err != nil {
			return nil, err
		}
	}
	user, password, err := cfg.Credentials(k)
	if err != nil {
		return nil, err
	}
	maxUpload, err := cfg.MaxUploadBytes()
	if err != nil {
		return nil, err
	}

	opts := []remote.Option{
		remote.Logger(l),
		remote.Timeout(cfg.Timeout),
		remote.RateLimit(cfg.RateLimit, cfg.RateBurst),
		remote.MaxUploadSize(maxUpload),
		remote.Tracer(opentracing.GlobalTracer()),
	}
	if user != "" {
		opts = append(opts, remote.Credentials(user, password))
	}
	if otarepoFlags.root.metrics {
		opts = append(opts, remote.Registerer(current.registry))
	}
	rc, err := remote.New(cfg.Endpoint, opts...)
	if err != nil {
		return nil, err
	}

	if err = current.fs.MkdirAll(cfg.LocalRoot, 0700); err != nil {
		return nil, err
	}
	store, err := localfs.NewAtomic(afero.NewBasePathFs(current.fs, cfg.LocalRoot))
	if err != nil {
		return nil, err
	}
	files, err := localstore.New(ctx,
		storage.Instrument(opentracing.GlobalTracer(), l, store),
		localstore.Logger(l),
		localstore.Root(cfg.LocalRoot),
	)
	if err != nil {
		return nil, err
	}

	current.client = repository.New(cfg.ID, rc, files,
		repository.Logger(l),
		repository.DisplayName(cfg.DisplayName),
	)
	return current.client, nil
}

// mustClient builds a client, and refreshes the root namespaces of the repository
func mustClient(ctx context.Context) *repository.Client {
	c, err := repositoryClient(ctx)
	if err != nil {
		wrapFatalln("failed to initialize repository client", err)
		return nil
	}
	err = c.RefreshRepositoryMetadata(ctx)
	switch {
	case err == nil:
	case errors.Is(err, status.ErrForeignRepository):
		wrapFatalln("wrong endpoint", err)
		return nil
	default:
		// the local copy remains usable when the repository is unreachable
		infoLogger.Printf("warning: could not refresh repository metadata: %v", err)
	}
	return c
}

// printMetrics renders the metrics gathered from remote calls
func printMetrics(w io.Writer) {
	families, err := current.registry.Gather()
	if err != nil {
		wrapFatalln("gathering metrics", err)
		return
	}
	table := uitable.New()
	table.AddRow("METRIC", "LABELS", "VALUE")
	for _, family := range families {
		for _, m := range family.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, pair := range m.GetLabel() {
				labels = append(labels, pair.GetName()+"="+pair.GetValue())
			}
			sort.Strings(labels)
			var value string
			switch {
			case m.GetCounter() != nil:
				value = fmt.Sprintf("%g", m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				value = fmt.Sprintf("%d calls, %.3fs", m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
			case m.GetGauge() != nil:
				value = fmt.Sprintf("%g", m.GetGauge().GetValue())
			default:
				continue
			}
			table.AddRow(family.GetName(), strings.Join(labels, ","), value)
		}
	}
	_, _ = fmt.Fprintln(w, table)
}
