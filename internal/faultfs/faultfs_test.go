package faultfs

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaultFs(t *testing.T) {
	fs := New(afero.NewMemMapFs(), func(name string) bool {
		return strings.HasSuffix(name, ".otm")
	})

	require.NoError(t, afero.WriteFile(fs, "a.otm", []byte("ok"), 0600))

	fs.Arm()
	err := afero.WriteFile(fs, "b.otm", []byte("ko"), 0600)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInjected))

	_, err = fs.Create("c.otm")
	assert.True(t, errors.Is(err, ErrInjected))

	err = fs.Rename("a.otm", "d.otm")
	assert.True(t, errors.Is(err, ErrInjected))

	require.NoError(t, afero.WriteFile(fs, "e.yaml", []byte("ok"), 0600))

	f, err := fs.OpenFile("a.otm", os.O_RDONLY, 0)
	require.NoError(t, err, "reads never fail")
	require.NoError(t, f.Close())

	fs.Disarm()
	require.NoError(t, afero.WriteFile(fs, "b.otm", []byte("ok"), 0600))

	assert.Equal(t, 3, fs.Failures())
	assert.Contains(t, fs.Written(), "e.yaml")
	assert.Contains(t, fs.Name(), "faultfs:")
}

func TestLatency(t *testing.T) {
	fs := New(afero.NewMemMapFs(), nil)
	fs.SetLatency(20 * time.Millisecond)

	start := time.Now()
	require.NoError(t, afero.WriteFile(fs, "slow.otm", []byte("ok"), 0600))
	assert.True(t, time.Since(start) >= 20*time.Millisecond)
	assert.Zero(t, fs.Failures())
}
