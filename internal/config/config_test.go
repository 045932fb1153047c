package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	d, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15, d.ReadTimeout)
	assert.Equal(t, 15, d.ConnectTimeout)
	assert.Equal(t, 300, d.StallTimeout)
	assert.Equal(t, 131072, d.BufferSize)
	assert.Equal(t, 8, d.ProgressQueue)
	assert.Equal(t, "gmcurl/1", d.UserAgent)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("GMCURL_READ_TIMEOUT", "60")
	t.Setenv("GMCURL_BUFFER_SIZE", "4096")
	t.Setenv("GMCURL_USER_AGENT", "probe/2")

	d, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60, d.ReadTimeout)
	assert.Equal(t, 4096, d.BufferSize)
	assert.Equal(t, 15, d.ConnectTimeout, "untouched values keep their defaults")
	assert.Equal(t, "probe/2", d.UserAgent)
}

func TestLoadOrDefaultRecovers(t *testing.T) {
	t.Setenv("GMCURL_READ_TIMEOUT", "not-a-number")

	d := LoadOrDefault()
	require.NotNil(t, d)
	assert.Equal(t, 15, d.ReadTimeout)
	assert.Equal(t, 131072, d.BufferSize)
}
