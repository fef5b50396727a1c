package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("v1.4.2")
	require.NoError(t, err)
	assert.Equal(t, "1.4.2", v.String())

	v, err = parseVersion("0.9.0-rc.1")
	require.NoError(t, err)
	assert.Equal(t, "rc.1", v.Prerelease())

	for _, dev := range []string{"", "dev", "unknown", "main-abc123"} {
		_, err := parseVersion(dev)
		assert.Error(t, err, dev)
	}
}

func TestString(t *testing.T) {
	assert.Contains(t, String(), Version)
	assert.Contains(t, String(), CommitSHA)
}
