package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailableDiskSpaceReportsNonZeroForRealPath(t *testing.T) {
	free, err := availableDiskSpace(t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}

func TestAvailableDiskSpaceErrorsOnMissingPath(t *testing.T) {
	_, err := availableDiskSpace("/this/path/does/not/exist/at/all")
	assert.Error(t, err)
}
