package streamdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPUCoreMask(t *testing.T) {
	assert.Equal(t, uintptr(0b11110000), CPUCoreMask([]int{4, 5, 6, 7}))
	assert.Equal(t, uintptr(0), CPUCoreMask(nil))
}

func TestParseCPUList(t *testing.T) {

	cores, err := ParseCPUList("0, 4-7")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4, 5, 6, 7}, cores)

	cores, err = ParseCPUList("")
	require.NoError(t, err)
	assert.Empty(t, cores)

	for _, bad := range []string{"a", "3-1", "-1", "1-x", "999"} {
		_, err := ParseCPUList(bad)
		assert.Error(t, err, bad)
	}
}
