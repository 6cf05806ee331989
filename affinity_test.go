package yoloseg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCoreList(t *testing.T) {

	cores, err := ParseCoreList("6, 0-3,2")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 6}, cores)

	for _, bad := range []string{"", "a", "3-1", "-2", "1-x"} {
		_, err := ParseCoreList(bad)
		assert.Error(t, err, bad)
	}
}

func TestPlatformCores(t *testing.T) {

	cores, err := PlatformCores(" RK3588 ", FastCores)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5, 6, 7}, cores)

	// returned slices are copies
	cores[0] = 99
	again, _ := PlatformCores("rk3588", FastCores)
	assert.Equal(t, 4, again[0])

	_, err = PlatformCores("z80", AllCores)
	assert.Error(t, err)
}

func TestParseCoreType(t *testing.T) {

	ct, err := ParseCoreType("fast")
	require.NoError(t, err)
	assert.Equal(t, FastCores, ct)

	ct, err = ParseCoreType("")
	require.NoError(t, err)
	assert.Equal(t, AllCores, ct)

	_, err = ParseCoreType("medium")
	assert.Error(t, err)
}
