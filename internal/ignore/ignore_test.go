package ignore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeStat(table map[string]DirID) StatFunc {
	return func(path string) (DirID, error) {
		id, ok := table[path]
		if !ok {
			return DirID{}, fmt.Errorf("no such path: %s", path)
		}

		return id, nil
	}
}

func TestEngine_NameFilter_GlobMatch(t *testing.T) {
	e := New(fakeStat(nil))
	e.ReloadNamePatterns("*.tmp;.git;node_modules")

	assert.True(t, e.IsNameIgnored("build.tmp"))
	assert.True(t, e.IsNameIgnored(".git"))
	assert.True(t, e.IsNameIgnored("node_modules"))
	assert.False(t, e.IsNameIgnored("main.go"))
}

func TestEngine_NameFilter_ReloadIdempotentWhenUnchanged(t *testing.T) {
	e := New(fakeStat(nil))
	e.ReloadNamePatterns("*.tmp")
	e.ReloadNamePatterns("*.tmp")

	assert.True(t, e.IsNameIgnored("build.tmp"))
	assert.Equal(t, []string{"*.tmp"}, e.namePatterns)
}

func TestEngine_PathFilter_ResolvesConfiguredDirs(t *testing.T) {
	table := map[string]DirID{
		"/home/user/.cache": {DeviceID: 1, Inode: 100},
		"/home/user/tmp":    {DeviceID: 1, Inode: 200},
	}

	e := New(fakeStat(table))

	err := e.ReloadPathIgnores("/home/user/.cache;/home/user/tmp")
	require.NoError(t, err)

	assert.True(t, e.IsPathIgnored(DirID{DeviceID: 1, Inode: 100}, nil))
	assert.True(t, e.IsPathIgnored(DirID{DeviceID: 1, Inode: 200}, nil))
	assert.False(t, e.IsPathIgnored(DirID{DeviceID: 1, Inode: 999}, nil))
}

func TestEngine_PathFilter_AncestryMatch(t *testing.T) {
	table := map[string]DirID{"/home/user/.cache": {DeviceID: 1, Inode: 100}}

	e := New(fakeStat(table))
	require.NoError(t, e.ReloadPathIgnores("/home/user/.cache"))

	ancestors := []DirID{{DeviceID: 1, Inode: 100}}
	assert.True(t, e.IsPathIgnored(DirID{DeviceID: 1, Inode: 555}, ancestors))
}

func TestEngine_PathFilter_UnstatableDirSkippedNotError(t *testing.T) {
	e := New(fakeStat(nil))

	err := e.ReloadPathIgnores("/does/not/exist")
	require.NoError(t, err)
	assert.False(t, e.IsPathIgnored(DirID{}, nil))
}
