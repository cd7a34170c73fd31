package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennanwright/syncd/internal/catalog"
	"github.com/brennanwright/syncd/internal/ignore"
)

func TestRootHealthState_BadPath(t *testing.T) {
	t.Parallel()

	r := catalog.SyncRoot{LocalPath: "/nonexistent/path/does/not/exist"}
	assert.Equal(t, "unhealthy", rootHealthState(r))
}

func TestRootHealthState_Healthy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	dirID, err := ignore.StatDirID(dir)
	require.NoError(t, err)

	r := catalog.SyncRoot{
		LocalPath: dir,
		DeviceID:  deviceIDString(dirID),
		Inode:     dirID.Inode,
	}
	assert.Equal(t, "healthy", rootHealthState(r))
}

func TestRootHealthState_InodeMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	dirID, err := ignore.StatDirID(dir)
	require.NoError(t, err)

	r := catalog.SyncRoot{
		LocalPath: dir,
		DeviceID:  deviceIDString(dirID),
		Inode:     dirID.Inode + 1,
	}
	assert.Equal(t, "unhealthy", rootHealthState(r))
}

func TestNewStatusCmd_Structure(t *testing.T) {
	t.Parallel()

	cmd := newStatusCmd()
	assert.Equal(t, "status", cmd.Name())
	assert.NotEmpty(t, cmd.Short)
	assert.NotNil(t, cmd.RunE)
}

func TestPrintStatusText_DoesNotPanicWhenPaused(t *testing.T) {
	t.Parallel()

	statuses := []rootStatus{
		{LocalPath: "/a", SyncType: "two-way", State: "healthy", Paused: true, PendingTasks: 0},
	}

	assert.NotPanics(t, func() { printStatusText(statuses) })
}
