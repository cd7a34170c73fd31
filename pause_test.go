package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPauseCmd_Structure(t *testing.T) {
	t.Parallel()

	cmd := newPauseCmd()
	assert.Equal(t, "pause", cmd.Use)
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Flags().Lookup("root"))
}

func TestNewResumeCmd_Structure(t *testing.T) {
	t.Parallel()

	cmd := newResumeCmd()
	assert.Equal(t, "resume", cmd.Use)
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Flags().Lookup("root"))
}

func TestPausedLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "paused", pausedLabel(true))
	assert.Equal(t, "resumed", pausedLabel(false))
}
