package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brennanwright/syncd/internal/settings"
)

func TestIsRecognizedSettingKey(t *testing.T) {
	t.Parallel()

	assert.True(t, isRecognizedSettingKey(settings.KeyUseSSL))
	assert.True(t, isRecognizedSettingKey(settings.KeyAPIServer))
	assert.False(t, isRecognizedSettingKey("not_a_real_key"))
}

func TestNewSettingsCmd_Structure(t *testing.T) {
	t.Parallel()

	cmd := newSettingsCmd()
	assert.Equal(t, "settings", cmd.Name())

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}

	assert.Contains(t, names, "dump")
	assert.Contains(t, names, "get")
	assert.Contains(t, names, "set")
}
