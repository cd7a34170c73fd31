package apiproto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brennanwright/syncd/internal/apierr"
)

func TestClassify_Success(t *testing.T) {
	assert.NoError(t, Classify("upload_save", 0))
}

func TestClassify_Relogin(t *testing.T) {
	err := Classify("upload_save", ErrReloginRequired)
	assert.True(t, errors.Is(err, apierr.Permanent))
}

func TestClassify_Quota(t *testing.T) {
	err := Classify("uploadfile", ErrQuotaExceeded)
	assert.True(t, errors.Is(err, apierr.DiskFull))
}

func TestClassify_PermanentCodes(t *testing.T) {
	for code := range permanentCodes {
		err := Classify("renamefile", code)
		assert.True(t, errors.Is(err, apierr.Permanent), "code %d", code)
	}
}

func TestClassify_DefaultTemporary(t *testing.T) {
	err := Classify("createfolderifnotexists", 9999)
	assert.True(t, errors.Is(err, apierr.Temporary))
}
