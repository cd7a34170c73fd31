package settings

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennanwright/syncd/internal/catalog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cat, err := catalog.Open(context.Background(), path, logger)
	require.NoError(t, err)

	t.Cleanup(func() { _ = cat.Close() })

	return New(cat)
}

func TestStore_UseSSL_DefaultsTrueWhenUnset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v, err := s.UseSSL(ctx)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestStore_UseSSL_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetUseSSL(ctx, false))

	v, err := s.UseSSL(ctx)
	require.NoError(t, err)
	assert.False(t, v)
}

func TestStore_MaxUploadSpeed_DefaultsToAuto(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v, err := s.MaxUploadSpeed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestStore_MaxUploadSpeed_RoundTripNegativeMeansUnlimited(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetMaxUploadSpeed(ctx, -1))

	v, err := s.MaxUploadSpeed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v)
}

func TestStore_IgnorePatterns_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetIgnorePatterns(ctx, "*.tmp;.git"))

	v, err := s.IgnorePatterns(ctx)
	require.NoError(t, err)
	assert.Equal(t, "*.tmp;.git", v)
}

func TestStore_MinLocalFreeSpace_DefaultAndRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v, err := s.MinLocalFreeSpace(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultMinLocalFreeSpace, v)

	require.NoError(t, s.SetMinLocalFreeSpace(ctx, 5<<30))

	v, err = s.MinLocalFreeSpace(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5<<30), v)
}

func TestStore_Dump_ReflectsOnlyPersistedKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetAPIServer(ctx, "api.example.com"))

	dump, err := s.Dump(ctx)
	require.NoError(t, err)
	assert.Equal(t, "api.example.com", dump[KeyAPIServer])
	_, maxUploadPersisted := dump[KeyMaxUploadSpeed]
	assert.False(t, maxUploadPersisted, "unset keys are absent, not defaulted, in a raw dump")
}

func TestSyncRootStatus_String(t *testing.T) {
	assert.Equal(t, "healthy", StatusHealthy.String())
	assert.Equal(t, "quota-full", StatusQuotaFull.String())
	assert.Equal(t, "too-many-moves", StatusTooManyMoves.String())
	assert.Equal(t, "unhealthy", StatusUnhealthy.String())
}
