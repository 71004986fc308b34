package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestStore_PutGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	a := &Artifact{
		Filename:    "db-2026-08-30.sql.enc",
		Category:    "backups",
		Checksum:    strPtr("aa11"),
		IsEncrypted: true,
		FileSize:    4096,
		Status:      StatusCompleted,
		CreatedAt:   created,
	}
	require.NoError(t, s.Put(ctx, a))

	got, err := s.Get(ctx, a.Filename)
	require.NoError(t, err)
	assert.Equal(t, a.Filename, got.Filename)
	assert.Equal(t, a.Checksum, got.Checksum)
	assert.True(t, got.IsEncrypted)
	assert.Equal(t, int64(4096), got.FileSize)
	assert.Nil(t, got.Verified)
	assert.Nil(t, got.VerifiedAt)
	assert.True(t, got.CreatedAt.Equal(created))
}

func TestStore_GetNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "missing.tar")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListCompleted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &Artifact{Filename: "done.tar", Status: StatusCompleted}))
	require.NoError(t, s.Put(ctx, &Artifact{Filename: "running.tar", Status: StatusRunning}))
	require.NoError(t, s.Put(ctx, &Artifact{Filename: "failed.tar", Status: StatusFailed}))

	completed, err := s.ListCompleted(ctx)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "done.tar", completed[0].Filename)
}

func TestStore_ListPending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	verified := true

	// Pending: completed, has checksum, never verified
	require.NoError(t, s.Put(ctx, &Artifact{
		Filename: "older.tar", Status: StatusCompleted,
		Checksum: strPtr("aa"), CreatedAt: base,
	}))
	require.NoError(t, s.Put(ctx, &Artifact{
		Filename: "newer.tar", Status: StatusCompleted,
		Checksum: strPtr("bb"), CreatedAt: base.Add(24 * time.Hour),
	}))
	// Excluded: no checksum
	require.NoError(t, s.Put(ctx, &Artifact{
		Filename: "nochecksum.tar", Status: StatusCompleted, CreatedAt: base,
	}))
	// Excluded: already verified
	require.NoError(t, s.Put(ctx, &Artifact{
		Filename: "checked.tar", Status: StatusCompleted,
		Checksum: strPtr("cc"), Verified: &verified, CreatedAt: base,
	}))
	// Excluded: not completed
	require.NoError(t, s.Put(ctx, &Artifact{
		Filename: "running.tar", Status: StatusRunning,
		Checksum: strPtr("dd"), CreatedAt: base,
	}))

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	// Newest first
	assert.Equal(t, "newer.tar", pending[0].Filename)
	assert.Equal(t, "older.tar", pending[1].Filename)
}

func TestStore_UpdateVerification(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &Artifact{
		Filename: "a.tar", Status: StatusCompleted, Checksum: strPtr("aa"),
	}))

	// Timestamp-only update leaves the verified flag untouched
	first := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateVerification(ctx, "a.tar", nil, first))

	got, err := s.Get(ctx, "a.tar")
	require.NoError(t, err)
	assert.Nil(t, got.Verified)
	require.NotNil(t, got.VerifiedAt)
	assert.True(t, got.VerifiedAt.Equal(first))

	// Outcome update overwrites both; no history accumulates
	ok := true
	second := first.Add(time.Hour)
	require.NoError(t, s.UpdateVerification(ctx, "a.tar", &ok, second))

	got, err = s.Get(ctx, "a.tar")
	require.NoError(t, err)
	require.NotNil(t, got.Verified)
	assert.True(t, *got.Verified)
	assert.True(t, got.VerifiedAt.Equal(second))

	failed := false
	third := second.Add(time.Hour)
	require.NoError(t, s.UpdateVerification(ctx, "a.tar", &failed, third))

	got, err = s.Get(ctx, "a.tar")
	require.NoError(t, err)
	require.NotNil(t, got.Verified)
	assert.False(t, *got.Verified)
	assert.True(t, got.VerifiedAt.Equal(third))
}

func TestStore_UpdateVerificationNotFound(t *testing.T) {
	s := openTestStore(t)

	err := s.UpdateVerification(context.Background(), "missing.tar", nil, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}
