package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	buckets, err := s2.Buckets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{BucketOpen, BucketDone}, buckets)
}

func TestMarkRead(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkRead(ctx, "42"))
	require.NoError(t, s.MarkRead(ctx, "42")) // idempotent
	require.NoError(t, s.MarkRead(ctx, "99"))

	read, err := s.ReadSet(ctx)
	require.NoError(t, err)
	assert.True(t, read["42"])
	assert.True(t, read["99"])
	assert.False(t, read["7"])
}

func TestToggleDone(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	done, err := s.ToggleDone(ctx, "42")
	require.NoError(t, err)
	assert.True(t, done)

	set, err := s.DoneSet(ctx)
	require.NoError(t, err)
	assert.True(t, set["42"])

	done, err = s.ToggleDone(ctx, "42")
	require.NoError(t, err)
	assert.False(t, done)

	set, err = s.DoneSet(ctx)
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestBuckets(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddBucket(ctx, "work"))
	require.NoError(t, s.AddBucket(ctx, "work")) // idempotent

	buckets, err := s.Buckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{BucketOpen, BucketDone, "work"}, buckets)

	assert.Error(t, s.AddBucket(ctx, ""))
}

func TestAssignBucket(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddBucket(ctx, "work"))

	require.NoError(t, s.AssignBucket(ctx, "42", "work"))

	got, err := s.Assignments(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"42": "work"}, got)

	// Back to open removes the explicit row.
	require.NoError(t, s.AssignBucket(ctx, "42", BucketOpen))
	got, err = s.Assignments(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAssignBucketUnknown(t *testing.T) {
	s := openTestStore(t)
	err := s.AssignBucket(context.Background(), "42", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bucket")
}

func TestFingerprints(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetFingerprint(ctx, "42", "f1"))
	require.NoError(t, s.SetFingerprint(ctx, "42", "f2")) // latest wins
	require.NoError(t, s.SetFingerprint(ctx, "99", "f9"))

	got, err := s.Fingerprints(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"42": "f2", "99": "f9"}, got)
}

func TestFingerprintsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SetFingerprint(ctx, "42", "f1"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Fingerprints(ctx)
	require.NoError(t, err)
	assert.Equal(t, "f1", got["42"])
}
