package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/coursegpt-sync/internal/domain"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteLoadEmpty(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	require.NoError(t, s.Ping(context.Background()))

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestSQLiteSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestSQLite(t)

	want := &Snapshot{
		UserID:         "u1",
		SelectedCourse: "k1",
		Users:          []domain.User{{ID: "u1", FirstName: "Ada", Chats: []string{"c1", "c2"}, Favourites: []string{}}},
		Chats: []domain.Chat{
			{ID: "c1", Course: "k1", Messages: []string{"m1", "m2"}, Title: "Limits"},
			{ID: "c2", Course: "k2", Messages: []string{}, Deleted: true},
		},
		Courses: []domain.Course{{ID: "k1", Name: "Calculus", School: "s1", PromptTemplates: []string{"a", "b"}}},
		SavedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	// A second save replaces rather than accumulates.
	next := &Snapshot{UserID: "u1", Chats: []domain.Chat{{ID: "c3", Messages: []string{}}}}
	require.NoError(t, s.Save(ctx, next))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Chats, 1)
	require.Equal(t, "c3", got.Chats[0].ID)
	require.Empty(t, got.Users)
	require.Empty(t, got.SelectedCourse)
}

func TestSQLiteClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestSQLite(t)
	require.NoError(t, s.Save(ctx, &Snapshot{UserID: "u1", Courses: []domain.Course{{ID: "k1"}}}))
	require.NoError(t, s.Clear(ctx))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, snap)
}
