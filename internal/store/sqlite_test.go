package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/agent-notify/internal/model"
	"github.com/nhle/agent-notify/internal/store"
	"github.com/nhle/agent-notify/tests/testutil"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	items := []model.Notification{
		{ID: "2", Type: model.TypePaper, Title: "paper", Message: "m",
			Data: map[string]any{"url": "https://example.com"}, CreatedAt: created},
		{ID: "1", Type: model.TypeEmail, Title: "mail", Read: true, CreatedAt: created.Add(-time.Hour)},
	}

	require.NoError(t, s.SaveSnapshot(ctx, items, 1))

	got, unread, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "https://example.com", got[0].URL())
	assert.True(t, got[0].CreatedAt.Equal(created))
	assert.True(t, got[1].Read)
}

func TestSnapshot_SaveReplaces(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, []model.Notification{{ID: "1"}, {ID: "2"}}, 2))
	require.NoError(t, s.SaveSnapshot(ctx, nil, 0))

	got, unread, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, unread)
}

func TestSnapshot_EmptyDatabase(t *testing.T) {
	s := testutil.NewTestStore(t)

	got, unread, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, unread)
}

func TestSettings(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.GetSetting(ctx, "permission")
	assert.ErrorIs(t, err, store.ErrSettingNotFound)

	require.NoError(t, s.SetSetting(ctx, "permission", "granted"))
	require.NoError(t, s.SetSetting(ctx, "permission", "denied"))

	v, err := s.GetSetting(ctx, "permission")
	require.NoError(t, err)
	assert.Equal(t, "denied", v)

	require.NoError(t, s.DeleteSetting(ctx, "permission"))
	require.NoError(t, s.DeleteSetting(ctx, "permission"))
	_, err = s.GetSetting(ctx, "permission")
	assert.ErrorIs(t, err, store.ErrSettingNotFound)
}

func TestNewSQLiteStore_File(t *testing.T) {
	path := t.TempDir() + "/nested/agentnotify.db"
	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SetSetting(context.Background(), "k", "v"))
	require.NoError(t, s.Close())

	// Reopening runs no migration twice.
	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	v, err := s.GetSetting(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}
