package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/dealscope/pkg/domain"
)

func TestStore_UpsertSource(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	src := &domain.Source{
		Kind:         domain.SourceFeed,
		Name:         "travel-blog",
		Active:       true,
		SyncInterval: 60,
		Config:       `{"url":"https://blog.example.com/feed.xml"}`,
	}
	require.NoError(t, s.UpsertSource(ctx, src))
	firstID := src.ID
	require.NotZero(t, firstID)

	// same (kind, name) updates in place, id is stable
	src.SyncInterval = 30
	src.Config = `{"url":"https://blog.example.com/deals.xml"}`
	require.NoError(t, s.UpsertSource(ctx, src))
	assert.Equal(t, firstID, src.ID)

	got, err := s.GetSource(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, 30, got.SyncInterval)
	assert.Contains(t, got.Config, "deals.xml")

	// same name under a different kind is a separate source
	other := &domain.Source{Kind: domain.SourceAPI, Name: "travel-blog", Active: true, SyncInterval: 60, Config: "{}"}
	require.NoError(t, s.UpsertSource(ctx, other))
	assert.NotEqual(t, firstID, other.ID)

	sources, err := s.GetSources(ctx)
	require.NoError(t, err)
	assert.Len(t, sources, 2)
}

func TestStore_GetSourcesDue(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	neverSynced := makeTestSource(t, s, "never-synced")

	staleSource := makeTestSource(t, s, "stale")
	require.NoError(t, s.UpdateSourceSynced(ctx, staleSource.ID, now.Add(-2*time.Hour)))

	freshSource := makeTestSource(t, s, "fresh")
	require.NoError(t, s.UpdateSourceSynced(ctx, freshSource.ID, now.Add(-10*time.Minute)))

	inactive := &domain.Source{Kind: domain.SourceFeed, Name: "inactive", Active: false, SyncInterval: 60, Config: "{}"}
	require.NoError(t, s.CreateSource(ctx, inactive))

	due, err := s.GetSourcesDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)

	names := map[string]bool{}
	for _, src := range due {
		names[src.Name] = true
	}
	assert.True(t, names[neverSynced.Name])
	assert.True(t, names[staleSource.Name])
	assert.False(t, names[freshSource.Name])
	assert.False(t, names[inactive.Name])
}

func TestStore_UpdateSourceError(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	src := makeTestSource(t, s, "flaky")

	now := time.Now()
	require.NoError(t, s.UpdateSourceError(ctx, src.ID, now, "connection refused"))
	require.NoError(t, s.UpdateSourceError(ctx, src.ID, now, "timeout"))

	got, err := s.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, "timeout", got.LastError)
	assert.Equal(t, 2, got.ErrorCount)
	require.NotNil(t, got.LastSyncAt, "sync time advances even on failure")

	// a broken source is not due right after the failed attempt
	due, err := s.GetSourcesDue(ctx, now)
	require.NoError(t, err)
	for _, d := range due {
		assert.NotEqual(t, src.ID, d.ID)
	}

	// success clears the error state
	require.NoError(t, s.UpdateSourceSynced(ctx, src.ID, now))
	got, err = s.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LastError)
	assert.Zero(t, got.ErrorCount)
}
