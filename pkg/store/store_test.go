package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/dealscope/pkg/domain"
)

// setupTestStore creates a store backed by a temp sqlite file
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_txlock=immediate", filepath.Join(t.TempDir(), "test.db"))
	s, err := New(context.Background(), Config{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck // test cleanup

	return s
}

// makeTestSource creates a source for tests that need a foreign key target
func makeTestSource(t *testing.T, s *Store, name string) *domain.Source {
	t.Helper()

	src := &domain.Source{
		Kind:         domain.SourceCatalog,
		Name:         name,
		Active:       true,
		SyncInterval: 60,
		Config:       `{"url":"deals.csv"}`,
	}
	require.NoError(t, s.CreateSource(context.Background(), src))
	require.NotZero(t, src.ID)
	return src
}

// makeTestDeal inserts a deal with a unique dedup key derived from the title
func makeTestDeal(t *testing.T, s *Store, sourceID int64, title string) *domain.Deal {
	t.Helper()

	deal := &domain.Deal{
		SourceID:        sourceID,
		Title:           title,
		Destination:     "Paris, France",
		OriginalPrice:   1299,
		DiscountedPrice: 899,
		Currency:        "USD",
		BookingURL:      "https://x/" + title,
		DedupKey:        domain.MakeDedupKey(title, "Paris, France", "https://x/"+title),
		Provenance:      domain.ProvenanceStructured,
		Status:          domain.DealStatusPending,
	}
	inserted, err := s.CreateDeal(context.Background(), deal)
	require.NoError(t, err)
	require.True(t, inserted)
	return deal
}

func TestNew(t *testing.T) {
	s := setupTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))

	// schema init is idempotent
	require.NoError(t, s.initSchema(context.Background()))
}

func TestStore_InTransaction(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	src := makeTestSource(t, s, "tx-source")

	t.Run("commit on success", func(t *testing.T) {
		err := s.InTransaction(ctx, func(tx *sqlx.Tx) error {
			_, err := tx.Exec(`UPDATE sources SET sync_interval = 120 WHERE id = ?`, src.ID)
			return err
		})
		require.NoError(t, err)

		got, err := s.GetSource(ctx, src.ID)
		require.NoError(t, err)
		assert.Equal(t, 120, got.SyncInterval)
	})

	t.Run("rollback on error", func(t *testing.T) {
		err := s.InTransaction(ctx, func(tx *sqlx.Tx) error {
			if _, err := tx.Exec(`UPDATE sources SET sync_interval = 999 WHERE id = ?`, src.ID); err != nil {
				return err
			}
			return fmt.Errorf("boom")
		})
		require.Error(t, err)

		got, err := s.GetSource(ctx, src.ID)
		require.NoError(t, err)
		assert.Equal(t, 120, got.SyncInterval, "change rolled back")
	})
}
