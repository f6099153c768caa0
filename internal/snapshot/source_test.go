package snapshot

import (
	"context"
	"os"
	"testing"

	"github.com/matthewbaird/rentpulse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySource(t *testing.T) {
	ctx := context.Background()
	src := NewMemorySource(
		types.UnitSnapshot{UnitID: "c", Zip: "78701", CurrentRent: 1500},
		types.UnitSnapshot{UnitID: "a", Zip: "78702", CurrentRent: 1200},
		types.UnitSnapshot{UnitID: "b", Zip: "78701", CurrentRent: 1300},
	)

	got, err := src.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1200.0, got.CurrentRent)

	_, err = src.Get(ctx, "zz")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := src.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].UnitID)

	inZip, err := src.List(ctx, Query{Zip: "78701", Limit: 1})
	require.NoError(t, err)
	require.Len(t, inZip, 1)
	assert.Equal(t, "b", inZip[0].UnitID)

	src.Load(types.UnitSnapshot{UnitID: "a", CurrentRent: 1150})
	got, err = src.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1150.0, got.CurrentRent)
}

func TestPostgresSource(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	src, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.db.ExecContext(ctx, `
		INSERT INTO unit_snapshots (unit_id, zip, current_rent, days_on_market, market_velocity, market_position)
		VALUES ('pg-test-1', '99999', 1875.50, 33, 'slow', 'above_market')
		ON CONFLICT (unit_id) DO UPDATE SET current_rent = EXCLUDED.current_rent`)
	require.NoError(t, err)
	t.Cleanup(func() { src.db.ExecContext(ctx, `DELETE FROM unit_snapshots WHERE unit_id = 'pg-test-1'`) })

	got, err := src.Get(ctx, "pg-test-1")
	require.NoError(t, err)
	assert.Equal(t, 1875.5, got.CurrentRent)
	assert.Equal(t, types.VelocitySlow, got.MarketVelocity)
	assert.Equal(t, types.PositionAbove, got.MarketPosition)

	list, err := src.List(ctx, Query{Zip: "99999"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = src.Get(ctx, "pg-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
