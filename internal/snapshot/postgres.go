package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/matthewbaird/rentpulse/internal/types"
)

// snapshotColumns is the select list shared by Get and List, in scan order.
var snapshotColumns = []string{
	"unit_id", "property_name", "unit_number", "address", "zip",
	"current_rent", "original_rent", "effective_rent", "rent_per_sqft",
	"bedrooms", "bathrooms", "sqft", "floor", "floor_plan",
	"days_on_market", "first_seen", "market_velocity",
	"concession_value", "concession_type", "concession_urgency",
	"rent_trend", "rent_change_percent", "concession_trend", "market_position", "percentile_rank",
	"amenity_score", "location_score", "management_score",
	"lease_probability", "negotiation_potential", "urgency_score",
	"data_freshness", "confidence_score",
}

// PostgresSource reads snapshots from the unit_snapshots table.
type PostgresSource struct {
	db *sql.DB
}

// OpenPostgres connects to PostgreSQL, retrying the ping while the database
// comes up, and ensures the snapshot table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	src := NewPostgresSource(db)
	if err := src.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return src, nil
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (p *PostgresSource) Close() error { return p.db.Close() }

// Migrate creates the snapshot table if the ingestion side has not.
func (p *PostgresSource) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS unit_snapshots (
			unit_id               TEXT PRIMARY KEY,
			property_name         TEXT          NOT NULL DEFAULT '',
			unit_number           TEXT          NOT NULL DEFAULT '',
			address               TEXT          NOT NULL DEFAULT '',
			zip                   VARCHAR(10)   NOT NULL DEFAULT '',
			current_rent          NUMERIC(10,2) NOT NULL,
			original_rent         NUMERIC(10,2) NOT NULL DEFAULT 0,
			effective_rent        NUMERIC(10,2) NOT NULL DEFAULT 0,
			rent_per_sqft         NUMERIC(8,2)  NOT NULL DEFAULT 0,
			bedrooms              INTEGER       NOT NULL DEFAULT 0,
			bathrooms             NUMERIC(3,1)  NOT NULL DEFAULT 0,
			sqft                  INTEGER       NOT NULL DEFAULT 0,
			floor                 INTEGER       NOT NULL DEFAULT 0,
			floor_plan            TEXT          NOT NULL DEFAULT '',
			days_on_market        INTEGER       NOT NULL DEFAULT 0,
			first_seen            TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			market_velocity       TEXT          NOT NULL DEFAULT 'normal',
			concession_value      NUMERIC(10,2) NOT NULL DEFAULT 0,
			concession_type       TEXT          NOT NULL DEFAULT '',
			concession_urgency    TEXT          NOT NULL DEFAULT 'none',
			rent_trend            TEXT          NOT NULL DEFAULT 'stable',
			rent_change_percent   NUMERIC(6,2)  NOT NULL DEFAULT 0,
			concession_trend      TEXT          NOT NULL DEFAULT '',
			market_position       TEXT          NOT NULL DEFAULT 'at_market',
			percentile_rank       NUMERIC(5,2)  NOT NULL DEFAULT 0,
			amenity_score         INTEGER       NOT NULL DEFAULT 0,
			location_score        INTEGER       NOT NULL DEFAULT 0,
			management_score      INTEGER       NOT NULL DEFAULT 0,
			lease_probability     NUMERIC(4,3)  NOT NULL DEFAULT 0,
			negotiation_potential INTEGER       NOT NULL DEFAULT 0,
			urgency_score         INTEGER       NOT NULL DEFAULT 0,
			data_freshness        TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			confidence_score      NUMERIC(4,3)  NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_unit_snapshots_zip ON unit_snapshots(zip);
	`)
	return err
}

func (p *PostgresSource) Get(ctx context.Context, unitID string) (types.UnitSnapshot, error) {
	row := p.db.QueryRowContext(ctx,
		"SELECT "+strings.Join(snapshotColumns, ", ")+" FROM unit_snapshots WHERE unit_id = $1", unitID)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.UnitSnapshot{}, ErrNotFound
	}
	if err != nil {
		return types.UnitSnapshot{}, fmt.Errorf("postgres: get %s: %w", unitID, err)
	}
	return s, nil
}

func (p *PostgresSource) List(ctx context.Context, q Query) ([]types.UnitSnapshot, error) {
	query := "SELECT " + strings.Join(snapshotColumns, ", ") + " FROM unit_snapshots"
	var args []any
	if q.Zip != "" {
		args = append(args, q.Zip)
		query += fmt.Sprintf(" WHERE zip = $%d", len(args))
	}
	query += " ORDER BY unit_id"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	defer rows.Close()

	var out []types.UnitSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(sc scanner) (types.UnitSnapshot, error) {
	var (
		s                                  types.UnitSnapshot
		velocity, urgency, trend, position string
	)
	err := sc.Scan(
		&s.UnitID, &s.PropertyName, &s.UnitNumber, &s.Address, &s.Zip,
		&s.CurrentRent, &s.OriginalRent, &s.EffectiveRent, &s.RentPerSquareFoot,
		&s.Bedrooms, &s.Bathrooms, &s.SquareFeet, &s.Floor, &s.FloorPlan,
		&s.DaysOnMarket, &s.FirstSeen, &velocity,
		&s.ConcessionValue, &s.ConcessionType, &urgency,
		&trend, &s.RentChangePercent, &s.ConcessionTrend, &position, &s.PercentileRank,
		&s.AmenityScore, &s.LocationScore, &s.ManagementScore,
		&s.LeaseProbability, &s.NegotiationPotential, &s.UrgencyScore,
		&s.DataFreshness, &s.ConfidenceScore,
	)
	if err != nil {
		return s, err
	}
	s.MarketVelocity = types.MarketVelocity(velocity)
	s.ConcessionUrgency = types.ConcessionUrgency(urgency)
	s.RentTrend = types.RentTrend(trend)
	s.MarketPosition = types.MarketPosition(position)
	return s, nil
}
