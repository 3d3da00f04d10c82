//go:generate go run github.com/golang/mock/mockgen -destination=./mocks/timeseries.go -package=mocks . TimeSeriesRepository

// Package database implements the append-only time series log of PV readings.
//
// Architecture:
//   - One table, pv_readings, written by a single ingest worker
//   - Insertion timestamps are assigned by the repository and strictly increase
//   - Range and aggregate queries run concurrently with appends
//   - Two backends: PostgreSQL (lib/pq) and SQLite (go-sqlite3)
//
// Example usage:
//
//	repo, err := NewSQLiteRepo("pv_data.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
//	id, err := repo.Append(ctx, reading, "live")
//	records, err := repo.QueryRange(ctx, 24*time.Hour)
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tejusbharadwaj/pvwatch/internal/models"
)

// ErrPersistence wraps every failure to durably record or read a reading.
// A Reading whose Append returned an error must not be treated as recorded.
var ErrPersistence = errors.New("persistence error")

// TimeSeriesRepository defines the operations on the reading log.
//
// The log is append-only: there is no update or delete path.
//
// Ordering:
//   - Every record gets a store-assigned insertion timestamp
//   - Timestamps are strictly increasing in append order
//   - Range results are returned most-recent-first
type TimeSeriesRepository interface {
	// Append persists one reading tagged with source and returns its identity.
	Append(ctx context.Context, reading models.Reading, source string) (int64, error)

	// QueryRange returns all records inserted within the trailing window,
	// most recent first. An empty window yields an empty slice, not an error.
	QueryRange(ctx context.Context, window time.Duration) ([]models.Record, error)

	// Aggregate computes summary statistics for the trailing window.
	// All numeric fields are zero when no record qualifies.
	Aggregate(ctx context.Context, window time.Duration) (models.Stats, error)

	// LatestID returns the identity of the newest record, or 0 if the log is empty.
	LatestID(ctx context.Context) (int64, error)

	// Close releases any resources held by the repository.
	Close() error
}

// Option configures a repository.
type Option func(*stamper)

// WithClock overrides the clock used for insertion timestamps and windows.
func WithClock(now func() time.Time) Option {
	return func(s *stamper) {
		s.now = now
	}
}

// stamper hands out strictly increasing insertion timestamps. When the clock
// does not advance past the previous stamp, the next one is the previous plus
// one resolution step. Callers serialize next through the repository write lock.
type stamper struct {
	now        func() time.Time
	last       time.Time
	resolution time.Duration
}

func newStamper(resolution time.Duration, opts ...Option) *stamper {
	s := &stamper{now: time.Now, resolution: resolution}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *stamper) next() time.Time {
	t := s.now().UTC().Truncate(s.resolution)
	if !t.After(s.last) {
		t = s.last.Add(s.resolution)
	}
	s.last = t
	return t
}

func (s *stamper) seed(last time.Time) {
	if last.After(s.last) {
		s.last = last.UTC()
	}
}

func (s *stamper) cutoff(window time.Duration) (time.Time, error) {
	if window <= 0 {
		return time.Time{}, fmt.Errorf("window must be positive, got %s", window)
	}
	return s.now().UTC().Add(-window), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads the columns listed in recordColumns. recordedAt receives
// the backend-specific insertion timestamp.
func scanRecord(row rowScanner, recordedAt any) (models.Record, error) {
	var r models.Record
	rd := &r.Reading
	err := row.Scan(
		&r.ID,
		recordedAt,
		&rd.LivePower,
		&rd.EnergyToday,
		&rd.ACPower,
		&rd.DCPower,
		&rd.Efficiency,
		&rd.UVIndex,
		&rd.TotalEnergy,
		&rd.SystemTemp,
		&rd.CO2Avoided,
		&rd.AmbientTemp,
		&r.Source,
	)
	rd.DataSource = r.Source
	return r, err
}

func insertArgs(recordedAt any, r models.Reading, source string) []any {
	return []any{
		recordedAt,
		r.LivePower,
		r.EnergyToday,
		r.ACPower,
		r.DCPower,
		r.Efficiency,
		r.UVIndex,
		r.TotalEnergy,
		r.SystemTemp,
		r.CO2Avoided,
		r.AmbientTemp,
		source,
	}
}

const recordColumns = `id, recorded_at, live_power, energy_today, ac_power, dc_power,
	efficiency, uv_index, total_energy, system_temp, co2_avoided, ambient_temp, data_source`

const insertColumns = `recorded_at, live_power, energy_today, ac_power, dc_power,
	efficiency, uv_index, total_energy, system_temp, co2_avoided, ambient_temp, data_source`

const aggregateSelect = `SELECT
	COUNT(*),
	COALESCE(AVG(live_power), 0),
	COALESCE(MAX(live_power), 0),
	COALESCE(MIN(live_power), 0),
	COALESCE(AVG(efficiency), 0),
	COALESCE(AVG(energy_today), 0)
FROM pv_readings`

func validateReading(r models.Reading) error {
	if r.TotalEnergy < 0 || r.CO2Avoided < 0 {
		return fmt.Errorf("%w: negative total energy or co2 avoided", ErrPersistence)
	}
	return nil
}
