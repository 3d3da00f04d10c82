package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/pvwatch/internal/models"
)

// fakeClock is a settable clock shared by a repository under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestRepo(t *testing.T, clock *fakeClock) *SQLiteRepo {
	t.Helper()
	var opts []Option
	if clock != nil {
		opts = append(opts, WithClock(clock.Now))
	}
	repo, err := NewSQLiteRepo(filepath.Join(t.TempDir(), "pv_data.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func reading(power float64) models.Reading {
	return models.Reading{
		LivePower:   power,
		EnergyToday: power * 10,
		ACPower:     power * 0.92,
		DCPower:     power * 1.02,
		Efficiency:  92,
		TotalEnergy: 100,
		CO2Avoided:  36.6,
	}
}

func TestSQLiteRepo_QueryRangeWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{}
	repo := newTestRepo(t, clock)

	for _, offset := range []time.Duration{10 * time.Hour, 5 * time.Hour, time.Hour} {
		clock.Set(now.Add(-offset))
		_, err := repo.Append(ctx, reading(float64(offset/time.Hour)), "live")
		require.NoError(t, err)
	}

	clock.Set(now)
	records, err := repo.QueryRange(ctx, 6*time.Hour)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.True(t, now.Add(-time.Hour).Equal(records[0].RecordedAt))
	assert.True(t, now.Add(-5*time.Hour).Equal(records[1].RecordedAt))
	assert.Equal(t, 1.0, records[0].Reading.LivePower)
	assert.Equal(t, 5.0, records[1].Reading.LivePower)
	assert.Equal(t, "live", records[0].Source)
	assert.Equal(t, "live", records[0].Reading.DataSource)
}

func TestSQLiteRepo_EmptyWindow(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, nil)

	records, err := repo.QueryRange(ctx, time.Hour)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	stats, err := repo.Aggregate(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{}, stats)

	id, err := repo.LatestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
}

func TestSQLiteRepo_Aggregate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, nil)

	for _, p := range []float64{2, 4, 6} {
		_, err := repo.Append(ctx, reading(p), "live")
		require.NoError(t, err)
	}

	stats, err := repo.Aggregate(ctx, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.Count)
	assert.InDelta(t, 4.0, stats.AvgPower, 1e-9)
	assert.Equal(t, 6.0, stats.MaxPower)
	assert.Equal(t, 2.0, stats.MinPower)
	assert.InDelta(t, 92.0, stats.AvgEfficiency, 1e-9)
	assert.InDelta(t, 40.0, stats.AvgDailyEnergy, 1e-9)
}

func TestSQLiteRepo_TimestampsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: frozen}
	repo := newTestRepo(t, clock)

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := repo.Append(ctx, reading(float64(i)), "live")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	records, err := repo.QueryRange(ctx, time.Minute)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, ids[2], records[0].ID)
	assert.Equal(t, ids[0], records[2].ID)
	assert.True(t, records[0].RecordedAt.After(records[1].RecordedAt))
	assert.True(t, records[1].RecordedAt.After(records[2].RecordedAt))

	latest, err := repo.LatestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[2], latest)
}

func TestSQLiteRepo_ReopenKeepsOrdering(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pv_data.db")
	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	repo, err := NewSQLiteRepo(path, WithClock(func() time.Time { return frozen }))
	require.NoError(t, err)
	_, err = repo.Append(ctx, reading(1), "live")
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	// A clock that went backwards must not produce an older stamp.
	repo, err = NewSQLiteRepo(path, WithClock(func() time.Time { return frozen.Add(-time.Hour) }))
	require.NoError(t, err)
	defer repo.Close()
	_, err = repo.Append(ctx, reading(2), "live")
	require.NoError(t, err)

	records, err := repo.QueryRange(ctx, 3*time.Hour)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2.0, records[0].Reading.LivePower)
	assert.True(t, records[0].RecordedAt.After(frozen))
}

func TestSQLiteRepo_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, nil)

	r := reading(1)
	r.TotalEnergy = -1
	_, err := repo.Append(ctx, r, "live")
	assert.ErrorIs(t, err, ErrPersistence)

	_, err = repo.QueryRange(ctx, 0)
	assert.Error(t, err)
}

func TestSQLiteRepo_ConcurrentReadsDuringAppends(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			_, err := repo.Append(ctx, reading(float64(i)), "live")
			assert.NoError(t, err)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				records, err := repo.QueryRange(ctx, time.Hour)
				assert.NoError(t, err)
				for j := 1; j < len(records); j++ {
					assert.True(t, records[j-1].RecordedAt.After(records[j].RecordedAt))
				}
			}
		}()
	}
	wg.Wait()

	records, err := repo.QueryRange(ctx, time.Hour)
	require.NoError(t, err)
	assert.Len(t, records, 20)
}
