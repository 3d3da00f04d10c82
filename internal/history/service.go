// Package history answers read-only questions about the PV system: the
// latest snapshot, the readings of a trailing window, their summary
// statistics and single-metric series. It never writes.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/pvwatch/internal/models"
)

var (
	// ErrNoData means the requested window holds no records.
	ErrNoData = errors.New("no data in window")
	// ErrUnavailable means no parsable latest snapshot exists yet.
	ErrUnavailable = errors.New("latest snapshot unavailable")
	// ErrInvalidWindow rejects non-positive or oversized windows.
	ErrInvalidWindow = errors.New("invalid window")
	// ErrUnknownMetric rejects a series request for an unknown metric name.
	ErrUnknownMetric = errors.New("unknown metric")
)

// Repository is the read side of the time series log.
type Repository interface {
	QueryRange(ctx context.Context, window time.Duration) ([]models.Record, error)
	Aggregate(ctx context.Context, window time.Duration) (models.Stats, error)
	LatestID(ctx context.Context) (int64, error)
}

// SnapshotReader returns the bytes of the latest local snapshot.
type SnapshotReader interface {
	Latest() ([]byte, error)
}

// Parser turns snapshot bytes into a reading.
type Parser interface {
	Parse(data []byte) (models.Reading, error)
}

type Service struct {
	repo      Repository
	snapshots SnapshotReader
	parser    Parser
	cache     *queryCache
	logger    *logrus.Logger
	now       func() time.Time
}

// NewService creates a query service. cacheSize 0 disables result caching.
func NewService(repo Repository, snapshots SnapshotReader, p Parser, cacheSize int, logger *logrus.Logger) (*Service, error) {
	cache, err := newQueryCache(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}
	return &Service{
		repo:      repo,
		snapshots: snapshots,
		parser:    p,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// FetchLatest parses the latest snapshot. Readings from it are not
// necessarily persisted yet.
func (s *Service) FetchLatest(ctx context.Context) (models.Reading, error) {
	data, err := s.snapshots.Latest()
	if err != nil {
		return models.Reading{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	reading, err := s.parser.Parse(data)
	if err != nil {
		s.logger.WithError(err).Warn("latest snapshot could not be parsed")
		return models.Reading{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return reading, nil
}

// QueryRange returns the records of the trailing window, most recent first.
func (s *Service) QueryRange(ctx context.Context, window time.Duration) ([]models.Record, error) {
	if err := ValidateWindow(window); err != nil {
		return nil, err
	}

	key, ok := s.key(ctx, "range", window)
	if ok {
		if v, hit := s.cache.get(key); hit {
			records := trimWindow(v.([]models.Record), s.now().Add(-window))
			if len(records) == 0 {
				return nil, fmt.Errorf("%w: last %s", ErrNoData, window)
			}
			return records, nil
		}
	}

	records, err := s.repo.QueryRange(ctx, window)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: last %s", ErrNoData, window)
	}

	if ok {
		s.cache.add(key, records)
	}
	return records, nil
}

// Aggregate returns summary statistics for the trailing window. When the
// store cannot aggregate, the statistics are computed from the window's
// records. Statistics are never cached.
func (s *Service) Aggregate(ctx context.Context, window time.Duration) (models.Stats, error) {
	if err := ValidateWindow(window); err != nil {
		return models.Stats{}, err
	}

	stats, err := s.repo.Aggregate(ctx, window)
	if err != nil || stats.Count == 0 {
		if err != nil {
			s.logger.WithError(err).Warn("aggregate query failed, summarizing records instead")
		}
		records, rerr := s.repo.QueryRange(ctx, window)
		if rerr != nil {
			if err != nil {
				return models.Stats{}, err
			}
			return models.Stats{}, rerr
		}
		if len(records) == 0 {
			return models.Stats{}, fmt.Errorf("%w: last %s", ErrNoData, window)
		}
		stats = models.Summarize(records)
	}
	return stats, nil
}

// Series returns one metric over the trailing window, oldest first.
func (s *Service) Series(ctx context.Context, window time.Duration, metric string) ([]models.SeriesPoint, error) {
	value, err := metricFunc(metric)
	if err != nil {
		return nil, err
	}

	records, err := s.QueryRange(ctx, window)
	if err != nil {
		return nil, err
	}

	points := make([]models.SeriesPoint, 0, len(records))
	for _, r := range records {
		points = append(points, models.SeriesPoint{Time: r.RecordedAt, Value: value(r.Reading)})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Time.Before(points[j].Time)
	})
	return points, nil
}

// key returns a cache key for the current state of the log. The query runs
// uncached when the newest id cannot be read.
func (s *Service) key(ctx context.Context, op string, window time.Duration) (string, bool) {
	if !s.cache.enabled() {
		return "", false
	}
	id, err := s.repo.LatestID(ctx)
	if err != nil {
		s.logger.WithError(err).Debug("skipping query cache")
		return "", false
	}
	return cacheKey(op, window, id), true
}
