package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tejusbharadwaj/pvwatch/internal/models"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// SQLiteRepo implements TimeSeriesRepository on a local SQLite file.
//
// The database runs in WAL mode so range queries proceed while the ingest
// worker appends. Insertion timestamps are stored as Unix nanoseconds.
type SQLiteRepo struct {
	db    *sql.DB
	stamp *stamper
	write sync.Mutex
}

// NewSQLiteRepo opens (or creates) the database at dbPath and applies the schema.
func NewSQLiteRepo(dbPath string, opts ...Option) (*SQLiteRepo, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &SQLiteRepo{db: db, stamp: newStamper(time.Nanosecond, opts...)}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	var last sql.NullInt64
	if err := db.QueryRow("SELECT MAX(recorded_at) FROM pv_readings").Scan(&last); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read last timestamp: %w", err)
	}
	if last.Valid {
		repo.stamp.seed(time.Unix(0, last.Int64))
	}

	return repo, nil
}

// migrate executes the embedded schema files in name order.
func (s *SQLiteRepo) migrate() error {
	const dir = "migrations/sqlite"
	entries, err := fs.ReadDir(sqliteMigrations, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := sqliteMigrations.ReadFile(path.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.Exec(string(data)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (s *SQLiteRepo) Append(ctx context.Context, reading models.Reading, source string) (int64, error) {
	if err := validateReading(reading); err != nil {
		return 0, err
	}

	s.write.Lock()
	defer s.write.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to begin transaction: %v", ErrPersistence, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO pv_readings (`+insertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		insertArgs(s.stamp.next().UnixNano(), reading, source)...,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert reading: %v", ErrPersistence, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: failed to commit transaction: %v", ErrPersistence, err)
	}
	return id, nil
}

func (s *SQLiteRepo) QueryRange(ctx context.Context, window time.Duration) ([]models.Record, error) {
	cutoff, err := s.stamp.cutoff(window)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+`
		FROM pv_readings
		WHERE recorded_at >= ?
		ORDER BY recorded_at DESC, id DESC`,
		cutoff.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer rows.Close()

	results := []models.Record{}
	for rows.Next() {
		var ns int64
		r, err := scanRecord(rows, &ns)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		r.RecordedAt = time.Unix(0, ns).UTC()
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return results, nil
}

func (s *SQLiteRepo) Aggregate(ctx context.Context, window time.Duration) (models.Stats, error) {
	cutoff, err := s.stamp.cutoff(window)
	if err != nil {
		return models.Stats{}, err
	}

	var st models.Stats
	err = s.db.QueryRowContext(ctx, aggregateSelect+` WHERE recorded_at >= ?`, cutoff.UnixNano()).Scan(
		&st.Count, &st.AvgPower, &st.MaxPower, &st.MinPower, &st.AvgEfficiency, &st.AvgDailyEnergy,
	)
	if err != nil {
		return models.Stats{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return st, nil
}

func (s *SQLiteRepo) LatestID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM pv_readings").Scan(&id); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return id, nil
}

func (s *SQLiteRepo) Close() error {
	return s.db.Close()
}

var _ TimeSeriesRepository = (*SQLiteRepo)(nil)
