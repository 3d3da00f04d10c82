package history

// Range results are cached in memory. A key includes the id of the newest
// record, so an append leads to a fresh query; records that aged out of the
// window since are trimmed on a hit. golang-lru evicts the least recently
// used entries.

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/tejusbharadwaj/pvwatch/internal/models"
)

type queryCache struct {
	lru *lru.Cache
}

func newQueryCache(size int) (*queryCache, error) {
	if size <= 0 {
		return &queryCache{}, nil
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &queryCache{lru: c}, nil
}

func (c *queryCache) enabled() bool {
	return c.lru != nil
}

func (c *queryCache) get(key string) (interface{}, bool) {
	if c.lru == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

func (c *queryCache) add(key string, value interface{}) {
	if c.lru == nil {
		return
	}
	c.lru.Add(key, value)
}

// cacheKey identifies one query against one state of the log.
func cacheKey(op string, window time.Duration, latestID int64) string {
	return fmt.Sprintf("%s:%s:%d", op, window, latestID)
}

// trimWindow returns the records recorded at or after cutoff, keeping order.
// The input slice is not modified.
func trimWindow(records []models.Record, cutoff time.Time) []models.Record {
	kept := make([]models.Record, 0, len(records))
	for _, r := range records {
		if !r.RecordedAt.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}
