// Package history reads finalized workout logs out of the local mirror.
// Parsed logs are cached by path and invalidated when the file's size or
// modification time changes.
package history

import (
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/liftlog/internal/workout"
	"github.com/p-blackswan/liftlog/lru"
)

// DefaultCacheSize fits roughly two years of four sessions a week.
const DefaultCacheSize = 512

const logGlob = workout.WeeksDir + "/*/*.md"

// Source is the read side of the mirror.
type Source interface {
	Glob(pattern string) ([]string, error)
	ReadFile(rel string) ([]byte, error)
	Stat(rel string) (fs.FileInfo, error)
}

// Reader loads workout logs.
type Reader struct {
	src    Source
	cache  *lru.Cache[string, workout.Session]
	logger zerolog.Logger
}

// NewReader creates a Reader. cacheSize < 1 uses DefaultCacheSize.
func NewReader(src Source, cacheSize int, logger zerolog.Logger) *Reader {
	if cacheSize < 1 {
		cacheSize = DefaultCacheSize
	}
	return &Reader{
		src:    src,
		cache:  lru.New[string, workout.Session](cacheSize),
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Load parses the workout log at path. A log without a date in its front
// matter takes the date from its file name.
func (r *Reader) Load(path string) (workout.Session, error) {
	info, err := r.src.Stat(path)
	if err != nil {
		return workout.Session{}, err
	}
	version := strconv.FormatInt(info.ModTime().UnixNano(), 10) + ":" + strconv.FormatInt(info.Size(), 10)
	if s, ok := r.cache.Get(path, version); ok {
		return s.Clone(), nil
	}

	data, err := r.src.ReadFile(path)
	if err != nil {
		return workout.Session{}, err
	}
	s, err := workout.Parse(string(data))
	if err != nil {
		return workout.Session{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if s.Date.IsZero() {
		if d, ok := workout.LogDate(path); ok {
			s.Date = d
		}
	}
	r.cache.Put(path, version, s.Clone())
	return s, nil
}

// Sessions returns the completed sessions dated within [from, to], oldest
// first. A zero bound is open.
func (r *Reader) Sessions(from, to time.Time) ([]workout.Session, error) {
	paths, err := r.src.Glob(logGlob)
	if err != nil {
		return nil, err
	}
	from, to = workout.Day(from), workout.Day(to)

	var out []workout.Session
	for _, p := range paths {
		d, ok := workout.LogDate(p)
		if !ok {
			continue
		}
		if (!from.IsZero() && d.Before(from)) || (!to.IsZero() && d.After(to)) {
			continue
		}
		s, err := r.Load(p)
		if err != nil {
			return nil, err
		}
		if s.Status != workout.StatusCompleted {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	r.logger.Debug().Int("sessions", len(out)).Int("files", len(paths)).Msg("loaded workout history")
	return out, nil
}

// Week returns the completed sessions of an ISO week such as "2026-W42".
func (r *Reader) Week(week string) ([]workout.Session, error) {
	monday, err := workout.ParseISOWeek(week)
	if err != nil {
		return nil, err
	}
	return r.Sessions(monday, monday.AddDate(0, 0, 6))
}

// Recent returns the completed sessions of the last days days ending at now.
func (r *Reader) Recent(now time.Time, days int) ([]workout.Session, error) {
	return r.Sessions(now.AddDate(0, 0, -days), now)
}

// CacheStats reports cache hits and misses.
func (r *Reader) CacheStats() (hits, misses uint64) {
	return r.cache.Stats()
}
