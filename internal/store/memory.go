package store

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/ward-air-quality/internal/airquality"
)

var (
	// ErrNotFound is returned when no readings are available for a ward.
	ErrNotFound = errors.New("no readings for ward")
)

// ReadingHistory holds a time-ordered list of readings for one ward.
type ReadingHistory struct {
	Readings []airquality.Reading
}

// MemoryStore is a concurrency-safe in-memory history of ward readings.
type MemoryStore struct {
	mu sync.RWMutex

	// key: ward_unique
	data map[string]*ReadingHistory

	maxHistory int           // max readings per ward, <= 0 means unlimited
	maxAge     time.Duration // readings older than this are dropped, <= 0 disables
	clock      clockwork.Clock
}

// NewMemoryStore creates a new MemoryStore with optional limits.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return NewMemoryStoreWithClock(maxHistory, maxAge, clockwork.NewRealClock())
}

func NewMemoryStoreWithClock(maxHistory int, maxAge time.Duration, clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*ReadingHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		clock:      clock,
	}
}

// Record appends a reading for its ward and enforces retention. A reading
// whose timestamp equals the latest one for the ward replaces it.
func (s *MemoryStore) Record(r airquality.Reading) {
	if r.WardUnique == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[r.WardUnique]
	if !ok {
		history = &ReadingHistory{}
		s.data[r.WardUnique] = history
	}

	n := len(history.Readings)
	switch {
	case n > 0 && history.Readings[n-1].Timestamp.Equal(r.Timestamp):
		history.Readings[n-1] = r
	case n > 0 && r.Timestamp.Before(history.Readings[n-1].Timestamp):
		// Out of order; keep the slice sorted.
		i := n - 1
		for i > 0 && r.Timestamp.Before(history.Readings[i-1].Timestamp) {
			i--
		}
		history.Readings = append(history.Readings, airquality.Reading{})
		copy(history.Readings[i+1:], history.Readings[i:])
		history.Readings[i] = r
	default:
		history.Readings = append(history.Readings, r)
	}

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.Readings) > s.maxHistory {
		over := len(history.Readings) - s.maxHistory
		history.Readings = history.Readings[over:]
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := s.clock.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(history.Readings); i++ {
			if !history.Readings[i].Timestamp.Before(cutoff) {
				break
			}
		}
		history.Readings = history.Readings[i:]
	}

	if len(history.Readings) == 0 {
		delete(s.data, r.WardUnique)
	}
}

// RecordAll records one reading per ward.
func (s *MemoryStore) RecordAll(readings []airquality.Reading) {
	for _, r := range readings {
		s.Record(r)
	}
}

// Latest returns the most recent reading for a ward.
func (s *MemoryStore) Latest(ward string) (airquality.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[ward]
	if !ok || len(history.Readings) == 0 {
		return airquality.Reading{}, ErrNotFound
	}
	return history.Readings[len(history.Readings)-1], nil
}

// Range returns all readings for a ward between from and to (inclusive).
func (s *MemoryStore) Range(ward string, from, to time.Time) ([]airquality.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[ward]
	if !ok || len(history.Readings) == 0 {
		return nil, ErrNotFound
	}

	var result []airquality.Reading
	for _, r := range history.Readings {
		if !r.Timestamp.Before(from) && !r.Timestamp.After(to) {
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// Wards returns how many wards have at least one reading.
func (s *MemoryStore) Wards() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
