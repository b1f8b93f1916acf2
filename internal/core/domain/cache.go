package domain

import "time"

// CacheEntry is a processed upstream result and the time it was stored.
// Entries are replaced or aged out, never mutated.
type CacheEntry struct {
	Value    []byte    `json:"value"`
	StoredAt time.Time `json:"stored_at"`
}

// Fresh reports whether the entry is younger than ttl at now.
func (e CacheEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) < ttl
}
