package domain

import (
	"encoding/json"
	"time"
)

// Usage categories tracked against daily quotas.
const (
	CategoryPlaceDetails = "placeDetails"
	CategoryPlacePhotos  = "placePhotos"
	CategoryGeocoding    = "geocoding"
)

// DailyLimits maps a usage category to its maximum call count per rolling day.
type DailyLimits map[string]int

// UsageCounters is the persisted per-category call count state.
type UsageCounters struct {
	Counts    map[string]int
	Total     int
	LastReset time.Time
}

type usageCountersJSON struct {
	Counts               map[string]int `json:"counts"`
	Total                int            `json:"total"`
	LastResetEpochMillis int64          `json:"lastResetEpochMillis"`
}

// MarshalJSON encodes the reset time as epoch milliseconds.
func (u UsageCounters) MarshalJSON() ([]byte, error) {
	return json.Marshal(usageCountersJSON{
		Counts:               u.Counts,
		Total:                u.Total,
		LastResetEpochMillis: u.LastReset.UnixMilli(),
	})
}

// UnmarshalJSON decodes a snapshot written by MarshalJSON.
func (u *UsageCounters) UnmarshalJSON(data []byte) error {
	var raw usageCountersJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	u.Counts = raw.Counts
	if u.Counts == nil {
		u.Counts = make(map[string]int)
	}
	u.Total = raw.Total
	u.LastReset = time.Time{}
	if raw.LastResetEpochMillis != 0 {
		u.LastReset = time.UnixMilli(raw.LastResetEpochMillis)
	}
	return nil
}

// UsageSnapshot is the post-increment state of a single category.
type UsageSnapshot struct {
	Count      int `json:"count"`
	Limit      int `json:"limit"`
	Percentage int `json:"percentage"`
}

// UsageStats reports all categories at once.
type UsageStats struct {
	Categories map[string]UsageSnapshot `json:"categories"`
	Total      int                      `json:"total"`
	LastReset  string                   `json:"last_reset"`
}

// UsageEventType distinguishes published usage events.
type UsageEventType string

const (
	UsageEventWarning UsageEventType = "quota_warning"
	UsageEventReset   UsageEventType = "counters_reset"
)

// UsageEvent is published when a category nears its quota or counters roll over.
type UsageEvent struct {
	Type       UsageEventType `json:"type"`
	Category   string         `json:"category,omitempty"`
	Count      int            `json:"count,omitempty"`
	Limit      int            `json:"limit,omitempty"`
	Percentage int            `json:"percentage,omitempty"`
	At         time.Time      `json:"at"`
}
