package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/campusgate/gatepass/internal/model"
	"github.com/campusgate/gatepass/internal/store"
)

// Analytics answers read-only projections over the scan log. All "today"/
// "this day" bucketing uses the subject's local civil date in Zone; stored
// timestamps themselves stay zoned (UTC), never naive.
type Analytics struct {
	Store *store.Store
	Zone  *time.Location
}

// NewAnalytics returns an Analytics bucketing by zone (UTC if nil).
func NewAnalytics(s *store.Store, zone *time.Location) *Analytics {
	if zone == nil {
		zone = time.UTC
	}
	return &Analytics{Store: s, Zone: zone}
}

func (a *Analytics) civilDayBounds(t time.Time) (start, end time.Time) {
	local := t.In(a.Zone)
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, a.Zone)
	end = start.AddDate(0, 0, 1)
	return
}

// Statistics aggregates counts over the last `days` civil days (including
// today), plus students_currently_on_campus computed strictly from today.
type Statistics struct {
	Total                    int     `json:"total"`
	Successful               int     `json:"successful"`
	Failed                   int     `json:"failed"`
	Entries                  int     `json:"entries"`
	Exits                    int     `json:"exits"`
	StudentsCurrentlyOnCampus int    `json:"students_currently_on_campus"`
	SuccessRate              float64 `json:"success_rate"`
}

func (a *Analytics) Statistics(ctx context.Context, days int) (Statistics, error) {
	if days < 1 {
		days = 1
	}
	now := time.Now()
	_, windowEnd := a.civilDayBounds(now)
	windowStart := windowEnd.AddDate(0, 0, -days)

	logs, err := a.Store.QueryScans(ctx, store.ScanFilter{From: &windowStart, To: &windowEnd}, 1_000_000)
	if err != nil {
		return Statistics{}, fmt.Errorf("statistics: %w", err)
	}

	var stats Statistics
	todayStart, todayEnd := a.civilDayBounds(now)
	todayEntries, todayExits := 0, 0

	for _, l := range logs {
		stats.Total++
		if l.Result == model.ResultSuccess {
			stats.Successful++
		} else {
			stats.Failed++
		}
		switch l.Direction {
		case model.DirectionEntry:
			stats.Entries++
		case model.DirectionExit:
			stats.Exits++
		}

		if l.Result == model.ResultSuccess && !l.Timestamp.Before(todayStart) && l.Timestamp.Before(todayEnd) {
			switch l.Direction {
			case model.DirectionEntry:
				todayEntries++
			case model.DirectionExit:
				todayExits++
			}
		}
	}

	occupancy := todayEntries - todayExits
	if occupancy < 0 {
		occupancy = 0
	}
	stats.StudentsCurrentlyOnCampus = occupancy

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	return stats, nil
}

// HourlyBucket is one hour's entry/exit counts.
type HourlyBucket struct {
	Hour    int `json:"hour"`
	Entries int `json:"entries"`
	Exits   int `json:"exits"`
}

// Hourly returns a 24-bucket entry/exit histogram for day's civil date.
func (a *Analytics) Hourly(ctx context.Context, day time.Time) ([24]HourlyBucket, error) {
	var buckets [24]HourlyBucket
	for i := range buckets {
		buckets[i].Hour = i
	}

	start, end := a.civilDayBounds(day)
	logs, err := a.Store.QueryScans(ctx, store.ScanFilter{Result: model.ResultSuccess, From: &start, To: &end}, 1_000_000)
	if err != nil {
		return buckets, fmt.Errorf("hourly: %w", err)
	}

	for _, l := range logs {
		hour := l.Timestamp.In(a.Zone).Hour()
		switch l.Direction {
		case model.DirectionEntry:
			buckets[hour].Entries++
		case model.DirectionExit:
			buckets[hour].Exits++
		}
	}
	return buckets, nil
}

// DailyBucket is one civil day's entry/exit counts.
type DailyBucket struct {
	Date    string `json:"date"` // YYYY-MM-DD in Zone
	Entries int    `json:"entries"`
	Exits   int    `json:"exits"`
}

// Daily returns per-day entry/exit counts over a rolling window of `days`
// civil days ending today.
func (a *Analytics) Daily(ctx context.Context, days int) ([]DailyBucket, error) {
	if days < 1 {
		days = 1
	}
	_, windowEnd := a.civilDayBounds(time.Now())
	windowStart := windowEnd.AddDate(0, 0, -days)

	logs, err := a.Store.QueryScans(ctx, store.ScanFilter{Result: model.ResultSuccess, From: &windowStart, To: &windowEnd}, 1_000_000)
	if err != nil {
		return nil, fmt.Errorf("daily: %w", err)
	}

	byDate := make(map[string]*DailyBucket)
	for _, l := range logs {
		key := l.Timestamp.In(a.Zone).Format("2006-01-02")
		b, ok := byDate[key]
		if !ok {
			b = &DailyBucket{Date: key}
			byDate[key] = b
		}
		switch l.Direction {
		case model.DirectionEntry:
			b.Entries++
		case model.DirectionExit:
			b.Exits++
		}
	}

	out := make([]DailyBucket, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// TopSubject is one subject's scan activity count.
type TopSubject struct {
	SubjectID uint64 `json:"subject_id"`
	Count     int    `json:"count"`
}

// TopActive ranks subjects by scan count over the last `days` civil days,
// capped at limit entries.
func (a *Analytics) TopActive(ctx context.Context, days, limit int) ([]TopSubject, error) {
	if days < 1 {
		days = 1
	}
	_, windowEnd := a.civilDayBounds(time.Now())
	windowStart := windowEnd.AddDate(0, 0, -days)

	logs, err := a.Store.QueryScans(ctx, store.ScanFilter{From: &windowStart, To: &windowEnd}, 1_000_000)
	if err != nil {
		return nil, fmt.Errorf("top_active: %w", err)
	}

	counts := make(map[uint64]int)
	for _, l := range logs {
		if l.SubjectID == nil {
			continue
		}
		counts[*l.SubjectID]++
	}

	out := make([]TopSubject, 0, len(counts))
	for id, c := range counts {
		out = append(out, TopSubject{SubjectID: id, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].SubjectID < out[j].SubjectID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SearchFilters narrows the Search projection.
type SearchFilters struct {
	SubjectCodeLike string
	Direction       model.Direction
	Result          model.ScanResult
	From, To        *time.Time
	Limit           int
}

// Search runs an ad-hoc filtered query over the scan log, capped at
// filters.Limit (defaulting to 50).
func (a *Analytics) Search(ctx context.Context, filters SearchFilters) ([]model.ScanLog, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	return a.Store.QueryScans(ctx, store.ScanFilter{
		SubjectCodeLike: filters.SubjectCodeLike,
		Direction:       filters.Direction,
		Result:          filters.Result,
		From:            filters.From,
		To:              filters.To,
	}, limit)
}
