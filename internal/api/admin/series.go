package admin

import (
	"context"
	"time"

	"github.com/qr-tracker/qr-tracker/internal/db/models"
	"github.com/qr-tracker/qr-tracker/internal/db/repositories"
)

// Bucket labels emitted in scans[].date, one per grouping
var bucketLayouts = map[string]string{
	repositories.GroupByHour:  "2006-01-02 15:00",
	repositories.GroupByDay:   "2006-01-02",
	repositories.GroupByMonth: "2006-01",
}

// Display formats handed to the dashboard alongside the series
var displayFormats = map[string]string{
	repositories.GroupByHour:  "%H:00",
	repositories.GroupByDay:   "%Y-%m-%d",
	repositories.GroupByMonth: "%Y-%m",
}

// TimeRange is the window and granularity of a dashboard query
type TimeRange struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	GroupBy    string    `json:"group_by"`
	DateFormat string    `json:"date_format"`
}

// ResolveTimeRange maps a time_range key to a window ending at now. An empty key
// is 30d. Unknown keys mean "all", which starts at the first scan (firstScan) or
// 30 days ago.
func ResolveTimeRange(ctx context.Context, key string, now time.Time, firstScan func(context.Context) (*time.Time, error)) (TimeRange, error) {
	now = now.UTC()
	tr := TimeRange{End: now, GroupBy: repositories.GroupByDay}
	switch key {
	case "24h":
		tr.Start, tr.GroupBy = now.Add(-24*time.Hour), repositories.GroupByHour
	case "3d":
		tr.Start = now.AddDate(0, 0, -3)
	case "week":
		tr.Start = now.AddDate(0, 0, -7)
	case "", "30d":
		tr.Start = now.AddDate(0, 0, -30)
	case "60d":
		tr.Start = now.AddDate(0, 0, -60)
	case "90d":
		tr.Start = now.AddDate(0, 0, -90)
	case "6m":
		tr.Start, tr.GroupBy = now.AddDate(0, 0, -180), repositories.GroupByMonth
	case "year":
		tr.Start, tr.GroupBy = now.AddDate(0, 0, -365), repositories.GroupByMonth
	default:
		tr.GroupBy = repositories.GroupByMonth
		first, err := firstScan(ctx)
		if err != nil {
			return TimeRange{}, err
		}
		if first != nil {
			tr.Start = first.UTC()
		} else {
			tr.Start = now.AddDate(0, 0, -30)
		}
	}
	tr.DateFormat = displayFormats[tr.GroupBy]
	return tr, nil
}

// truncate floors t to the start of its bucket
func truncate(t time.Time, groupBy string) time.Time {
	t = t.UTC()
	switch groupBy {
	case repositories.GroupByHour:
		return t.Truncate(time.Hour)
	case repositories.GroupByMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func next(t time.Time, groupBy string) time.Time {
	switch groupBy {
	case repositories.GroupByHour:
		return t.Add(time.Hour)
	case repositories.GroupByMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// ZeroFill expands sparse buckets into one entry per bucket between start and
// end inclusive, oldest first.
func ZeroFill(buckets []models.BucketCount, start, end time.Time, groupBy string) []models.DateCount {
	layout := bucketLayouts[groupBy]
	counts := make(map[string]int64, len(buckets))
	for _, b := range buckets {
		counts[b.Bucket.Format(layout)] += b.Count
	}

	out := []models.DateCount{}
	last := truncate(end, groupBy)
	for t := truncate(start, groupBy); !t.After(last); t = next(t, groupBy) {
		label := t.Format(layout)
		out = append(out, models.DateCount{Date: label, Count: counts[label]})
	}
	return out
}

// lastNDays returns the start of the day n-1 days before now, so that the
// window covers n calendar days including today
func lastNDays(now time.Time, n int) time.Time {
	return truncate(now, repositories.GroupByDay).AddDate(0, 0, -(n - 1))
}

func sumCounts(series []models.DateCount) int64 {
	var total int64
	for _, d := range series {
		total += d.Count
	}
	return total
}
