package view

import (
	"time"

	"documind/internal/model"
)

const (
	TimelineSize        = 10
	NoActivityHint      = "No recent activity"
	timelineClockFormat = "03:04 PM"
)

// TimelineEntry 是活动时间线中的一行。
type TimelineEntry struct {
	ID        uint64             `json:"id"`
	Type      model.ActivityType `json:"type"`
	Icon      string             `json:"icon"`
	Message   string             `json:"message"`
	Time      string             `json:"time"`
	Timestamp time.Time          `json:"timestamp"`
}

// Timeline 是活动时间线视图。
type Timeline struct {
	Entries []TimelineEntry `json:"entries"`
	Hint    string          `json:"hint,omitempty"`
}

// Icon 返回活动类型对应的图标名。
func Icon(t model.ActivityType) string {
	switch t {
	case model.ActivityUpload:
		return "upload"
	case model.ActivityModelChange:
		return "settings"
	case model.ActivityDelete:
		return "trash"
	default:
		return "clock"
	}
}

// BuildTimeline 取最新的至多 10 条活动（输入须按新到旧排列），时间按 loc 格式化为 hh:mm AM/PM。
func BuildTimeline(activities []model.Activity, loc *time.Location) Timeline {
	if loc == nil {
		loc = time.Local
	}
	if len(activities) == 0 {
		return Timeline{Entries: []TimelineEntry{}, Hint: NoActivityHint}
	}
	n := len(activities)
	if n > TimelineSize {
		n = TimelineSize
	}
	entries := make([]TimelineEntry, 0, n)
	for _, a := range activities[:n] {
		entries = append(entries, TimelineEntry{
			ID:        a.ID,
			Type:      a.Type,
			Icon:      Icon(a.Type),
			Message:   a.Message,
			Time:      a.Timestamp.In(loc).Format(timelineClockFormat),
			Timestamp: a.Timestamp,
		})
	}
	return Timeline{Entries: entries}
}
