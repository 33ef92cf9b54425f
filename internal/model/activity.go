package model

import "time"

// ActivityType 区分活动日志条目的来源。
type ActivityType string

const (
	ActivityUpload      ActivityType = "upload"
	ActivityModelChange ActivityType = "model_change"
	ActivityDelete      ActivityType = "delete"
	ActivityReindex     ActivityType = "reindex"
	ActivityOther       ActivityType = "other"
)

// Activity 是一条只追加的活动日志记录。
type Activity struct {
	ID        uint64       `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Type      ActivityType `gorm:"type:varchar(32);not null" json:"type"`
	Message   string       `gorm:"type:text;not null" json:"message"`
	Timestamp time.Time    `gorm:"not null;index" json:"timestamp"`
}

func (Activity) TableName() string {
	return "activities"
}

// CollectionStats 是文档集合的汇总计数。
type CollectionStats struct {
	Documents  int `json:"documents"`
	Chunks     int `json:"chunks"`
	Failed     int `json:"failed"`
	Processing int `json:"processing"`
	Processed  int `json:"processed"`
}
