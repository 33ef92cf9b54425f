package store

import (
	"context"
	"time"

	"documind/internal/events"
	"documind/internal/model"
)

const (
	DefaultActivityRetention = 200
	MinActivityRetention     = 10
)

// Persister 是文档库的持久化后端。写操作先落盘再更新内存。
type Persister interface {
	SaveDocuments(ctx context.Context, docs []model.Document) error
	UpdateDocument(ctx context.Context, doc model.Document) error
	DeleteDocument(ctx context.Context, id uint64) error
	SaveActivity(ctx context.Context, activity model.Activity) error
	LoadDocuments(ctx context.Context) ([]model.Document, error)
	LoadActivities(ctx context.Context, limit int) ([]model.Activity, error)
	MaxIDs(ctx context.Context) (documentID, activityID uint64, err error)
}

// Option 配置 Store。
type Option func(*Store)

// WithActivityRetention 设置活动日志保留的条数，小于下限时使用下限。
func WithActivityRetention(n int) Option {
	return func(s *Store) {
		if n < MinActivityRetention {
			n = MinActivityRetention
		}
		s.retention = n
	}
}

// WithBus 设置变更通知总线。
func WithBus(bus *events.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithPersister 设置持久化后端。
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithClock 替换时间来源，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}
