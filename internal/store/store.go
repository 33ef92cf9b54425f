// Package store 实现了文档与活动日志的内存文档库，它是整个应用唯一的事实来源。
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"documind/internal/events"
	"documind/internal/model"
	"documind/pkg/log"
)

// Store 保存文档集合与有界的活动日志。所有方法都可以并发调用。
type Store struct {
	mu         sync.RWMutex
	documents  []model.Document
	activities []model.Activity // index 0 is newest
	stats      model.CollectionStats

	lastDocumentID uint64
	lastActivityID uint64

	retention int
	bus       *events.Bus
	persister Persister
	now       func() time.Time
}

// New 创建一个空的文档库。
func New(opts ...Option) *Store {
	s := &Store{
		retention: DefaultActivityRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load 从持久化后端恢复文档、活动日志和 ID 计数器。未配置持久化时什么都不做。
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	docs, err := s.persister.LoadDocuments(ctx)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	acts, err := s.persister.LoadActivities(ctx, s.retention)
	if err != nil {
		return fmt.Errorf("load activities: %w", err)
	}
	maxDoc, maxAct, err := s.persister.MaxIDs(ctx)
	if err != nil {
		return fmt.Errorf("load id counters: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = docs
	s.activities = acts
	s.lastDocumentID = maxDoc
	s.lastActivityID = maxAct
	s.stats = model.CollectionStats{}
	for _, d := range docs {
		s.countLocked(d, 1)
	}
	log.Infof("[Store] 已恢复 %d 个文档和 %d 条活动记录", len(docs), len(acts))
	return nil
}

func validateDocument(d model.Document) error {
	switch {
	case d.Name == "":
		return fmt.Errorf("%w: document name is empty", model.ErrValidation)
	case d.Size < 0:
		return fmt.Errorf("%w: document %q has negative size %d", model.ErrValidation, d.Name, d.Size)
	case d.Chunks < 0:
		return fmt.Errorf("%w: document %q has negative chunk count %d", model.ErrValidation, d.Name, d.Chunks)
	case !d.Status.Valid():
		return fmt.Errorf("%w: document %q has unknown status %q", model.ErrValidation, d.Name, d.Status)
	}
	return nil
}

// AddDocuments 校验并按输入顺序追加一批文档，返回分配了 ID 的副本。
// 任一文档校验失败时整批拒绝。不做去重。
func (s *Store) AddDocuments(ctx context.Context, docs []model.Document) ([]model.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	for _, d := range docs {
		if err := validateDocument(d); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	now := s.now()
	added := make([]model.Document, len(docs))
	next := s.lastDocumentID
	for i, d := range docs {
		next++
		d.ID = next
		if d.Type == "" {
			d.Type = model.UnknownType
		}
		if d.UploadDate.IsZero() {
			d.UploadDate = now
		}
		added[i] = d
	}

	if s.persister != nil {
		if err := s.persister.SaveDocuments(ctx, added); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("persist documents: %w", err)
		}
	}

	s.lastDocumentID = next
	s.documents = append(s.documents, added...)
	for _, d := range added {
		s.countLocked(d, 1)
	}
	s.mu.Unlock()

	s.bus.Publish(events.DocumentsAdded, cloneDocuments(added))
	return added, nil
}

// DeleteDocument 删除指定 ID 的文档。ID 不存在时是一个 no-op，返回 false。
func (s *Store) DeleteDocument(ctx context.Context, id uint64) (model.Document, bool, error) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return model.Document{}, false, nil
	}
	if s.persister != nil {
		if err := s.persister.DeleteDocument(ctx, id); err != nil {
			s.mu.Unlock()
			return model.Document{}, false, fmt.Errorf("persist delete: %w", err)
		}
	}
	removed := s.documents[idx]
	s.documents = append(s.documents[:idx], s.documents[idx+1:]...)
	s.countLocked(removed, -1)
	s.mu.Unlock()

	s.bus.Publish(events.DocumentDeleted, removed)
	return removed, true, nil
}

// UpdateDocument 对指定文档应用修改。ID 和上传时间不能被修改。
func (s *Store) UpdateDocument(ctx context.Context, id uint64, mutate func(*model.Document)) (model.Document, error) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return model.Document{}, fmt.Errorf("document %d: %w", id, model.ErrNotFound)
	}
	old := s.documents[idx]
	updated := old
	mutate(&updated)
	updated.ID = old.ID
	updated.UploadDate = old.UploadDate
	if err := validateDocument(updated); err != nil {
		s.mu.Unlock()
		return model.Document{}, err
	}
	if s.persister != nil {
		if err := s.persister.UpdateDocument(ctx, updated); err != nil {
			s.mu.Unlock()
			return model.Document{}, fmt.Errorf("persist update: %w", err)
		}
	}
	s.documents[idx] = updated
	s.countLocked(old, -1)
	s.countLocked(updated, 1)
	s.mu.Unlock()

	s.bus.Publish(events.DocumentUpdated, updated)
	return updated, nil
}

// AddActivity 追加一条活动记录，ID 和时间戳由文档库分配（时间戳非零时保留）。
// 新记录位于日志头部，超过保留条数的最旧记录被丢弃。
func (s *Store) AddActivity(ctx context.Context, a model.Activity) (model.Activity, error) {
	if a.Type == "" {
		a.Type = model.ActivityOther
	}

	s.mu.Lock()
	a.ID = s.lastActivityID + 1
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now()
	}
	if s.persister != nil {
		if err := s.persister.SaveActivity(ctx, a); err != nil {
			s.mu.Unlock()
			return model.Activity{}, fmt.Errorf("persist activity: %w", err)
		}
	}
	s.lastActivityID = a.ID

	s.activities = append(s.activities, model.Activity{})
	copy(s.activities[1:], s.activities)
	s.activities[0] = a
	if len(s.activities) > s.retention {
		s.activities = s.activities[:s.retention]
	}
	s.mu.Unlock()

	s.bus.Publish(events.ActivityAdded, a)
	return a, nil
}

// Documents 返回按插入顺序排列的文档副本。
func (s *Store) Documents() []model.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneDocuments(s.documents)
}

// Document 按 ID 查找文档。
func (s *Store) Document(id uint64) (model.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return model.Document{}, false
	}
	return s.documents[idx], true
}

// Activities 返回保留的活动日志，最新的在前。
func (s *Store) Activities() []model.Activity {
	return s.RecentActivities(-1)
}

// RecentActivities 返回最新的 n 条活动记录，n < 0 时返回全部。
func (s *Store) RecentActivities(n int) []model.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n < 0 || n > len(s.activities) {
		n = len(s.activities)
	}
	out := make([]model.Activity, n)
	copy(out, s.activities[:n])
	return out
}

// Stats 返回增量维护的集合计数。
func (s *Store) Stats() model.CollectionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Len 返回文档数量。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents)
}

// Bus 返回文档库的事件总线，可能为 nil。
func (s *Store) Bus() *events.Bus {
	return s.bus
}

func (s *Store) indexLocked(id uint64) int {
	for i := range s.documents {
		if s.documents[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) countLocked(d model.Document, sign int) {
	s.stats.Documents += sign
	s.stats.Chunks += sign * d.Chunks
	switch d.Status {
	case model.StatusFailed:
		s.stats.Failed += sign
	case model.StatusProcessing:
		s.stats.Processing += sign
	case model.StatusProcessed:
		s.stats.Processed += sign
	}
}

func cloneDocuments(docs []model.Document) []model.Document {
	out := make([]model.Document, len(docs))
	copy(out, docs)
	return out
}
