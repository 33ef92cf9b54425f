// Package tasks defines the ingestion task that flows through the task queue,
// and an in-process queue used when Kafka is not configured.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"documind/pkg/log"
)

// MaxAttempts is how many times a task is tried before it is dropped.
const MaxAttempts = 3

// ErrQueueClosed is returned when publishing to a closed queue.
var ErrQueueClosed = errors.New("task queue closed")

// IngestTask represents one document waiting for extract, chunk, embed and index.
type IngestTask struct {
	DocumentID     uint64 `json:"document_id"`
	Name           string `json:"name"`
	Path           string `json:"path,omitempty"`
	Type           string `json:"type"`
	Size           int64  `json:"size"`
	ObjectKey      string `json:"object_key"`
	EmbeddingModel string `json:"embedding_model"`
}

// Encode serialises the task for transport.
func (t IngestTask) Encode() ([]byte, error) {
	return json.Marshal(t)
}

// Decode parses a serialised task.
func Decode(data []byte) (IngestTask, error) {
	var t IngestTask
	err := json.Unmarshal(data, &t)
	return t, err
}

// Handler processes a task. This decouples the queue from the concrete pipeline implementation.
type Handler interface {
	Process(ctx context.Context, task IngestTask) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task IngestTask) error

func (f HandlerFunc) Process(ctx context.Context, task IngestTask) error {
	return f(ctx, task)
}

// Queue publishes tasks and delivers them to a handler.
type Queue interface {
	Publish(ctx context.Context, task IngestTask) error
	// Start consumes tasks until ctx is cancelled.
	Start(ctx context.Context, handler Handler)
	Close() error
}

// MemoryQueue is a buffered in-process queue with the same retry semantics as the Kafka consumer.
type MemoryQueue struct {
	ch     chan IngestTask
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewMemoryQueue creates an in-process queue.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{ch: make(chan IngestTask, buffer)}
}

func (q *MemoryQueue) Publish(ctx context.Context, task IngestTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Start(ctx context.Context, handler Handler) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		log.Info("[MemoryQueue] 进程内任务队列已启动")
		for {
			select {
			case <-ctx.Done():
				return
			case task, ok := <-q.ch:
				if !ok {
					return
				}
				RunWithRetry(ctx, handler, task)
			}
		}
	}()
}

// Close stops accepting tasks and waits for the consumer to drain.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}

// RunWithRetry runs the handler up to MaxAttempts times and reports whether it succeeded.
func RunWithRetry(ctx context.Context, handler Handler, task IngestTask) bool {
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		err := handler.Process(ctx, task)
		if err == nil {
			return true
		}
		log.Errorf("处理文档任务失败: document=%d, attempt=%d, error: %v", task.DocumentID, attempt, err)
		if ctx.Err() != nil {
			return false
		}
	}
	log.Errorf("文档任务多次失败(>=%d)，放弃重试: document=%d", MaxAttempts, task.DocumentID)
	return false
}
