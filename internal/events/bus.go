// Package events 提供进程内的发布订阅总线，用于通知文档库的每一次变更。
package events

import (
	"sync"
	"time"
)

// Type 表示事件种类。
type Type string

const (
	DocumentsAdded  Type = "documents_added"
	DocumentDeleted Type = "document_deleted"
	DocumentUpdated Type = "document_updated"
	ActivityAdded   Type = "activity_added"
	UploadProgress  Type = "upload_progress"
	ReindexProgress Type = "reindex_progress"
)

// Event 是总线上传递的一条消息。Data 的具体类型由 Type 决定。
type Event struct {
	Type      Type        `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Bus 把事件扇出给所有订阅者。发布方永远不会被慢速订阅者阻塞，
// 订阅者缓冲区满时事件被丢弃。
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
	buffer int
}

// NewBus 创建一个总线，buffer 是每个订阅者的缓冲区大小。
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe 返回事件通道以及取消订阅的函数。取消后通道会被关闭。
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Publish 非阻塞地发布一个事件。nil 总线上的调用是安全的。
func (b *Bus) Publish(t Type, data interface{}) {
	if b == nil {
		return
	}
	ev := Event{Type: t, Data: data, Timestamp: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers 返回当前订阅者数量。
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
