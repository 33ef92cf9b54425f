package service

import (
	"context"
	"sync"
	"time"

	"documind/internal/model"
)

// Debouncer 合并同一会话在短时间内的连续请求：只有最后一个请求会继续执行，
// 被取代的请求返回 ErrSuperseded。
type Debouncer struct {
	delay time.Duration

	mu   sync.Mutex
	seq  uint64
	last map[string]uint64
}

// NewDebouncer 创建一个 Debouncer。delay <= 0 时不做合并。
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay, last: make(map[string]uint64)}
}

// Wait 等待 delay，期间若同一 key 有更新的请求到达则返回 ErrSuperseded。key 为空时立即返回。
func (d *Debouncer) Wait(ctx context.Context, key string) error {
	if key == "" || d.delay <= 0 {
		return nil
	}
	d.mu.Lock()
	d.seq++
	mine := d.seq
	d.last[key] = mine
	d.mu.Unlock()

	timer := time.NewTimer(d.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		d.release(key, mine)
		return ctx.Err()
	case <-timer.C:
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last[key] != mine {
		return model.ErrSuperseded
	}
	delete(d.last, key)
	return nil
}

func (d *Debouncer) release(key string, mine uint64) {
	d.mu.Lock()
	if d.last[key] == mine {
		delete(d.last, key)
	}
	d.mu.Unlock()
}
