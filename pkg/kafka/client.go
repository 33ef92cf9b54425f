// Package kafka 提供了基于 Kafka 的入库任务队列。
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"documind/internal/config"
	"documind/pkg/log"
	"documind/pkg/tasks"
)

// AttemptTracker 记录每个任务被投递的次数，用于识别反复导致消费者崩溃的消息。
type AttemptTracker interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string)
}

// Queue 是 tasks.Queue 的 Kafka 实现。
type Queue struct {
	cfg      config.KafkaConfig
	producer *kafka.Writer
	attempts AttemptTracker
	wg       sync.WaitGroup
}

// NewQueue 初始化 Kafka 生产者。attempts 为 nil 时在内存中计数。
func NewQueue(cfg config.KafkaConfig, attempts AttemptTracker) *Queue {
	if attempts == nil {
		attempts = NewMemoryAttempts()
	}
	producer := &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Queue{cfg: cfg, producer: producer, attempts: attempts}
}

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Publish 发送一个入库任务到 Kafka。
func (q *Queue) Publish(ctx context.Context, task tasks.IngestTask) error {
	taskBytes, err := task.Encode()
	if err != nil {
		return err
	}
	return q.producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprint(task.DocumentID)),
		Value: taskBytes,
	})
}

// Start 启动一个 Kafka 消费者来处理入库任务，直到 ctx 被取消。
func (q *Queue) Start(ctx context.Context, handler tasks.Handler) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(q.cfg),
		Topic:    q.cfg.Topic,
		GroupID:  q.cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", q.cfg.Topic)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer func() {
			if err := r.Close(); err != nil {
				log.Errorf("关闭 Kafka 消费者失败: %v", err)
			}
		}()
		q.consume(ctx, r, handler)
	}()
}

func (q *Queue) consume(ctx context.Context, r *kafka.Reader, handler tasks.Handler) {
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			time.Sleep(time.Second)
			continue
		}

		if q.process(ctx, m.Value, handler) {
			q.commit(ctx, r, m)
		}
	}
}

// process 处理一条消息并返回是否应提交 offset。
// 失败的任务在进程内按 tasks.RunWithRetry 重试，结束后无论成败都提交，
// 因为 FetchMessage 不会重新投递未提交的消息，后续消息的提交也会越过它。
// attempts 统计的是投递次数：消费者在处理中途崩溃时消息会被重新投递，
// 超过 tasks.MaxAttempts 次后直接丢弃。
func (q *Queue) process(ctx context.Context, value []byte, handler tasks.Handler) bool {
	task, err := tasks.Decode(value)
	if err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		// 消息格式错误，直接提交，避免阻塞队列
		return true
	}

	attemptsKey := fmt.Sprintf("kafka:attempts:%d", task.DocumentID)
	deliveries, err := q.attempts.Incr(ctx, attemptsKey)
	if err != nil {
		log.Warnf("记录任务投递次数失败: document=%d, error: %v", task.DocumentID, err)
	} else if deliveries > tasks.MaxAttempts {
		log.Errorf("文档任务已投递 %d 次仍未完成，放弃: document=%d", deliveries, task.DocumentID)
		q.attempts.Reset(ctx, attemptsKey)
		return true
	}

	ok := tasks.RunWithRetry(ctx, handler, task)
	if !ok && ctx.Err() != nil {
		// 关闭过程中被中断，不提交，重启后重新投递
		return false
	}
	if ok {
		log.Infof("文档任务处理成功: document=%d", task.DocumentID)
	}
	q.attempts.Reset(ctx, attemptsKey)
	return true
}

func (q *Queue) commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}

// Close 关闭生产者并等待消费者退出（消费者随 Start 的 ctx 结束）。
func (q *Queue) Close() error {
	err := q.producer.Close()
	q.wg.Wait()
	return err
}

// RedisAttempts 使用 Redis 计数，多个消费者实例共享失败次数。
type RedisAttempts struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisAttempts(rdb *redis.Client) *RedisAttempts {
	return &RedisAttempts{rdb: rdb, ttl: 24 * time.Hour}
}

func (a *RedisAttempts) Incr(ctx context.Context, key string) (int64, error) {
	n, err := a.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = a.rdb.Expire(ctx, key, a.ttl).Err()
	return n, nil
}

func (a *RedisAttempts) Reset(ctx context.Context, key string) {
	_ = a.rdb.Del(ctx, key).Err()
}

// MemoryAttempts 是进程内的失败计数。
type MemoryAttempts struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryAttempts() *MemoryAttempts {
	return &MemoryAttempts{counts: make(map[string]int64)}
}

func (a *MemoryAttempts) Incr(_ context.Context, key string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[key]++
	return a.counts[key], nil
}

func (a *MemoryAttempts) Reset(_ context.Context, key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.counts, key)
}
