package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/internal/config"
	"documind/pkg/tasks"
)

func TestBrokersSplit(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokers(config.KafkaConfig{Brokers: " a:9092, b:9092 ,"}))
	assert.Empty(t, brokers(config.KafkaConfig{}))
}

func TestMemoryAttempts(t *testing.T) {
	a := NewMemoryAttempts()
	ctx := context.Background()
	n, _ := a.Incr(ctx, "k")
	assert.Equal(t, int64(1), n)
	n, _ = a.Incr(ctx, "k")
	assert.Equal(t, int64(2), n)
	a.Reset(ctx, "k")
	n, _ = a.Incr(ctx, "k")
	assert.Equal(t, int64(1), n)
}

func TestRedisAttempts(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	a := NewRedisAttempts(rdb)
	ctx := context.Background()
	n, err := a.Incr(ctx, "kafka:attempts:1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, mr.TTL("kafka:attempts:1") > 0)

	a.Reset(ctx, "kafka:attempts:1")
	assert.False(t, mr.Exists("kafka:attempts:1"))
}

func encodedTask(t *testing.T, id uint64) []byte {
	b, err := tasks.IngestTask{DocumentID: id, Name: "a.txt"}.Encode()
	require.NoError(t, err)
	return b
}

// flaky 在前 failures 次调用时返回错误。
func flaky(failures int, calls *int) tasks.Handler {
	return tasks.HandlerFunc(func(context.Context, tasks.IngestTask) error {
		*calls++
		if *calls <= failures {
			return errors.New("store write failed")
		}
		return nil
	})
}

func TestProcessRetriesFailedTaskBeforeCommit(t *testing.T) {
	attempts := NewMemoryAttempts()
	q := &Queue{attempts: attempts}
	ctx := context.Background()

	calls := 0
	commit := q.process(ctx, encodedTask(t, 7), flaky(2, &calls))
	assert.True(t, commit)
	assert.Equal(t, 3, calls)

	// 成功后投递计数被清零
	n, _ := attempts.Incr(ctx, "kafka:attempts:7")
	assert.Equal(t, int64(1), n)
}

func TestProcessCommitsAfterExhaustingRetries(t *testing.T) {
	q := &Queue{attempts: NewMemoryAttempts()}
	calls := 0
	assert.True(t, q.process(context.Background(), encodedTask(t, 1), flaky(100, &calls)))
	assert.Equal(t, tasks.MaxAttempts, calls)
}

func TestProcessDropsTaskRedeliveredTooOften(t *testing.T) {
	attempts := NewMemoryAttempts()
	q := &Queue{attempts: attempts}
	ctx := context.Background()
	// 模拟消费者在处理中途崩溃了 MaxAttempts 次
	for i := 0; i < tasks.MaxAttempts; i++ {
		_, _ = attempts.Incr(ctx, "kafka:attempts:3")
	}

	calls := 0
	assert.True(t, q.process(ctx, encodedTask(t, 3), flaky(0, &calls)))
	assert.Zero(t, calls)
}

func TestProcessDoesNotCommitWhenShuttingDown(t *testing.T) {
	q := &Queue{attempts: NewMemoryAttempts()}
	ctx, cancel := context.WithCancel(context.Background())
	handler := tasks.HandlerFunc(func(context.Context, tasks.IngestTask) error {
		cancel()
		return context.Canceled
	})
	assert.False(t, q.process(ctx, encodedTask(t, 4), handler))
}

func TestProcessCommitsMalformedMessage(t *testing.T) {
	q := &Queue{attempts: NewMemoryAttempts()}
	calls := 0
	assert.True(t, q.process(context.Background(), []byte("not json"), flaky(0, &calls)))
	assert.Zero(t, calls)
}
