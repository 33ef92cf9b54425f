package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueDelivers(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan IngestTask, 2)
	q.Start(ctx, HandlerFunc(func(_ context.Context, task IngestTask) error {
		got <- task
		return nil
	}))

	require.NoError(t, q.Publish(ctx, IngestTask{DocumentID: 7, Name: "a.txt"}))
	select {
	case task := <-got:
		assert.Equal(t, uint64(7), task.DocumentID)
	case <-time.After(2 * time.Second):
		t.Fatal("task not delivered")
	}

	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Publish(ctx, IngestTask{}), ErrQueueClosed)
}

func TestRunWithRetry(t *testing.T) {
	var calls int32
	ok := RunWithRetry(context.Background(), HandlerFunc(func(context.Context, IngestTask) error {
		if atomic.AddInt32(&calls, 1) < 2 {
			return errors.New("transient")
		}
		return nil
	}), IngestTask{})
	assert.True(t, ok)
	assert.Equal(t, int32(2), calls)

	calls = 0
	ok = RunWithRetry(context.Background(), HandlerFunc(func(context.Context, IngestTask) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("permanent")
	}), IngestTask{})
	assert.False(t, ok)
	assert.Equal(t, int32(MaxAttempts), calls)
}

func TestTaskEncoding(t *testing.T) {
	in := IngestTask{DocumentID: 3, Name: "b.pdf", ObjectKey: "documents/x.pdf", EmbeddingModel: "m"}
	data, err := in.Encode()
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
