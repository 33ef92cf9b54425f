package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", strings.NewReader("hello"), 5, "text/plain"))
	rc, err := s.Get(ctx, "k")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestNewObjectKey(t *testing.T) {
	a := NewObjectKey("report.pdf")
	b := NewObjectKey("report.pdf")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "documents/"))
	assert.True(t, strings.HasSuffix(a, ".pdf"))
}
