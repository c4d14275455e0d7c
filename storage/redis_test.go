package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fintrackhq/fintrack/storage"
)

func TestMemoryTokenCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)
	cache := storage.NewMemoryTokenCache(func() time.Time { return now })

	cache.Set(ctx, "tink:client:abc", "token-1", time.Hour)

	got, ok := cache.Get(ctx, "tink:client:abc")
	assert.True(t, ok)
	assert.Equal(t, "token-1", got)

	_, ok = cache.Get(ctx, "missing")
	assert.False(t, ok)

	// advance past expiry
	now = now.Add(time.Hour + time.Second)
	_, ok = cache.Get(ctx, "tink:client:abc")
	assert.False(t, ok)

	cache.Set(ctx, "tink:client:abc", "token-2", time.Hour)
	cache.Delete(ctx, "tink:client:abc")
	_, ok = cache.Get(ctx, "tink:client:abc")
	assert.False(t, ok)
}
