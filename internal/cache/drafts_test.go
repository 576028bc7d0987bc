package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedis connects to REDIS_URL. Skipped when it is unset or unreachable.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("Skipping integration test: REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := Connect(ctx, url)
	if err != nil {
		t.Skipf("Skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestDraftStore_RoundTrip(t *testing.T) {
	client := setupRedis(t)
	store := NewDraftStore(client, time.Minute)
	ctx := context.Background()
	key := "survey_draft:test-" + uuid.NewString()
	t.Cleanup(func() { _ = store.Delete(ctx, key) })

	blob, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, blob)

	require.NoError(t, store.Save(ctx, key, []byte(`{"currentStep":2}`)))
	blob, err = store.Load(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"currentStep":2}`, string(blob))

	ttl, err := store.TTL(ctx, key)
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	require.NoError(t, store.Delete(ctx, key))
	blob, err = store.Load(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, blob)
}

func TestNewDraftStore_DefaultTTL(t *testing.T) {
	s := NewDraftStore(nil, 0)
	assert.Equal(t, DefaultDraftTTL, s.ttl)
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "not a url")
	assert.ErrorContains(t, err, "invalid redis url")
}
