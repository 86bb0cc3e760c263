package l1

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go-offline-cache/internal/config"
	"go-offline-cache/internal/models"
)

func newTestBigCache(t *testing.T) *BigCache {
	t.Helper()
	cfg := &config.BigCacheConfig{Enabled: true, Size: 10, LifeWindow: time.Hour, MaxEntrySize: 1024}
	cache, err := NewBigCache(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func testEntry(body string) *models.CacheEntry {
	return &models.CacheEntry{
		Method:   http.MethodGet,
		URL:      "https://example.com/",
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": []string{"text/html"}},
		Body:     []byte(body),
		Type:     models.ResponseTypeBasic,
		StoredAt: time.Now().Unix(),
	}
}

func TestNewBigCache(t *testing.T) {
	cache := newTestBigCache(t)

	assert.NotNil(t, cache.cache)
	assert.NotNil(t, cache.logger)
	assert.True(t, cache.metricsScheduler.IsRunning())
}

func TestBigCache_Set_And_Get(t *testing.T) {
	cache := newTestBigCache(t)

	entry := testEntry("<html></html>")
	require.NoError(t, cache.Set("v1", "GET https://example.com/", entry))

	result, found := cache.Get("v1", "GET https://example.com/")

	assert.True(t, found)
	require.NotNil(t, result)
	assert.Equal(t, entry.Body, result.Body)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.Equal(t, "text/html", result.Header.Get("Content-Type"))
	assert.Equal(t, models.ResponseTypeBasic, result.Type)
}

func TestBigCache_Get_NotFound(t *testing.T) {
	cache := newTestBigCache(t)

	result, found := cache.Get("v1", "non-existent-key")

	assert.False(t, found)
	assert.Nil(t, result)
}

func TestBigCache_Get_OtherGeneration(t *testing.T) {
	cache := newTestBigCache(t)

	require.NoError(t, cache.Set("v1", "key", testEntry("one")))

	_, found := cache.Get("v2", "key")
	assert.False(t, found)
}

func TestBigCache_Get_CorruptedEntry(t *testing.T) {
	cache := newTestBigCache(t)

	require.NoError(t, cache.cache.Set(entryKey("v1", "key"), []byte("invalid-json")))

	result, found := cache.Get("v1", "key")
	assert.False(t, found)
	assert.Nil(t, result)

	// Corrupted entry is removed
	_, err := cache.cache.Get(entryKey("v1", "key"))
	assert.Error(t, err)
}

func TestBigCache_Set_Overwrites(t *testing.T) {
	cache := newTestBigCache(t)

	require.NoError(t, cache.Set("v1", "key", testEntry("first")))
	require.NoError(t, cache.Set("v1", "key", testEntry("second")))

	result, found := cache.Get("v1", "key")
	assert.True(t, found)
	assert.Equal(t, []byte("second"), result.Body)
}

func TestBigCache_Generations(t *testing.T) {
	cache := newTestBigCache(t)

	require.NoError(t, cache.Open("v2"))
	require.NoError(t, cache.Set("v1", "key", testEntry("x")))

	names, err := cache.Generations()
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, names)
}

func TestBigCache_DeleteGeneration(t *testing.T) {
	cache := newTestBigCache(t)

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key-%d", i)
		require.NoError(t, cache.Set("v1", key, testEntry(key)))
		require.NoError(t, cache.Set("v2", key, testEntry(key)))
	}
	require.NoError(t, cache.SetActive("v1"))

	require.NoError(t, cache.DeleteGeneration("v1"))

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key-%d", i)
		_, found := cache.Get("v1", key)
		assert.False(t, found)
		_, found = cache.Get("v2", key)
		assert.True(t, found)
	}

	names, err := cache.Generations()
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, names)

	_, ok := cache.Active()
	assert.False(t, ok)
}

func TestBigCache_DeleteGeneration_Unknown(t *testing.T) {
	cache := newTestBigCache(t)

	assert.NoError(t, cache.DeleteGeneration("missing"))
}

func TestBigCache_Active(t *testing.T) {
	cache := newTestBigCache(t)

	_, ok := cache.Active()
	assert.False(t, ok)

	require.NoError(t, cache.SetActive("v3"))
	name, ok := cache.Active()
	assert.True(t, ok)
	assert.Equal(t, "v3", name)
}

func TestBigCache_Concurrent_Access(t *testing.T) {
	cache := newTestBigCache(t)

	numGoroutines := 10
	numOperations := 100

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				key := fmt.Sprintf("concurrent-key-%d-%d", id, j)
				value := fmt.Sprintf("value-%d-%d", id, j)

				assert.NoError(t, cache.Set("v1", key, testEntry(value)))

				result, found := cache.Get("v1", key)
				if found {
					assert.Equal(t, []byte(value), result.Body)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestBigCache_GetStats(t *testing.T) {
	cache := newTestBigCache(t)

	require.NoError(t, cache.Set("v1", "a", testEntry("a")))
	require.NoError(t, cache.Set("v1", "b", testEntry("b")))

	capacity, used := cache.GetStats()
	assert.Equal(t, int64(10*1024*1024), capacity)
	assert.Greater(t, used, int64(0))
}
