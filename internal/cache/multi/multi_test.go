package multi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"go-offline-cache/internal/interfaces"
	"go-offline-cache/internal/interfaces/mock"
	"go-offline-cache/internal/models"
)

func newTestMultiCache(t *testing.T, enablePropagation bool) (*MultiCache, *mock.MockCache, *mock.MockCache) {
	t.Helper()
	ctrl := gomock.NewController(t)

	cache1 := mock.NewMockCache(ctrl)
	cache2 := mock.NewMockCache(ctrl)
	multiCache := NewMultiCache([]interfaces.Cache{cache1, cache2}, zap.NewNop(), enablePropagation)
	return multiCache, cache1, cache2
}

func TestNewMultiCache(t *testing.T) {
	mc, cache1, cache2 := newTestMultiCache(t, false)

	assert.Equal(t, 2, mc.GetCacheCount())
	assert.Equal(t, cache1, mc.caches[0])
	assert.Equal(t, cache2, mc.caches[1])
}

func TestMultiCache_Get_FirstCacheHit(t *testing.T) {
	mc, cache1, _ := newTestMultiCache(t, true)

	expected := &models.CacheEntry{Status: 200, Body: []byte("test-value")}
	cache1.EXPECT().Get("v1", "test-key").Return(expected, true).Times(1)
	// cache2.Get should not be called since cache1 has the value

	result := mc.GetWithLevel("v1", "test-key")

	assert.True(t, result.Found)
	assert.Equal(t, expected, result.Entry)
	assert.Equal(t, models.CacheLevelL1, result.Level)
}

func TestMultiCache_Get_SecondCacheHit(t *testing.T) {
	mc, cache1, cache2 := newTestMultiCache(t, false)

	expected := &models.CacheEntry{Status: 200, Body: []byte("test-value")}
	cache1.EXPECT().Get("v1", "test-key").Return(nil, false).Times(1)
	cache2.EXPECT().Get("v1", "test-key").Return(expected, true).Times(1)

	entry, found := mc.Get("v1", "test-key")

	assert.True(t, found)
	assert.Equal(t, expected, entry)
}

func TestMultiCache_Get_SecondCacheHit_Propagates(t *testing.T) {
	mc, cache1, cache2 := newTestMultiCache(t, true)

	expected := &models.CacheEntry{Status: 200, Body: []byte("test-value")}
	cache1.EXPECT().Get("v1", "test-key").Return(nil, false).Times(1)
	cache2.EXPECT().Get("v1", "test-key").Return(expected, true).Times(1)
	cache1.EXPECT().Set("v1", "test-key", expected).Return(nil).Times(1)

	result := mc.GetWithLevel("v1", "test-key")

	assert.True(t, result.Found)
	assert.Equal(t, models.CacheLevelL2, result.Level)
}

func TestMultiCache_Get_PropagationFailureStillHits(t *testing.T) {
	mc, cache1, cache2 := newTestMultiCache(t, true)

	expected := &models.CacheEntry{Status: 200}
	cache1.EXPECT().Get("v1", "test-key").Return(nil, false)
	cache2.EXPECT().Get("v1", "test-key").Return(expected, true)
	cache1.EXPECT().Set("v1", "test-key", expected).Return(errors.New("full"))

	entry, found := mc.Get("v1", "test-key")

	assert.True(t, found)
	assert.Equal(t, expected, entry)
}

func TestMultiCache_Get_AllCachesMiss(t *testing.T) {
	mc, cache1, cache2 := newTestMultiCache(t, true)

	cache1.EXPECT().Get("v1", "test-key").Return(nil, false).Times(1)
	cache2.EXPECT().Get("v1", "test-key").Return(nil, false).Times(1)

	result := mc.GetWithLevel("v1", "test-key")

	assert.False(t, result.Found)
	assert.Nil(t, result.Entry)
	assert.Equal(t, models.CacheLevelMiss, result.Level)
}

func TestMultiCache_Get_NoCaches(t *testing.T) {
	mc := NewMultiCache([]interfaces.Cache{}, zap.NewNop(), false)

	entry, found := mc.Get("v1", "test-key")

	assert.False(t, found)
	assert.Nil(t, entry)
}

func TestMultiCache_Set_AllCaches(t *testing.T) {
	mc, cache1, cache2 := newTestMultiCache(t, false)

	entry := &models.CacheEntry{Status: 200}
	cache1.EXPECT().Set("v1", "test-key", entry).Return(nil).Times(1)
	cache2.EXPECT().Set("v1", "test-key", entry).Return(nil).Times(1)

	assert.NoError(t, mc.Set("v1", "test-key", entry))
}

func TestMultiCache_Set_JoinsErrors(t *testing.T) {
	mc, cache1, cache2 := newTestMultiCache(t, false)

	errL2 := errors.New("keydb down")
	entry := &models.CacheEntry{Status: 200}
	cache1.EXPECT().Set("v1", "test-key", entry).Return(nil)
	cache2.EXPECT().Set("v1", "test-key", entry).Return(errL2)

	err := mc.Set("v1", "test-key", entry)
	require.Error(t, err)
	assert.ErrorIs(t, err, errL2)
}

func TestMultiCache_Set_AcceleratorFailureIgnored(t *testing.T) {
	mc, cache1, cache2 := newTestMultiCache(t, false)

	entry := &models.CacheEntry{Status: 200, Body: make([]byte, 2<<20)}
	cache1.EXPECT().Set("v1", "big", entry).Return(errors.New("entry is bigger than max shard size"))
	cache2.EXPECT().Set("v1", "big", entry).Return(nil)

	assert.NoError(t, mc.Set("v1", "big", entry))
}

func TestMultiCache_Set_NoCaches(t *testing.T) {
	mc := NewMultiCache([]interfaces.Cache{}, zap.NewNop(), false)

	// Should not panic
	assert.NoError(t, mc.Set("v1", "test-key", &models.CacheEntry{}))
}

func TestMultiCache_Open(t *testing.T) {
	mc, cache1, cache2 := newTestMultiCache(t, false)

	cache1.EXPECT().Open("v2").Return(nil)
	cache2.EXPECT().Open("v2").Return(nil)

	assert.NoError(t, mc.Open("v2"))
}

func TestMultiCache_Open_AuthoritativeFailure(t *testing.T) {
	mc, cache1, cache2 := newTestMultiCache(t, false)

	errL2 := errors.New("disk full")
	cache1.EXPECT().Open("v2").Return(errors.New("l1 unavailable"))
	cache2.EXPECT().Open("v2").Return(errL2)

	err := mc.Open("v2")
	require.Error(t, err)
	assert.ErrorIs(t, err, errL2)
}

func TestMultiCache_Generations_Union(t *testing.T) {
	mc, cache1, cache2 := newTestMultiCache(t, false)

	cache1.EXPECT().Generations().Return([]string{"v2"}, nil)
	cache2.EXPECT().Generations().Return([]string{"v1", "v2"}, nil)

	names, err := mc.Generations()
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, names)
}

func TestMultiCache_Generations_PartialError(t *testing.T) {
	mc, cache1, cache2 := newTestMultiCache(t, false)

	cache1.EXPECT().Generations().Return([]string{"v1"}, nil)
	cache2.EXPECT().Generations().Return(nil, errors.New("timeout"))

	names, err := mc.Generations()
	assert.Error(t, err)
	assert.Equal(t, []string{"v1"}, names)
}

func TestMultiCache_DeleteGeneration_AllCaches(t *testing.T) {
	mc, cache1, cache2 := newTestMultiCache(t, false)

	cache1.EXPECT().DeleteGeneration("v1").Return(nil).Times(1)
	cache2.EXPECT().DeleteGeneration("v1").Return(nil).Times(1)

	assert.NoError(t, mc.DeleteGeneration("v1"))
}

func TestMultiCache_DeleteGeneration_ContinuesAfterError(t *testing.T) {
	mc, cache1, cache2 := newTestMultiCache(t, false)

	cache1.EXPECT().DeleteGeneration("v1").Return(errors.New("boom"))
	cache2.EXPECT().DeleteGeneration("v1").Return(nil)

	assert.Error(t, mc.DeleteGeneration("v1"))
}

func TestMultiCache_Active(t *testing.T) {
	mc, cache1, cache2 := newTestMultiCache(t, false)

	cache1.EXPECT().SetActive("v2").Return(nil)
	cache2.EXPECT().SetActive("v2").Return(nil)
	require.NoError(t, mc.SetActive("v2"))

	// L1 lost its state after a restart, L2 still knows
	cache1.EXPECT().Active().Return("", false)
	cache2.EXPECT().Active().Return("v2", true)

	name, ok := mc.Active()
	assert.True(t, ok)
	assert.Equal(t, "v2", name)
}

func TestMultiCache_Active_None(t *testing.T) {
	mc, cache1, cache2 := newTestMultiCache(t, false)

	cache1.EXPECT().Active().Return("", false)
	cache2.EXPECT().Active().Return("", false)

	_, ok := mc.Active()
	assert.False(t, ok)
}
