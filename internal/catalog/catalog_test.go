package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stockwatch/alert-composer/internal/model"
)

func sampleIndicators() []model.Indicator {
	length := "14"
	return []model.Indicator{
		{
			Name:        "RSI",
			DisplayName: "Relative Strength Index",
			Lines:       []model.IndicatorLine{{Name: "rsi", DisplayName: "RSI"}},
			Parameters: []model.ParameterSchema{
				{Name: "length", DisplayName: "Length", Type: model.ParamTypeInt, Required: true, DefaultValue: &length},
			},
		},
		{
			Name:        "SMA",
			DisplayName: "Moving Average",
			Lines:       []model.IndicatorLine{{Name: "sma", DisplayName: "SMA"}},
		},
		{
			Name:        "EMA",
			DisplayName: "Moving Average",
			Lines:       []model.IndicatorLine{{Name: "ema", DisplayName: "EMA"}},
		},
	}
}

func TestResolve(t *testing.T) {
	cat := New(sampleIndicators())

	ind, ok := cat.Resolve("RSI")
	require.True(t, ok)
	assert.Equal(t, "Relative Strength Index", ind.DisplayName)

	ind, ok = cat.Resolve("relative strength index")
	require.True(t, ok, "unique display names resolve")
	assert.Equal(t, "RSI", ind.Name)

	_, ok = cat.Resolve("Moving Average")
	assert.False(t, ok, "shared display names are ambiguous")

	_, ok = cat.Resolve("MACD")
	assert.False(t, ok)

	_, ok = cat.Resolve("")
	assert.False(t, ok)
}

func TestResolveOnNilCatalog(t *testing.T) {
	var cat *Catalog
	_, ok := cat.Resolve("RSI")
	assert.False(t, ok)
	assert.Zero(t, cat.Len())
	assert.Nil(t, cat.Indicators())
}

type fakeSource struct {
	calls      int
	indicators []model.Indicator
	err        error
}

func (f *fakeSource) ListIndicators(ctx context.Context, token string) ([]model.Indicator, error) {
	f.calls++
	return f.indicators, f.err
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memoryStore) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	m.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestLoaderReadsThroughCache(t *testing.T) {
	source := &fakeSource{indicators: sampleIndicators()}
	store := newMemoryStore()
	loader := NewLoader(source, store, CacheConfig{Enabled: true, TTL: time.Hour, PrefixKey: "composer"}, zap.NewNop())

	cat, err := loader.Load(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, 3, cat.Len())
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, time.Hour, store.ttl["composer:indicators"])

	cat, err = loader.Load(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, 3, cat.Len())
	assert.Equal(t, 1, source.calls, "second load is served from cache")

	ind, ok := cat.Resolve("RSI")
	require.True(t, ok)
	require.Len(t, ind.Parameters, 1)
	assert.Equal(t, "14", *ind.Parameters[0].DefaultValue)

	require.NoError(t, loader.Flush(context.Background()))
	_, err = loader.Load(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestLoaderWithoutStore(t *testing.T) {
	source := &fakeSource{indicators: sampleIndicators()}
	loader := NewLoader(source, nil, CacheConfig{Enabled: true}, zap.NewNop())

	_, err := loader.Load(context.Background(), "token")
	require.NoError(t, err)
	_, err = loader.Load(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
	assert.NoError(t, loader.Flush(context.Background()))
}

func TestLoaderSourceFailure(t *testing.T) {
	boom := errors.New("connection refused")
	loader := NewLoader(&fakeSource{err: boom}, newMemoryStore(), CacheConfig{Enabled: true, PrefixKey: "composer"}, zap.NewNop())

	cat, err := loader.Load(context.Background(), "token")
	assert.Nil(t, cat)
	assert.ErrorIs(t, err, boom)
}
