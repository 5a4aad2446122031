package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fleetpricer/internal/domain"
)

type fakeRedis struct {
	data   map[string][]byte
	getErr error
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string][]byte{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = value.([]byte)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type fakeConfigStore struct {
	weights   *domain.SignalWeights
	guardrail *domain.Guardrail
	rates     *domain.BaseRates
	err       error
	calls     int
}

func (f *fakeConfigStore) GetSignalWeights(context.Context, int64) (*domain.SignalWeights, error) {
	f.calls++
	return f.weights, f.err
}

func (f *fakeConfigStore) GetGuardrail(context.Context, int64, domain.EntityKey) (*domain.Guardrail, error) {
	f.calls++
	return f.guardrail, f.err
}

func (f *fakeConfigStore) GetBaseRates(context.Context, int64, domain.EntityKey) (*domain.BaseRates, error) {
	f.calls++
	return f.rates, f.err
}

func TestSignalWeightsCachesStoreHit(t *testing.T) {
	store := &fakeConfigStore{weights: &domain.SignalWeights{Utilization: 0.4, Forecast: 0.3, Competitor: 0.1, Weather: 0.1, Holiday: 0.1}}
	cache := NewConfigCache(store, newFakeRedis(), zerolog.Nop(), time.Minute)

	first := cache.SignalWeights(context.Background(), 1)
	second := cache.SignalWeights(context.Background(), 1)
	if first != second {
		t.Fatalf("cached read differs: %+v vs %+v", first, second)
	}
	if store.calls != 1 {
		t.Fatalf("expected one store read, got %d", store.calls)
	}
	if first.Utilization != 0.4 {
		t.Fatalf("utilization weight = %f, want 0.4", first.Utilization)
	}
}

func TestSignalWeightsFallsBackToDefaults(t *testing.T) {
	cases := []struct {
		name  string
		store *fakeConfigStore
	}{
		{"store error", &fakeConfigStore{err: errors.New("db down")}},
		{"not configured", &fakeConfigStore{}},
		{"invalid sum", &fakeConfigStore{weights: &domain.SignalWeights{Utilization: 0.9, Forecast: 0.9}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cache := NewConfigCache(tc.store, newFakeRedis(), zerolog.Nop(), time.Minute)
			got := cache.SignalWeights(context.Background(), 1)
			if got != domain.DefaultSignalWeights() {
				t.Fatalf("expected defaults, got %+v", got)
			}
		})
	}
}

func TestGuardrailFallbackChain(t *testing.T) {
	cache := NewConfigCache(&fakeConfigStore{}, newFakeRedis(), zerolog.Nop(), time.Minute)

	got := cache.Guardrail(context.Background(), 1, domain.EntityKey{BranchID: 1, CategoryID: 5})
	if want := domain.DefaultGuardrails()[5]; got != want {
		t.Fatalf("category default = %+v, want %+v", got, want)
	}

	got = cache.Guardrail(context.Background(), 1, domain.EntityKey{BranchID: 1, CategoryID: 99})
	if want := domain.FallbackGuardrail(); got != want {
		t.Fatalf("fallback = %+v, want %+v", got, want)
	}
}

func TestGuardrailStoredRowWinsAndCaches(t *testing.T) {
	store := &fakeConfigStore{guardrail: &domain.Guardrail{MinPrice: 80, MaxDiscountPct: 10, MaxPremiumPct: 30}}
	redisClient := newFakeRedis()
	cache := NewConfigCache(store, redisClient, zerolog.Nop(), time.Minute)
	key := domain.EntityKey{BranchID: 2, CategoryID: 1}

	got := cache.Guardrail(context.Background(), 1, key)
	if got.MinPrice != 80 {
		t.Fatalf("min price = %f, want 80", got.MinPrice)
	}
	if len(redisClient.data) != 1 {
		t.Fatalf("expected one cached entry, got %d", len(redisClient.data))
	}

	store.guardrail = nil
	got = cache.Guardrail(context.Background(), 1, key)
	if got.MinPrice != 80 {
		t.Fatalf("cache miss after write: min price = %f", got.MinPrice)
	}
}

func TestBaseRatesNilWhenUnconfigured(t *testing.T) {
	cache := NewConfigCache(&fakeConfigStore{}, newFakeRedis(), zerolog.Nop(), time.Minute)
	if got := cache.BaseRates(context.Background(), 1, domain.EntityKey{BranchID: 1, CategoryID: 1}); got != nil {
		t.Fatalf("expected nil rates, got %+v", got)
	}
}

func TestInvalidateDropsCachedEntries(t *testing.T) {
	store := &fakeConfigStore{
		guardrail: &domain.Guardrail{MinPrice: 80, MaxDiscountPct: 10, MaxPremiumPct: 30},
		rates:     &domain.BaseRates{Daily: 110, Weekly: 660, Monthly: 2750},
	}
	redisClient := newFakeRedis()
	cache := NewConfigCache(store, redisClient, zerolog.Nop(), time.Minute)
	key := domain.EntityKey{BranchID: 1, CategoryID: 1}

	cache.Guardrail(context.Background(), 1, key)
	cache.BaseRates(context.Background(), 1, key)
	if len(redisClient.data) != 2 {
		t.Fatalf("expected two cached entries, got %d", len(redisClient.data))
	}

	if err := cache.Invalidate(context.Background(), 1, key); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if len(redisClient.data) != 0 {
		t.Fatalf("expected empty cache, got %d entries", len(redisClient.data))
	}

	store.guardrail = &domain.Guardrail{MinPrice: 200, MaxDiscountPct: 5, MaxPremiumPct: 20}
	if got := cache.Guardrail(context.Background(), 1, key); got.MinPrice != 200 {
		t.Fatalf("stale guardrail after invalidate: %+v", got)
	}
}

func TestCorruptCacheEntryFallsThrough(t *testing.T) {
	store := &fakeConfigStore{weights: &domain.SignalWeights{Utilization: 0.3, Forecast: 0.25, Competitor: 0.25, Weather: 0.1, Holiday: 0.1}}
	redisClient := newFakeRedis()
	redisClient.data[weightsKey(1)] = []byte("{not json")
	cache := NewConfigCache(store, redisClient, zerolog.Nop(), time.Minute)

	got := cache.SignalWeights(context.Background(), 1)
	if got.Utilization != 0.3 {
		t.Fatalf("expected store read after corrupt entry, got %+v", got)
	}
}

func TestCachedPayloadRoundTrips(t *testing.T) {
	redisClient := newFakeRedis()
	store := &fakeConfigStore{rates: &domain.BaseRates{Daily: 120, Weekly: 720, Monthly: 3000}}
	cache := NewConfigCache(store, redisClient, zerolog.Nop(), time.Minute)
	key := domain.EntityKey{BranchID: 3, CategoryID: 2}

	cache.BaseRates(context.Background(), 1, key)
	raw, ok := redisClient.data[baseRatesKey(1, key)]
	if !ok {
		t.Fatal("rates were not cached")
	}
	var decoded domain.BaseRates
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode cached rates: %v", err)
	}
	if decoded.Daily != 120 {
		t.Fatalf("cached daily = %f, want 120", decoded.Daily)
	}
}
