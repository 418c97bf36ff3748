package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"goglm/domain/core"
)

type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) Get(ctx context.Context, modelID core.ModelID, artifact string) ([]byte, bool, error) {
	args := m.Called(ctx, modelID, artifact)
	payload, _ := args.Get(0).([]byte)
	return payload, args.Bool(1), args.Error(2)
}

func (m *mockRemote) Set(ctx context.Context, modelID core.ModelID, artifact string, payload []byte) error {
	return m.Called(ctx, modelID, artifact, payload).Error(0)
}

func (m *mockRemote) Delete(ctx context.Context, modelID core.ModelID, artifact string) error {
	return m.Called(ctx, modelID, artifact).Error(0)
}

func (m *mockRemote) Invalidate(ctx context.Context, modelID core.ModelID) error {
	return m.Called(ctx, modelID).Error(0)
}

type recorder struct {
	mu       sync.Mutex
	hits     map[string]int
	misses   int
	computes int
}

func (r *recorder) CacheHit(_ string, tier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hits == nil {
		r.hits = make(map[string]int)
	}
	r.hits[tier]++
}

func (r *recorder) CacheMiss(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses++
}

func (r *recorder) ObserveCompute(string, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.computes++
}

type baseValues struct {
	Region string  `json:"region"`
	Age    float64 `json:"age"`
}

func TestGetOrCreateComputesOnce(t *testing.T) {
	rec := &recorder{}
	c := New(Options{Observer: rec, Logger: zerolog.Nop()})
	calls := 0
	create := func(context.Context) (baseValues, error) {
		calls++
		return baseValues{Region: "North", Age: 37.5}, nil
	}

	first, err := GetOrCreate(context.Background(), c, "m1", "base_values", create)
	require.NoError(t, err)
	second, err := GetOrCreate(context.Background(), c, "m1", "base_values", create)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rec.misses)
	assert.Equal(t, 1, rec.computes)
	assert.Equal(t, 1, rec.hits[TierMemory])
	assert.Equal(t, 1, c.Len("m1"))
}

func TestGetOrCreateSharesConcurrentComputation(t *testing.T) {
	c := New(Options{Logger: zerolog.Nop()})
	var calls atomic.Int32
	release := make(chan struct{})
	create := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := GetOrCreate(context.Background(), c, "m1", "lift", create)
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestGetOrCreateDoesNotCacheErrors(t *testing.T) {
	c := New(Options{Logger: zerolog.Nop()})
	boom := errors.New("oracle down")

	_, err := GetOrCreate(context.Background(), c, "m1", "stats", func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)

	v, err := GetOrCreate(context.Background(), c, "m1", "stats", func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestKeysAreScopedByModel(t *testing.T) {
	c := New(Options{Logger: zerolog.Nop()})
	a, _ := GetOrCreate(context.Background(), c, "m1", "k", func(context.Context) (string, error) { return "one", nil })
	b, _ := GetOrCreate(context.Background(), c, "m2", "k", func(context.Context) (string, error) { return "two", nil })
	assert.Equal(t, "one", a)
	assert.Equal(t, "two", b)
}

func TestRemoteHitSkipsComputation(t *testing.T) {
	remote := &mockRemote{}
	remote.On("Get", mock.Anything, core.ModelID("m1"), "base_values").
		Return([]byte(`{"region":"South","age":40}`), true, nil).Once()
	rec := &recorder{}
	c := New(Options{Remote: remote, Observer: rec, Logger: zerolog.Nop()})

	v, err := GetOrCreate(context.Background(), c, "m1", "base_values", func(context.Context) (baseValues, error) {
		t.Fatal("create must not run on a remote hit")
		return baseValues{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, baseValues{Region: "South", Age: 40}, v)
	assert.Equal(t, 1, rec.hits[TierRemote])
	remote.AssertExpectations(t)
}

func TestRemoteMissStoresPayload(t *testing.T) {
	remote := &mockRemote{}
	remote.On("Get", mock.Anything, core.ModelID("m1"), "base_values").Return(nil, false, nil).Once()
	remote.On("Set", mock.Anything, core.ModelID("m1"), "base_values", []byte(`{"region":"North","age":37.5}`)).Return(nil).Once()
	c := New(Options{Remote: remote, Logger: zerolog.Nop()})

	_, err := GetOrCreate(context.Background(), c, "m1", "base_values", func(context.Context) (baseValues, error) {
		return baseValues{Region: "North", Age: 37.5}, nil
	})
	require.NoError(t, err)
	remote.AssertExpectations(t)
}

func TestRemoteFailuresAreNotFatal(t *testing.T) {
	remote := &mockRemote{}
	remote.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(nil, false, errors.New("connection refused"))
	remote.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	c := New(Options{Remote: remote, Logger: zerolog.Nop()})

	v, err := GetOrCreate(context.Background(), c, "m1", "k", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestInvalidate(t *testing.T) {
	remote := &mockRemote{}
	remote.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(nil, false, nil)
	remote.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	remote.On("Invalidate", mock.Anything, core.ModelID("m1")).Return(nil).Once()
	c := New(Options{Remote: remote, Logger: zerolog.Nop()})

	calls := 0
	create := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}
	_, _ = GetOrCreate(context.Background(), c, "m1", "k", create)
	require.NoError(t, c.Invalidate(context.Background(), "m1"))
	assert.Equal(t, 0, c.Len("m1"))

	v, err := GetOrCreate(context.Background(), c, "m1", "k", create)
	require.NoError(t, err)
	assert.Equal(t, 2, v, "invalidated artifacts are recomputed")
	remote.AssertExpectations(t)
}

func TestUndecodableRemotePayloadIsDropped(t *testing.T) {
	remote := &mockRemote{}
	remote.On("Get", mock.Anything, core.ModelID("m1"), "k").Return([]byte("not json"), true, nil)
	remote.On("Delete", mock.Anything, core.ModelID("m1"), "k").Return(nil).Once()
	remote.On("Set", mock.Anything, core.ModelID("m1"), "k", []byte("5")).Return(nil).Once()
	c := New(Options{Remote: remote, Logger: zerolog.Nop()})

	v, err := GetOrCreate(context.Background(), c, "m1", "k", func(context.Context) (int, error) { return 5, nil })
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	remote.AssertExpectations(t)
}
