// internal/dispatch/scheduler_test.go
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donor-dispatch/internal/common/config"
	apperrors "donor-dispatch/internal/common/errors"
	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/models"
)

type dispatcherFunc func(ctx context.Context, req *models.BloodRequest) Result

func (f dispatcherFunc) Dispatch(ctx context.Context, req *models.BloodRequest) Result {
	return f(ctx, req)
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func collectResults(buffer int) (ResultHandler, <-chan Result) {
	ch := make(chan Result, buffer)
	return func(r Result) { ch <- r }, ch
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch result")
		return Result{}
	}
}

func TestScheduler_ScheduleDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	engine := dispatcherFunc(func(_ context.Context, req *models.BloodRequest) Result {
		<-release
		return Result{RequestID: req.ID, DonorsFound: 1, NotificationsCreated: 1}
	})
	handler, results := collectResults(1)

	s := NewScheduler(engine, config.DispatchConfig{Workers: 1, QueueSize: 4}, logger.NewTestLogger(t), WithResultHandler(handler))
	s.Start(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Schedule(context.Background(), sampleRequest(models.UrgencyHigh)) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Schedule blocked on dispatch completion")
	}

	close(release)
	r := waitResult(t, results)
	assert.Equal(t, "req-1", r.RequestID)
	assert.Equal(t, 1, r.NotificationsCreated)
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_QueueFull(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	engine := dispatcherFunc(func(_ context.Context, req *models.BloodRequest) Result {
		<-block
		return Result{RequestID: req.ID}
	})

	// not started: nothing drains the queue
	s := NewScheduler(engine, config.DispatchConfig{Workers: 1, QueueSize: 1}, logger.NewNoOpLogger())

	first := sampleRequest(models.UrgencyLow)
	second := sampleRequest(models.UrgencyLow)
	second.ID = "req-2"

	require.NoError(t, s.Schedule(context.Background(), first))
	err := s.Schedule(context.Background(), second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrQueueFull))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestScheduler_GuardRejectsDuplicate(t *testing.T) {
	_, client := setupRedis(t)
	var calls int32
	engine := dispatcherFunc(func(_ context.Context, req *models.BloodRequest) Result {
		atomic.AddInt32(&calls, 1)
		return Result{RequestID: req.ID, DonorsFound: 2, NotificationsCreated: 2}
	})
	handler, results := collectResults(2)

	s := NewScheduler(engine, config.DispatchConfig{Workers: 2, QueueSize: 4}, logger.NewNoOpLogger(),
		WithGuard(NewRedisGuard(client, time.Hour)), WithResultHandler(handler))
	s.Start(context.Background())

	req := sampleRequest(models.UrgencyCritical)
	require.NoError(t, s.Schedule(context.Background(), req))
	err := s.Schedule(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyScheduled))

	waitResult(t, results)
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestScheduler_FailedDispatchReleasesGuard(t *testing.T) {
	mr, client := setupRedis(t)
	engine := dispatcherFunc(func(_ context.Context, req *models.BloodRequest) Result {
		return Result{RequestID: req.ID, Err: apperrors.NewStoreUnavailableError("find donors", errors.New("down"))}
	})
	handler, results := collectResults(1)

	s := NewScheduler(engine, config.DispatchConfig{Workers: 1, QueueSize: 2}, logger.NewNoOpLogger(),
		WithGuard(NewRedisGuard(client, time.Hour)), WithResultHandler(handler))
	s.Start(context.Background())

	require.NoError(t, s.Schedule(context.Background(), sampleRequest(models.UrgencyHigh)))
	r := waitResult(t, results)
	require.Error(t, r.Err)
	require.NoError(t, s.Stop(context.Background()))

	assert.False(t, mr.Exists("dispatch:req-1"))
}

func TestScheduler_PartialDispatchKeepsGuard(t *testing.T) {
	mr, client := setupRedis(t)
	engine := dispatcherFunc(func(_ context.Context, req *models.BloodRequest) Result {
		return Result{RequestID: req.ID, DonorsFound: 3, Attempted: 3, NotificationsCreated: 1,
			Err: apperrors.NewDispatchPartialFailureError(1, 3, nil)}
	})
	handler, results := collectResults(1)

	s := NewScheduler(engine, config.DispatchConfig{Workers: 1, QueueSize: 2}, logger.NewNoOpLogger(),
		WithGuard(NewRedisGuard(client, time.Hour)), WithResultHandler(handler))
	s.Start(context.Background())

	require.NoError(t, s.Schedule(context.Background(), sampleRequest(models.UrgencyHigh)))
	waitResult(t, results)
	require.NoError(t, s.Stop(context.Background()))

	assert.True(t, mr.Exists("dispatch:req-1"))
	ttl := mr.TTL("dispatch:req-1")
	assert.Equal(t, time.Hour, ttl)
}

func TestScheduler_GuardUnavailableStillDispatches(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	var calls int32
	engine := dispatcherFunc(func(_ context.Context, req *models.BloodRequest) Result {
		atomic.AddInt32(&calls, 1)
		return Result{RequestID: req.ID}
	})
	handler, results := collectResults(1)

	s := NewScheduler(engine, config.DispatchConfig{Workers: 1, QueueSize: 2}, logger.NewNoOpLogger(),
		WithGuard(NewRedisGuard(client, time.Hour)), WithResultHandler(handler))
	s.Start(context.Background())

	require.NoError(t, s.Schedule(context.Background(), sampleRequest(models.UrgencyHigh)))
	waitResult(t, results)
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestScheduler_StopDrainsQueue(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	engine := dispatcherFunc(func(_ context.Context, req *models.BloodRequest) Result {
		mu.Lock()
		seen = append(seen, req.ID)
		mu.Unlock()
		return Result{RequestID: req.ID}
	})

	s := NewScheduler(engine, config.DispatchConfig{Workers: 2, QueueSize: 8}, logger.NewNoOpLogger())
	for _, id := range []string{"a", "b", "c", "d"} {
		req := sampleRequest(models.UrgencyLow)
		req.ID = id
		require.NoError(t, s.Schedule(context.Background(), req))
	}
	s.Start(context.Background())
	require.NoError(t, s.Stop(context.Background()))

	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, seen)

	err := s.Schedule(context.Background(), sampleRequest(models.UrgencyLow))
	assert.Error(t, err)
}

func TestScheduler_RecoversFromPanic(t *testing.T) {
	engine := dispatcherFunc(func(context.Context, *models.BloodRequest) Result {
		panic("boom")
	})
	handler, results := collectResults(1)

	s := NewScheduler(engine, config.DispatchConfig{Workers: 1, QueueSize: 1}, logger.NewNoOpLogger(), WithResultHandler(handler))
	s.Start(context.Background())
	require.NoError(t, s.Schedule(context.Background(), sampleRequest(models.UrgencyLow)))

	r := waitResult(t, results)
	require.Error(t, r.Err)
	assert.Contains(t, r.Err.Error(), "boom")
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_SnapshotsRequest(t *testing.T) {
	gate := make(chan struct{})
	handler, results := collectResults(1)
	engine := dispatcherFunc(func(_ context.Context, req *models.BloodRequest) Result {
		<-gate
		return Result{RequestID: req.ID}
	})

	s := NewScheduler(engine, config.DispatchConfig{Workers: 1, QueueSize: 1}, logger.NewNoOpLogger(), WithResultHandler(handler))
	s.Start(context.Background())

	req := sampleRequest(models.UrgencyLow)
	require.NoError(t, s.Schedule(context.Background(), req))
	req.ID = "mutated-after-schedule"
	close(gate)

	assert.Equal(t, "req-1", waitResult(t, results).RequestID)
	require.NoError(t, s.Stop(context.Background()))
}

func TestRedisGuard_Release(t *testing.T) {
	client, mock := redismock.NewClientMock()
	guard := NewRedisGuard(client, time.Minute)

	mock.ExpectDel("dispatch:req-9").SetVal(1)
	require.NoError(t, guard.Release(context.Background(), "req-9"))

	mock.ExpectDel("dispatch:req-9").SetErr(errors.New("READONLY"))
	err := guard.Release(context.Background(), "req-9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READONLY")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisGuard_Acquire(t *testing.T) {
	_, client := setupRedis(t)
	guard := NewRedisGuard(client, time.Minute)

	ok, err := guard.Acquire(context.Background(), "req-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Acquire(context.Background(), "req-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, guard.Release(context.Background(), "req-1"))
	ok, err = guard.Acquire(context.Background(), "req-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
