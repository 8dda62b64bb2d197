package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingExpirer struct {
	calls atomic.Int32
	n     int
	err   error
}

func (e *countingExpirer) ExpireOverdueBookings(ctx context.Context) (int, error) {
	e.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("sweep must run with a deadline")
	}
	return e.n, e.err
}

func TestRunOnce(t *testing.T) {
	exp := &countingExpirer{n: 3}
	s, err := New(exp, time.Minute, nil, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 3, s.RunOnce(context.Background()))
	assert.EqualValues(t, 1, exp.calls.Load())
}

func TestRunOnce_SkipsWhenCancelled(t *testing.T) {
	exp := &countingExpirer{}
	s, err := New(exp, time.Minute, nil, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, s.RunOnce(ctx))
	assert.Zero(t, exp.calls.Load())
}

func TestRunOnce_ReportsPartialProgressOnError(t *testing.T) {
	exp := &countingExpirer{n: 2, err: errors.New("db down")}
	s, err := New(exp, time.Minute, nil, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 2, s.RunOnce(context.Background()))
}

func TestStart_RunsOnInterval(t *testing.T) {
	exp := &countingExpirer{}
	s, err := New(exp, 20*time.Millisecond, nil, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return exp.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())
}

func TestNew_RejectsZeroInterval(t *testing.T) {
	_, err := New(&countingExpirer{}, 0, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestRedisLocker(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db, "settlement:lock:", 30*time.Second)
	l.token = func() string { return "tok-1" }
	ctx := context.Background()
	key := "settlement:lock:" + JobName

	mock.ExpectSetNX(key, "tok-1", 30*time.Second).SetVal(true)
	lock, err := l.Lock(ctx, JobName)
	require.NoError(t, err)

	mock.ExpectEval(unlockScript, []string{key}, "tok-1").SetVal(int64(1))
	require.NoError(t, lock.Unlock(ctx))

	mock.ExpectSetNX(key, "tok-1", 30*time.Second).SetVal(false)
	_, err = l.Lock(ctx, JobName)
	assert.ErrorIs(t, err, ErrLockHeld)

	mock.ExpectSetNX(key, "tok-1", 30*time.Second).SetErr(errors.New("connection refused"))
	_, err = l.Lock(ctx, JobName)
	assert.ErrorContains(t, err, "connection refused")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient("not-a-url")
	assert.Error(t, err)
}
