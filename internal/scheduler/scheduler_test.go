package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/i474232898/ward-air-quality/internal/reconcile"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (c *countingRefresher) RefreshFromUpstream(ctx context.Context) reconcile.EnhanceResult {
	c.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return reconcile.EnhanceResult{Err: errors.New("expected a bounded context")}
	}
	return reconcile.EnhanceResult{PassID: "p", Err: c.err}
}

func TestScheduler_RunsPeriodically(t *testing.T) {
	r := &countingRefresher{}
	s := New(r, 20*time.Millisecond, zap.NewNop())

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.True(t, s.Running())
	assert.Eventually(t, func() bool { return r.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_ZeroIntervalDisables(t *testing.T) {
	r := &countingRefresher{}
	s := New(r, 0, nil)

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.False(t, s.Running())
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, r.calls.Load())
}

func TestScheduler_FailedRefreshKeepsRunning(t *testing.T) {
	r := &countingRefresher{err: errors.New("upstream down")}
	s := New(r, 20*time.Millisecond, zap.NewNop())

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_RunTimeoutBoundedByInterval(t *testing.T) {
	assert.Equal(t, 30*time.Second, New(&countingRefresher{}, 30*time.Second, nil).runTimeout)
	assert.Equal(t, defaultRunTimeout, New(&countingRefresher{}, time.Hour, nil).runTimeout)
}
