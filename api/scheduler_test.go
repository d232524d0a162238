package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFollowUpScheduler_InvalidSchedule(t *testing.T) {
	ts := newTestServer(t)

	_, err := NewFollowUpScheduler(ts.h, "every now and then")

	assert.Error(t, err)
}

func TestFollowUpScheduler_RunsOnStart(t *testing.T) {
	// GIVEN: Stale leads waiting for alerts
	ts := newTestServer(t)
	ts.loadScenario(t, "stale-leads")

	s, err := NewFollowUpScheduler(ts.h, "")
	require.NoError(t, err)
	assert.True(t, s.LastRun().IsZero())

	// WHEN: The scheduler starts
	s.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})

	// THEN: A sweep runs right away
	require.Eventually(t, func() bool { return !s.LastRun().IsZero() }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, testNow, s.LastRun())
	assert.False(t, s.NextRun().IsZero())

	rec := ts.do(t, http.MethodGet, "/api/notifications", nil)
	assert.Len(t, decode[[]NotificationDTO](t, rec), 3)
}

func TestFollowUpScheduler_StopWaitsForInitialSweep(t *testing.T) {
	// GIVEN: A started scheduler whose first sweep may still be running
	ts := newTestServer(t)
	ts.loadScenario(t, "stale-leads")

	s, err := NewFollowUpScheduler(ts.h, "0 0 1 1 *")
	require.NoError(t, err)
	s.Start()

	// WHEN: Stopping immediately
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)

	// THEN: The first sweep has finished before Stop returned
	require.NoError(t, ctx.Err(), "stop should not need the timeout")
	assert.Equal(t, testNow, s.LastRun())

	rec := ts.do(t, http.MethodGet, "/api/notifications", nil)
	assert.Len(t, decode[[]NotificationDTO](t, rec), 3)
}

func TestFollowUpScheduler_StopWithoutStart(t *testing.T) {
	ts := newTestServer(t)
	s, err := NewFollowUpScheduler(ts.h, "0 * * * *")
	require.NoError(t, err)

	s.Stop(context.Background())

	assert.True(t, s.LastRun().IsZero())
}
