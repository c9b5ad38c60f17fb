package webhook

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsTrackerTrack(t *testing.T) {
	mt := NewMetricsTracker()

	mt.Track("/webhook", "POST", 200, 100*time.Millisecond)

	metrics := mt.GetRouteMetrics("/webhook", "POST")
	require.NotNil(t, metrics)
	assert.Equal(t, "/webhook", metrics.Route)
	assert.Equal(t, "POST", metrics.Method)
	assert.Equal(t, int64(1), metrics.TotalRequests)
	assert.Equal(t, int64(1), metrics.SuccessCount)
	assert.Equal(t, int64(0), metrics.FailureCount)
	assert.Equal(t, 100.0, metrics.AverageResponseTime)
	assert.Equal(t, 200, metrics.LastStatus)
	assert.Greater(t, metrics.LastRequestAt, int64(0))
}

func TestMetricsTrackerTrackMultiple(t *testing.T) {
	mt := NewMetricsTracker()

	mt.Track("/webhook", "POST", 200, 100*time.Millisecond)
	mt.Track("/webhook", "POST", 200, 200*time.Millisecond)
	mt.Track("/webhook", "POST", 403, 150*time.Millisecond)

	metrics := mt.GetRouteMetrics("/webhook", "POST")
	require.NotNil(t, metrics)
	assert.Equal(t, int64(3), metrics.TotalRequests)
	assert.Equal(t, int64(2), metrics.SuccessCount)
	assert.Equal(t, int64(1), metrics.FailureCount)
	assert.InDelta(t, 150.0, metrics.AverageResponseTime, 0.001)
	assert.Equal(t, 403, metrics.LastStatus)
}

func TestMetricsTrackerGetMetricsOrdered(t *testing.T) {
	mt := NewMetricsTracker()

	mt.Track("/webhook", "POST", 200, time.Millisecond)
	mt.Track("/health", "GET", 200, time.Millisecond)
	mt.Track("/webhook", "GET", 403, time.Millisecond)

	all := mt.GetMetrics()
	require.Len(t, all, 3)
	assert.Equal(t, "/health", all[0].Route)
	assert.Equal(t, "GET", all[1].Method)
	assert.Equal(t, "/webhook", all[1].Route)
	assert.Equal(t, "POST", all[2].Method)
}

func TestMetricsTrackerUnknownRoute(t *testing.T) {
	mt := NewMetricsTracker()
	assert.Nil(t, mt.GetRouteMetrics("/nope", "GET"))
	assert.Empty(t, mt.GetMetrics())
}

func TestMetricsTrackerSnapshotIsCopy(t *testing.T) {
	mt := NewMetricsTracker()
	mt.Track("/", "GET", 200, time.Millisecond)

	snapshot := mt.GetRouteMetrics("/", "GET")
	snapshot.TotalRequests = 99

	assert.Equal(t, int64(1), mt.GetRouteMetrics("/", "GET").TotalRequests)
}

func TestMetricsTrackerConcurrent(t *testing.T) {
	mt := NewMetricsTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mt.Track("/webhook", "POST", 200, time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), mt.GetRouteMetrics("/webhook", "POST").TotalRequests)
}
