package webhook

import (
	"sort"
	"sync"
	"time"
)

// RouteMetrics holds request statistics for one route
type RouteMetrics struct {
	Route               string  `json:"route"`
	Method              string  `json:"method"`
	TotalRequests       int64   `json:"totalRequests"`
	SuccessCount        int64   `json:"successCount"`
	FailureCount        int64   `json:"failureCount"`
	AverageResponseTime float64 `json:"averageResponseTimeMs"`
	LastStatus          int     `json:"lastStatus"`
	LastRequestAt       int64   `json:"lastRequestAt"`
}

// MetricsTracker tracks per-route request statistics
type MetricsTracker struct {
	metrics map[string]*RouteMetrics
	mu      sync.RWMutex
}

// NewMetricsTracker creates a new metrics tracker
func NewMetricsTracker() *MetricsTracker {
	return &MetricsTracker{
		metrics: make(map[string]*RouteMetrics),
	}
}

// Track records one request. Statuses below 400 count as successes.
func (mt *MetricsTracker) Track(route, method string, status int, duration time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	key := method + ":" + route

	m, exists := mt.metrics[key]
	if !exists {
		m = &RouteMetrics{Route: route, Method: method}
		mt.metrics[key] = m
	}

	m.TotalRequests++
	if status < 400 {
		m.SuccessCount++
	} else {
		m.FailureCount++
	}

	durationMs := float64(duration) / float64(time.Millisecond)
	m.AverageResponseTime = (m.AverageResponseTime*float64(m.TotalRequests-1) + durationMs) / float64(m.TotalRequests)
	m.LastStatus = status
	m.LastRequestAt = time.Now().UnixMilli()
}

// GetMetrics returns a snapshot of all routes, ordered by method and route
func (mt *MetricsTracker) GetMetrics() []RouteMetrics {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	result := make([]RouteMetrics, 0, len(mt.metrics))
	for _, m := range mt.metrics {
		result = append(result, *m)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Route != result[j].Route {
			return result[i].Route < result[j].Route
		}
		return result[i].Method < result[j].Method
	})
	return result
}

// GetRouteMetrics returns a copy of one route's statistics, or nil
func (mt *MetricsTracker) GetRouteMetrics(route, method string) *RouteMetrics {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	m, exists := mt.metrics[method+":"+route]
	if !exists {
		return nil
	}

	result := *m
	return &result
}
