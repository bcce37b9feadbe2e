package errors

import (
	"sync"

	"github.com/conneroisu/pagewright/internal/types"
)

// FailureCollector collects failed pages for one build. Failures are
// deduplicated by route path: once a route has failed, further failures
// under the same route are dropped.
type FailureCollector struct {
	failures []types.FailedPage
	routes   map[string]struct{}
	mutex    sync.RWMutex
}

// NewFailureCollector creates a new failure collector
func NewFailureCollector() *FailureCollector {
	return &FailureCollector{
		failures: make([]types.FailedPage, 0),
		routes:   make(map[string]struct{}),
	}
}

// AddRouteFailure records a failure for routePath unless that route already
// failed during this build. It reports whether the failure was recorded.
func (fc *FailureCollector) AddRouteFailure(routePath, reason string) bool {
	fc.mutex.Lock()
	defer fc.mutex.Unlock()
	if _, seen := fc.routes[routePath]; seen {
		return false
	}
	fc.routes[routePath] = struct{}{}
	fc.failures = append(fc.failures, types.FailedPage{Path: routePath, Reason: reason})
	return true
}

// Add records a failure without route deduplication. Route enumeration
// errors go through here since each one names a distinct misconfiguration.
func (fc *FailureCollector) Add(failure types.FailedPage) {
	fc.mutex.Lock()
	defer fc.mutex.Unlock()
	fc.failures = append(fc.failures, failure)
}

// Failures returns a copy of all collected failures
func (fc *FailureCollector) Failures() []types.FailedPage {
	fc.mutex.RLock()
	defer fc.mutex.RUnlock()
	result := make([]types.FailedPage, len(fc.failures))
	copy(result, fc.failures)
	return result
}

// HasFailures returns true if there are any failures
func (fc *FailureCollector) HasFailures() bool {
	fc.mutex.RLock()
	defer fc.mutex.RUnlock()
	return len(fc.failures) > 0
}

// Len returns the number of recorded failures.
func (fc *FailureCollector) Len() int {
	fc.mutex.RLock()
	defer fc.mutex.RUnlock()
	return len(fc.failures)
}
