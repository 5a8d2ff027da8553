package health

import (
	"context"
	"sort"
	"sync"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	cache  CachePinger
	remote map[string]Checker
}

// New creates a Service. cache can be nil when the score cache is disabled;
// remote is keyed by the name reported in Report.Checks.
func New(cache CachePinger, remote map[string]Checker) *Service {
	return &Service{cache: cache, remote: remote}
}

// Names returns the checked component names in sorted order.
func (s *Service) Names() []string {
	names := make([]string, 0, len(s.remote)+1)
	if s.cache != nil {
		names = append(names, "cache")
	}
	for name := range s.remote {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs all health checks concurrently.
func (s *Service) Check(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]CheckResult, len(s.remote)+1)
	)
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			checks[name] = CheckError
			return
		}
		checks[name] = CheckOK
	}

	if s.cache != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record("cache", s.cache.Ping(ctx))
		}()
	}
	for name, c := range s.remote {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record(name, c.HealthCheck(ctx))
		}()
	}
	wg.Wait()

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}
