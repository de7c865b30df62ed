package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/biblio/internal/logger"
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

const (
	checkLibrary = "library"
	checkLLM     = "llm"

	defaultCheckTimeout = 5 * time.Second
)

// Report aggregates health check results.
type Report struct {
	Status  Status
	Version string
	Checks  map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	library LibraryChecker
	llm     LLMChecker
	version string
	timeout time.Duration
}

// New creates a Service. llm can be nil.
func New(library LibraryChecker, llm LLMChecker, version string) *Service {
	return &Service{library: library, llm: llm, version: version, timeout: defaultCheckTimeout}
}

// Check runs health checks against all components concurrently.
func (s *Service) Check(ctx context.Context) Report {
	var (
		libraryResult = CheckOK
		llmResult     = CheckOK
		g             errgroup.Group
	)

	g.Go(func() error {
		libraryResult = s.run(ctx, checkLibrary, s.library.HealthCheck)
		return nil
	})
	if s.llm != nil {
		g.Go(func() error {
			llmResult = s.run(ctx, checkLLM, s.llm.HealthCheck)
			return nil
		})
	}
	_ = g.Wait()

	checks := map[string]CheckResult{checkLibrary: libraryResult}
	if s.llm != nil {
		checks[checkLLM] = llmResult
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Version: s.version, Checks: checks}
}

func (s *Service) run(ctx context.Context, name string, check func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := check(ctx); err != nil {
		logger.FromContext(ctx).Warn("health check failed", zap.String("check", name), zap.Error(err))
		return CheckError
	}
	return CheckOK
}
