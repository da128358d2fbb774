package health

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "available"
	// Degraded indicates the engine serves requests but dumps cannot be written or read.
	Degraded Status = "degraded"
	// Unhealthy indicates the task store is unreachable.
	Unhealthy Status = "unavailable"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

const checkTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks.
type Service struct {
	db     Pinger
	dumps  Pinger
	logger *zap.Logger
}

// New creates a Service. dumps can be nil when no dump storage is configured.
func New(db, dumps Pinger, logger *zap.Logger) *Service {
	return &Service{db: db, dumps: dumps, logger: logger}
}

func (s *Service) ping(ctx context.Context, name string, p Pinger) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		s.logger.Warn("Health check failed", zap.String("component", name), zap.Error(err))
		return CheckError
	}
	return CheckOK
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]CheckResult{"database": s.ping(ctx, "database", s.db)}
	if s.dumps != nil {
		checks["dumps"] = s.ping(ctx, "dumps", s.dumps)
	}

	status := Healthy
	switch {
	case checks["database"] == CheckError:
		status = Unhealthy
	case checks["dumps"] == CheckError:
		status = Degraded
	}
	return Report{Status: status, Checks: checks}
}
