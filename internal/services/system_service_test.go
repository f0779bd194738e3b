package services

import (
	"context"
	"testing"
	"time"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
)

type stubHealthRepo struct {
	report domain.HealthReport
	err    error
}

func (s stubHealthRepo) Collect(context.Context) (domain.HealthReport, error) {
	return s.report, s.err
}

func TestSystemService_HealthReport(t *testing.T) {
	started := testNow.Add(-90 * time.Minute)
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: stubHealthRepo{report: domain.HealthReport{Dependencies: map[string]domain.DependencyHealth{
			"firestore": {Status: domain.HealthStatusOK},
			"redis":     {Status: domain.HealthStatusDegraded, Detail: "slow"},
		}}},
		Clock: fixedClock,
		Build: BuildInfo{Version: "1.4.0", CommitSHA: "abc123", Environment: "staging", StartedAt: started},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if report.Version != "1.4.0" || report.CommitSHA != "abc123" || report.Environment != "staging" {
		t.Fatalf("build info missing: %+v", report)
	}
	if report.Uptime != 90*time.Minute || !report.GeneratedAt.Equal(testNow) {
		t.Fatalf("unexpected uptime %v generated %v", report.Uptime, report.GeneratedAt)
	}
}

func TestDeriveStatus(t *testing.T) {
	if got := deriveStatus(nil); got != domain.HealthStatusOK {
		t.Fatalf("empty checks should be ok, got %s", got)
	}
	got := deriveStatus(map[string]domain.DependencyHealth{
		"a": {Status: domain.HealthStatusDegraded},
		"b": {Status: domain.HealthStatusError},
	})
	if got != domain.HealthStatusError {
		t.Fatalf("error should win, got %s", got)
	}
}
