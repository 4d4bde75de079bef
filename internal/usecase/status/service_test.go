package status_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"briefcast/internal/ledger"
	"briefcast/internal/observability/metrics"
	"briefcast/internal/resilience/classify"
	"briefcast/internal/resilience/retry"
	"briefcast/internal/usecase/status"
)

func newLedgerRecord(t *testing.T, kind classify.Kind, msg string, at time.Time) *retry.ErrorRecord {
	t.Helper()
	verdict := classify.NewClassifier(nil).Classify(
		classify.WithKind(kind, errors.New(msg)), "")
	return retry.NewRecord(verdict, at)
}

func TestReportEmptyState(t *testing.T) {
	svc := status.NewService(nil, nil)

	report, err := svc.Report(context.Background())
	if err != nil {
		t.Fatalf("Report err=%v", err)
	}
	if report.LastRun != nil || report.RecentRuns != 0 {
		t.Errorf("report = %+v, want empty run section", report)
	}
	if report.Ledger.Total != 0 || len(report.OpenRecords) != 0 {
		t.Errorf("report = %+v, want empty ledger section", report)
	}
}

func TestReport(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	runLog, err := metrics.NewRunLog(filepath.Join(dir, "runs.ndjson"))
	if err != nil {
		t.Fatalf("NewRunLog err=%v", err)
	}
	_ = runLog.Append(metrics.RunRecord{RunID: "a", StartedAt: at, FinishedAt: at.Add(time.Minute), Success: true, ItemCount: 5})
	_ = runLog.Append(metrics.RunRecord{RunID: "b", StartedAt: at.Add(time.Hour), FinishedAt: at.Add(time.Hour + time.Minute), Success: false, Errors: []string{"step synthesize: tts down"}})

	led, err := ledger.NewFileLedger(filepath.Join(dir, "ledger.json"))
	if err != nil {
		t.Fatalf("NewFileLedger err=%v", err)
	}
	resolved := newLedgerRecord(t, classify.KindNetworkError, "recovered", at)
	resolved.Resolved = true
	resolved.ResolvedAt = at.Add(5 * time.Minute)
	_ = led.Upsert(ctx, resolved)

	newer := newLedgerRecord(t, classify.KindSynthesisFailed, "tts down", at.Add(2*time.Hour))
	newer.RetryCount = 1
	_ = led.Upsert(ctx, newer)
	older := newLedgerRecord(t, classify.KindBroadcastFailed, "webhook 500", at.Add(time.Hour))
	_ = led.Upsert(ctx, older)

	report, err := status.NewService(led, runLog).Report(ctx)
	if err != nil {
		t.Fatalf("Report err=%v", err)
	}

	if report.LastRun == nil || report.LastRun.RunID != "b" {
		t.Fatalf("LastRun = %+v, want the most recent run", report.LastRun)
	}
	if report.RecentRuns != 2 || report.SuccessRate != 0.5 {
		t.Errorf("RecentRuns=%d SuccessRate=%f, want 2/0.5", report.RecentRuns, report.SuccessRate)
	}

	if report.Ledger.Total != 3 || report.Ledger.Resolved != 1 || report.Ledger.Open != 2 {
		t.Errorf("ledger = %+v", report.Ledger)
	}
	if report.Ledger.MeanResolutionSeconds != 300 {
		t.Errorf("MeanResolutionSeconds = %f, want 300", report.Ledger.MeanResolutionSeconds)
	}
	if report.Ledger.ByKind["network_error"] != 1 {
		t.Errorf("ByKind = %v", report.Ledger.ByKind)
	}

	if len(report.OpenRecords) != 2 {
		t.Fatalf("open records = %d, want 2", len(report.OpenRecords))
	}
	if report.OpenRecords[0].Kind != "broadcast_failed" || report.OpenRecords[1].Kind != "synthesis_failed" {
		t.Errorf("open records not oldest-first: %+v", report.OpenRecords)
	}
	if report.OpenRecords[1].RetryCount != 1 || report.OpenRecords[1].State != "retrying" {
		t.Errorf("open record = %+v", report.OpenRecords[1])
	}
}

func TestRender(t *testing.T) {
	at := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	last := metrics.RunRecord{
		RunID:       "a",
		StartedAt:   at,
		FinishedAt:  at.Add(90 * time.Second),
		Success:     true,
		DryRun:      true,
		ItemCount:   5,
		CostDollars: 0.17,
	}
	report := &status.Report{
		GeneratedAt: at.Add(time.Hour),
		LastRun:     &last,
		RecentRuns:  4,
		SuccessRate: 0.75,
		Ledger:      status.LedgerStatus{Total: 2, Open: 1, ResolutionRate: 0.5},
		OpenRecords: []status.OpenRecord{{
			ID: "abc", Kind: "synthesis_failed", Severity: "high", State: "retrying",
			RetryCount: 1, MaxRetries: 3, CreatedAt: at, Message: "tts down",
		}},
	}

	var b strings.Builder
	report.Render(&b)
	out := b.String()

	for _, want := range []string{
		"last run succeeded",
		"5 stories",
		"(dry run)",
		"success rate over last 4 runs: 75%",
		"2 records, 1 open",
		"synthesis_failed attempt 1/3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderNoRuns(t *testing.T) {
	var b strings.Builder
	(&status.Report{GeneratedAt: time.Now()}).Render(&b)
	if !strings.Contains(b.String(), "no runs recorded yet") {
		t.Errorf("output = %s", b.String())
	}
}
