// Package status reports pipeline health: the latest runs from the run
// log and the error ledger's open records and aggregates.
package status

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"briefcast/internal/ledger"
	"briefcast/internal/observability/metrics"
)

// recentRunWindow is how many run records feed the success rate.
const recentRunWindow = 20

// Report is the full status snapshot. It marshals cleanly to JSON for
// the --json flag.
type Report struct {
	GeneratedAt time.Time          `json:"generated_at"`
	LastRun     *metrics.RunRecord `json:"last_run,omitempty"`
	RecentRuns  int                `json:"recent_runs"`
	SuccessRate float64            `json:"success_rate"`
	Ledger      LedgerStatus       `json:"ledger"`
	OpenRecords []OpenRecord       `json:"open_records"`
}

// LedgerStatus aggregates the error ledger.
type LedgerStatus struct {
	Total                 int            `json:"total"`
	Resolved              int            `json:"resolved"`
	Open                  int            `json:"open"`
	ResolutionRate        float64        `json:"resolution_rate"`
	MeanResolutionSeconds float64        `json:"mean_resolution_seconds"`
	BySeverity            map[string]int `json:"by_severity,omitempty"`
	ByKind                map[string]int `json:"by_kind,omitempty"`
}

// OpenRecord is one unresolved ledger entry, oldest first.
type OpenRecord struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Severity   string    `json:"severity"`
	State      string    `json:"state"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`
	CreatedAt  time.Time `json:"created_at"`
	Message    string    `json:"message"`
}

// Service assembles status reports.
type Service struct {
	ledger ledger.Ledger
	runLog *metrics.RunLog
	now    func() time.Time
}

// NewService creates the status service. Either collaborator may be nil;
// the corresponding report section is then empty.
func NewService(led ledger.Ledger, runLog *metrics.RunLog) *Service {
	return &Service{ledger: led, runLog: runLog, now: time.Now}
}

// Report builds a status snapshot. Run log and ledger problems degrade
// their section rather than failing the whole report.
func (s *Service) Report(ctx context.Context) (*Report, error) {
	report := &Report{GeneratedAt: s.now()}

	if s.runLog != nil {
		runs, err := s.runLog.Last(recentRunWindow)
		if err != nil {
			return nil, fmt.Errorf("read run log: %w", err)
		}
		report.RecentRuns = len(runs)
		if len(runs) > 0 {
			last := runs[len(runs)-1]
			report.LastRun = &last
			succeeded := 0
			for _, r := range runs {
				if r.Success {
					succeeded++
				}
			}
			report.SuccessRate = float64(succeeded) / float64(len(runs))
		}
	}

	if s.ledger != nil {
		stats, err := s.ledger.Stats(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("compute ledger stats: %w", err)
		}
		report.Ledger = LedgerStatus{
			Total:                 stats.Total,
			Resolved:              stats.Resolved,
			Open:                  stats.Total - stats.Resolved,
			ResolutionRate:        stats.ResolutionRate,
			MeanResolutionSeconds: stats.MeanResolutionLatency.Seconds(),
			BySeverity:            make(map[string]int, len(stats.BySeverity)),
			ByKind:                make(map[string]int, len(stats.ByKind)),
		}
		for severity, count := range stats.BySeverity {
			report.Ledger.BySeverity[string(severity)] = count
		}
		for kind, count := range stats.ByKind {
			report.Ledger.ByKind[string(kind)] = count
		}

		records, err := s.ledger.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load ledger: %w", err)
		}
		for _, rec := range records {
			if rec.Resolved {
				continue
			}
			report.OpenRecords = append(report.OpenRecords, OpenRecord{
				ID:         rec.ID(),
				Kind:       string(rec.Kind),
				Severity:   string(rec.Severity),
				State:      string(rec.State()),
				RetryCount: rec.RetryCount,
				MaxRetries: rec.MaxRetries,
				CreatedAt:  rec.CreatedAt,
				Message:    rec.Message,
			})
		}
		sort.Slice(report.OpenRecords, func(i, j int) bool {
			return report.OpenRecords[i].CreatedAt.Before(report.OpenRecords[j].CreatedAt)
		})
	}

	return report, nil
}

// Render writes the report in a human-readable layout.
func (r *Report) Render(w io.Writer) {
	fmt.Fprintf(w, "briefcast status at %s\n\n", r.GeneratedAt.Format(time.RFC3339))

	if r.LastRun == nil {
		fmt.Fprintln(w, "no runs recorded yet")
	} else {
		outcome := "failed"
		if r.LastRun.Success {
			outcome = "succeeded"
		}
		fmt.Fprintf(w, "last run %s at %s (%.1fs, %d stories, $%.4f)\n",
			outcome,
			r.LastRun.StartedAt.Format(time.RFC3339),
			r.LastRun.FinishedAt.Sub(r.LastRun.StartedAt).Seconds(),
			r.LastRun.ItemCount,
			r.LastRun.CostDollars)
		if r.LastRun.DryRun {
			fmt.Fprintln(w, "  (dry run)")
		}
		for _, e := range r.LastRun.Errors {
			fmt.Fprintf(w, "  error: %s\n", e)
		}
		fmt.Fprintf(w, "success rate over last %d runs: %.0f%%\n", r.RecentRuns, r.SuccessRate*100)
	}

	fmt.Fprintf(w, "\nledger: %d records, %d open, %.0f%% resolved",
		r.Ledger.Total, r.Ledger.Open, r.Ledger.ResolutionRate*100)
	if r.Ledger.MeanResolutionSeconds > 0 {
		fmt.Fprintf(w, ", mean resolution %.0fs", r.Ledger.MeanResolutionSeconds)
	}
	fmt.Fprintln(w)

	for _, rec := range r.OpenRecords {
		fmt.Fprintf(w, "  [%s/%s] %s attempt %d/%d since %s: %s\n",
			rec.Severity, rec.State, rec.Kind,
			rec.RetryCount, rec.MaxRetries,
			rec.CreatedAt.Format(time.RFC3339), rec.Message)
	}
}
