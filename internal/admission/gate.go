// Package admission decides whether a production run may start. The gate
// enforces the enabled flag, a monthly provider-spend budget persisted in
// a small JSON document, and a minimum interval between runs.
package admission

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"briefcast/internal/observability/metrics"
)

// Decision is the gate's verdict for one run request.
type Decision string

const (
	Admitted         Decision = "admitted"
	RejectedDisabled Decision = "rejected_disabled"
	RejectedBudget   Decision = "rejected_budget"
	RejectedRate     Decision = "rejected_rate"
)

// ErrNotAdmitted is returned when the gate rejects a run.
var ErrNotAdmitted = errors.New("run not admitted")

// spendDoc is the persisted monthly spend state.
type spendDoc struct {
	Month string  `json:"month"`
	Spent float64 `json:"spent"`
}

// Gate guards run admission. Safe for concurrent use.
type Gate struct {
	enabled   bool
	costLimit float64
	spendPath string
	limiter   *rate.Limiter
	now       func() time.Time

	mu sync.Mutex
}

// Options configure optional Gate behavior.
type Option func(*Gate)

// WithClock overrides the gate's clock for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithMinInterval enforces a minimum gap between admitted runs. Zero
// disables the rate check.
func WithMinInterval(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// NewGate creates a gate. A zero costLimit disables the budget check.
func NewGate(enabled bool, costLimit float64, spendPath string, opts ...Option) *Gate {
	g := &Gate{
		enabled:   enabled,
		costLimit: costLimit,
		spendPath: spendPath,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit evaluates the gate for one run request. A rejection returns the
// decision and ErrNotAdmitted wrapped with the reason; internal read
// failures of the spend document fail open with a warning.
func (g *Gate) Admit() (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	decision := g.evaluate()
	metrics.RecordAdmission(string(decision))
	if decision != Admitted {
		return decision, fmt.Errorf("%w: %s", ErrNotAdmitted, decision)
	}
	return Admitted, nil
}

func (g *Gate) evaluate() Decision {
	if !g.enabled {
		return RejectedDisabled
	}
	if g.limiter != nil && !g.limiter.Allow() {
		return RejectedRate
	}
	if g.costLimit > 0 {
		spent, err := g.currentSpend()
		if err != nil {
			slog.Warn("spend document unreadable, admitting run",
				slog.String("path", g.spendPath),
				slog.Any("error", err))
			return Admitted
		}
		if spent >= g.costLimit {
			slog.Warn("monthly budget exhausted",
				slog.Float64("spent", spent),
				slog.Float64("limit", g.costLimit))
			return RejectedBudget
		}
	}
	return Admitted
}

// RecordSpend adds amount to the current month's spend. The counter resets
// automatically when the month rolls over.
func (g *Gate) RecordSpend(amount float64) error {
	if amount <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	doc, err := g.readDoc()
	if err != nil {
		slog.Warn("resetting unreadable spend document",
			slog.String("path", g.spendPath),
			slog.Any("error", err))
		doc = spendDoc{}
	}

	month := g.now().UTC().Format("2006-01")
	if doc.Month != month {
		doc = spendDoc{Month: month}
	}
	doc.Spent += amount

	return g.writeDoc(doc)
}

// currentSpend returns the spend recorded for the current month.
func (g *Gate) currentSpend() (float64, error) {
	doc, err := g.readDoc()
	if err != nil {
		return 0, err
	}
	if doc.Month != g.now().UTC().Format("2006-01") {
		return 0, nil
	}
	return doc.Spent, nil
}

func (g *Gate) readDoc() (spendDoc, error) {
	data, err := os.ReadFile(g.spendPath)
	if err != nil {
		if os.IsNotExist(err) {
			return spendDoc{}, nil
		}
		return spendDoc{}, fmt.Errorf("read spend document: %w", err)
	}
	var doc spendDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return spendDoc{}, fmt.Errorf("parse spend document: %w", err)
	}
	return doc, nil
}

// writeDoc persists the spend document atomically via temp file rename.
func (g *Gate) writeDoc(doc spendDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal spend document: %w", err)
	}

	dir := filepath.Dir(g.spendPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create spend directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".spend-*")
	if err != nil {
		return fmt.Errorf("create spend temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write spend temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close spend temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), g.spendPath); err != nil {
		return fmt.Errorf("replace spend document: %w", err)
	}
	return nil
}
