package spot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nerrad567/conveyor-core/internal/infrastructure/database"
	"github.com/nerrad567/conveyor-core/internal/ledger"
)

// Policy decides what a rejected line does to the rest of its batch.
type Policy string

// Batch policies.
const (
	PolicySkipLine   Policy = "skip_line"
	PolicyAbortBatch Policy = "abort_batch"
)

// Outcome is the result of one line.
type Outcome string

// Line outcomes.
const (
	OutcomeApplied           Outcome = "applied"
	OutcomeNoop              Outcome = "noop"
	OutcomeNotFound          Outcome = "not_found"
	OutcomeSkippedProcessing Outcome = "skipped_processing"
	OutcomeFailed            Outcome = "failed"
)

// LineResult reports one line of a batch.
type LineResult struct {
	Line    int     `json:"line"`
	Op      Code    `json:"op,omitempty"`
	Outcome Outcome `json:"outcome"`
	Code    string  `json:"code,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Report summarises a batch.
type Report struct {
	Lines             []LineResult  `json:"lines"`
	Applied           int           `json:"applied"`
	Noop              int           `json:"noop"`
	NotFound          int           `json:"not_found"`
	SkippedProcessing int           `json:"skipped_processing"`
	Failed            int           `json:"failed"`
	Committed         bool          `json:"committed"`
	Duration          time.Duration `json:"duration_ns"`
}

func (r *Report) add(res LineResult) {
	r.Lines = append(r.Lines, res)
	switch res.Outcome {
	case OutcomeApplied:
		r.Applied++
	case OutcomeNoop:
		r.Noop++
	case OutcomeNotFound:
		r.NotFound++
	case OutcomeSkippedProcessing:
		r.SkippedProcessing++
	case OutcomeFailed:
		r.Failed++
	}
}

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ReportHook receives every finished batch report, committed or not.
type ReportHook func(r *Report)

// Ingestor applies SPOT batches to the ledger.
type Ingestor struct {
	db     *database.DB
	parser Parser
	policy Policy
	logger Logger
	hooks  []ReportHook
}

// NewIngestor creates an ingestor. An empty policy means PolicySkipLine.
func NewIngestor(db *database.DB, policy Policy, loc *time.Location, logger Logger) *Ingestor {
	if policy == "" {
		policy = PolicySkipLine
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Ingestor{db: db, parser: Parser{Location: loc}, policy: policy, logger: logger}
}

// OnReport registers h for every finished batch.
func (in *Ingestor) OnReport(h ReportHook) {
	in.hooks = append(in.hooks, h)
}

// Policy returns the configured batch policy.
func (in *Ingestor) Policy() Policy {
	return in.policy
}

// ApplyText splits text into lines and applies them.
func (in *Ingestor) ApplyText(ctx context.Context, text string) (*Report, error) {
	return in.Apply(ctx, strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"))
}

// Apply parses and applies lines in one transaction. Blank lines are
// ignored and a batch with no other lines fails with ErrEmptyFile.
//
// Under PolicySkipLine a rejected line is reported as failed and the rest
// of the batch commits. Under PolicyAbortBatch any rejected line rolls back
// everything and Apply returns ErrBatchAborted. An unknown opcode fails the
// batch under either policy with ErrUnsupportedOp, and a ledger failure
// always rolls the batch back.
//
// The report is returned even when the batch fails.
func (in *Ingestor) Apply(ctx context.Context, lines []string) (*Report, error) {
	start := time.Now()
	report := &Report{Lines: []LineResult{}}
	defer func() {
		report.Duration = time.Since(start)
		for _, h := range in.hooks {
			h(report)
		}
	}()

	ops, fatal := in.parseAll(lines, report)
	if fatal != nil {
		return report, fatal
	}
	if len(ops) == 0 && report.Failed == 0 {
		report.add(LineResult{Outcome: OutcomeFailed, Code: CodeEmptyFile, Error: ErrEmptyFile.Error()})
		return report, ErrEmptyFile
	}
	if report.Failed > 0 && in.policy == PolicyAbortBatch {
		return report, fmt.Errorf("%w: %d rejected lines", ErrBatchAborted, report.Failed)
	}

	err := in.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		store := ledger.NewStore(tx)
		for _, p := range ops {
			outcome, err := applyOp(ctx, store, p.op)
			if err != nil {
				res := LineResult{Line: p.line, Op: p.op.Code(), Outcome: OutcomeFailed, Code: CodeLedger, Error: err.Error()}
				if errors.Is(err, ledger.ErrIntegrity) {
					res.Code = CodeIntegrity
				}
				report.add(res)
				return fmt.Errorf("line %d: %w", p.line, err)
			}
			report.add(LineResult{Line: p.line, Op: p.op.Code(), Outcome: outcome})
		}
		return nil
	})
	if err != nil {
		in.logger.Error("spot batch rolled back", "error", err, "lines", len(ops))
		return report, fmt.Errorf("%w: %w", ErrBatchAborted, err)
	}

	report.Committed = true
	in.logger.Info("spot batch applied",
		"applied", report.Applied,
		"noop", report.Noop,
		"not_found", report.NotFound,
		"skipped_processing", report.SkippedProcessing,
		"failed", report.Failed,
	)
	return report, nil
}

type parsedOp struct {
	line int
	op   Op
}

// parseAll parses every line, recording rejected lines in report. It
// returns a non-nil error only for batch-fatal problems.
func (in *Ingestor) parseAll(lines []string, report *Report) ([]parsedOp, error) {
	ops := make([]parsedOp, 0, len(lines))
	for i, raw := range lines {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		lineNo := i + 1
		op, err := in.parser.ParseLine(raw)
		if err == nil {
			ops = append(ops, parsedOp{line: lineNo, op: op})
			continue
		}

		var le *LineError
		if !errors.As(err, &le) {
			return nil, err
		}
		le.Line = lineNo
		report.add(LineResult{Line: lineNo, Outcome: OutcomeFailed, Code: le.Code, Error: le.Error()})
		in.logger.Warn("spot line rejected", "line", lineNo, "code", le.Code, "field", le.Field, "content", le.Content)

		if errors.Is(err, ErrUnsupportedOp) {
			return nil, le
		}
	}
	return ops, nil
}
