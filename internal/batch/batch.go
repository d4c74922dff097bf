// Package batch scores many students against one institution. Students are
// independent: each one gets its own pipeline run, and a failure in one
// never affects the others.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"golang.org/x/sync/errgroup"

	"github.com/nsip/otf-admit/internal/model"
)

// Calculator is the part of a calculator the runner needs.
type Calculator interface {
	Code() string
	Calculate(st *model.Student) *model.ScoreResult
}

// Outcome is the result for one submitted student, in submission order.
type Outcome struct {
	Index     int                `json:"index"`
	StudentID string             `json:"studentId"`
	Result    *model.ScoreResult `json:"scoreResult,omitempty"`
	Subjects  []*model.Subject   `json:"subjects,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// Report summarises one batch run.
type Report struct {
	RunID        string    `json:"runId"`
	Institution  string    `json:"institution"`
	Total        int       `json:"total"`
	Scored       int       `json:"scored"`
	Disqualified int       `json:"disqualified"`
	Failed       int       `json:"failed"`
	Elapsed      string    `json:"elapsed"`
	Outcomes     []Outcome `json:"outcomes"`
}

// Runner runs batches on a bounded pool of goroutines.
type Runner struct {
	workers int
	log     *log.Logger
}

// New returns a runner with the given pool size; values below one use
// the number of CPUs.
func New(workers int) *Runner {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	l := log.New("batch")
	l.SetLevel(log.INFO)
	return &Runner{workers: workers, log: l}
}

func (r *Runner) Workers() int { return r.workers }

// Logger exposes the runner's logger so callers can redirect it.
func (r *Runner) Logger() *log.Logger { return r.log }

// Run scores every student. Outcomes keep the submission order whatever
// order the workers finish in. The only error is a cancelled context.
func (r *Runner) Run(ctx context.Context, calc Calculator, students []*model.Student) (*Report, error) {
	start := time.Now()
	rep := &Report{
		RunID:       uuid.NewString(),
		Institution: calc.Code(),
		Total:       len(students),
		Outcomes:    make([]Outcome, len(students)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, st := range students {
		i, st := i, st
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rep.Outcomes[i] = r.one(rep.RunID, calc, i, st)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, o := range rep.Outcomes {
		switch {
		case o.Error != "", o.Result == nil:
			rep.Failed++
		case o.Result.Disqualified:
			rep.Disqualified++
		default:
			rep.Scored++
		}
	}
	rep.Elapsed = time.Since(start).Truncate(time.Millisecond).String()
	r.log.Infoj(log.JSON{
		"run":          rep.RunID,
		"institution":  rep.Institution,
		"total":        rep.Total,
		"scored":       rep.Scored,
		"disqualified": rep.Disqualified,
		"failed":       rep.Failed,
		"elapsed":      rep.Elapsed,
	})
	return rep, nil
}

// one runs a single student, turning a panic into a failed outcome.
func (r *Runner) one(runID string, calc Calculator, i int, st *model.Student) (out Outcome) {
	out.Index = i
	if st == nil {
		out.Error = "missing student"
		r.log.Warnj(log.JSON{"run": runID, "index": i, "error": out.Error})
		return out
	}
	out.StudentID = st.ID
	defer func() {
		if p := recover(); p != nil {
			out.Result = nil
			out.Subjects = nil
			out.Error = fmt.Sprintf("calculation failed: %v", p)
			r.log.Errorj(log.JSON{"run": runID, "index": i, "student": st.ID, "error": out.Error})
		}
	}()
	out.Result = calc.Calculate(st)
	if out.Result == nil {
		out.Error = "calculator returned no result"
		r.log.Errorj(log.JSON{"run": runID, "index": i, "student": st.ID, "error": out.Error})
		return out
	}
	out.Subjects = st.Subjects
	if out.Result.Disqualified {
		r.log.Warnj(log.JSON{"run": runID, "student": st.ID, "disqualified": out.Result.Reason})
	}
	return out
}
