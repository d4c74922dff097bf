// Package calculator assembles an institution's scoring pipeline from its
// declarative definition and runs it over students. A Calculator is built
// once and shared read-only by every run for that institution.
package calculator

import (
	"github.com/pkg/errors"

	"github.com/nsip/otf-admit/internal/model"
	"github.com/nsip/otf-admit/internal/pipeline"
	"github.com/nsip/otf-admit/internal/policy"
	"github.com/nsip/otf-admit/internal/stage"
)

// FormulaNoScore marks a run in which no aggregator wrote a score.
const FormulaNoScore = "no score produced"

// stageCalculate is recorded as the producing stage of subjects the run
// itself excluded.
const stageCalculate = "calculate"

// Calculator is one institution's fixed chain of stages.
type Calculator struct {
	code     string
	name     string
	catalog  policy.Catalog
	pipeline *pipeline.Pipeline
}

// Build turns a definition into a calculator. The stage order is kept
// exactly as written.
func Build(def Definition) (*Calculator, error) {
	env := stage.Env{
		Institution: def.Code,
		Catalog:     policy.NewCatalog(def.Admissions, def.Units),
	}
	stages := make([]pipeline.Stage, 0, len(def.Stages))
	converted := false
	for i, spec := range def.Stages {
		s, err := stage.Build(spec.Type, env, spec.decoder())
		if err != nil {
			return nil, errors.Wrapf(err, "%s: stage %d", def.Code, i+1)
		}
		if r, ok := s.(stage.ScoreRanked); ok && r.RanksByScore() && !converted {
			return nil, errors.Errorf("%s: stage %d (%s) ranks by score before any converter", def.Code, i+1, spec.Type)
		}
		if s.Kind() == pipeline.Converter {
			converted = true
		}
		stages = append(stages, s)
	}
	return &Calculator{
		code:     def.Code,
		name:     def.Name,
		catalog:  env.Catalog,
		pipeline: pipeline.New(stages...),
	}, nil
}

func (c *Calculator) Code() string { return c.code }
func (c *Calculator) Name() string { return c.name }

// Catalog returns the institution's admission and unit names.
func (c *Calculator) Catalog() policy.Catalog { return c.catalog }

// Calculate resets the student's subject details, runs the chain and
// returns the score result. The student is mutated in place; a result
// always exists afterwards.
func (c *Calculator) Calculate(st *model.Student) *model.ScoreResult {
	st.ResetDetails()
	ctx := model.NewContext(st)
	c.pipeline.Run(ctx)
	if st.Result == nil {
		st.SetResult(0, FormulaNoScore)
	}
	if !st.Result.Disqualified {
		excludeUnconverted(st)
	}
	return st.Result
}

// excludeUnconverted marks subjects that stayed reflected without any
// converter scoring them; the averages already left them out.
func excludeUnconverted(st *model.Student) {
	for _, sub := range st.Subjects {
		if sub.Detail.Reflected && !sub.Detail.Converted() {
			sub.Detail.Exclude(stageCalculate, stage.ReasonNoRule)
		}
	}
}

// Describe lists the stages in chain order.
func (c *Calculator) Describe() []pipeline.Description {
	return c.pipeline.Describe()
}
