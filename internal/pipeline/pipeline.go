//
// Package pipeline runs an ordered list of scoring stages over one student
// as a chain of responsibility. A stage that disqualifies the student stops
// the chain; nothing after it runs.
//
package pipeline

import (
	"github.com/nsip/otf-admit/internal/model"
)

// Kind is the contract a stage implements.
type Kind string

const (
	// Filter only ever moves subjects from reflected to unreflected, or
	// disqualifies the student.
	Filter Kind = "filter"
	// Converter writes a converted score for reflected subjects.
	Converter Kind = "converter"
	// Selector keeps the best subjects by some ranking and excludes the rest.
	Selector Kind = "selector"
	// Aggregator combines reflected subjects into a subtotal or the result.
	Aggregator Kind = "aggregator"
)

// Stage is one transformation step.
type Stage interface {
	// Process mutates the context. It never returns an error: bad subject
	// input excludes the subject, structural failures disqualify.
	Process(c *model.Context)
	Kind() Kind
	Describe() Description
}

// Description is the self-describing record a stage renders for reports.
type Description struct {
	Kind        Kind   `json:"type"`
	Stage       string `json:"stage"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Config      string `json:"config"`
}

type handler struct {
	stage Stage
	next  *handler
}

func (h *handler) handle(c *model.Context) {
	if c.ShouldContinue() {
		h.stage.Process(c)
	}
	if c.ShouldContinue() && h.next != nil {
		h.next.handle(c)
	}
}

// Pipeline is an immutable chain of stages. It holds no per-student state
// and can be shared by any number of goroutines.
type Pipeline struct {
	head   *handler
	stages []Stage
}

// New links the stages in the given order.
func New(stages ...Stage) *Pipeline {
	p := &Pipeline{stages: append([]Stage(nil), stages...)}
	for i := len(stages) - 1; i >= 0; i-- {
		p.head = &handler{stage: stages[i], next: p.head}
	}
	return p
}

// Run pushes the context through the chain.
func (p *Pipeline) Run(c *model.Context) {
	if p.head == nil {
		return
	}
	p.head.handle(c)
}

// Len returns the number of stages.
func (p *Pipeline) Len() int { return len(p.stages) }

// Describe returns the stage descriptions in chain order.
func (p *Pipeline) Describe() []Description {
	out := make([]Description, 0, len(p.stages))
	for _, s := range p.stages {
		out = append(out, s.Describe())
	}
	return out
}
