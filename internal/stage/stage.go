// Package stage is the library of scoring stages. Each stage type registers
// a factory under its configuration name; the calculator package looks the
// factories up while assembling an institution's chain.
package stage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/nsip/otf-admit/internal/model"
	"github.com/nsip/otf-admit/internal/numeric"
	"github.com/nsip/otf-admit/internal/pipeline"
	"github.com/nsip/otf-admit/internal/policy"
)

// ErrUnknownStage is returned for a stage type nobody registered.
var ErrUnknownStage = errors.New("unknown stage type")

// Decoder fills a stage config struct from the definition document.
type Decoder func(v interface{}) error

// Env carries the read-only institution data a stage may need.
type Env struct {
	Institution string
	Catalog     policy.Catalog
}

// Factory builds a stage from its configuration.
type Factory func(env Env, decode Decoder) (pipeline.Stage, error)

var registry = map[string]Factory{}

// Register binds a factory to a stage type name. Call from init().
func Register(name string, f Factory) { registry[name] = f }

// Lookup returns the factory for a stage type.
func Lookup(name string) (Factory, bool) { f, ok := registry[name]; return f, ok }

// Types lists the registered stage type names.
func Types() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build creates a stage of the named type.
func Build(name string, env Env, decode Decoder) (pipeline.Stage, error) {
	f, ok := Lookup(name)
	if !ok {
		return nil, errors.Wrap(ErrUnknownStage, name)
	}
	s, err := f(env, decode)
	if err != nil {
		return nil, errors.Wrapf(err, "stage %s", name)
	}
	return s, nil
}

var validate = validator.New()

// decodeConfig decodes and validates a stage config.
func decodeConfig(decode Decoder, cfg interface{}) error {
	if decode != nil {
		if err := decode(cfg); err != nil {
			return errors.Wrap(err, "decode config")
		}
	}
	if err := validate.Struct(cfg); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// base supplies the name and kind half of pipeline.Stage.
type base struct {
	name string
	kind pipeline.Kind
}

func (b base) Kind() pipeline.Kind { return b.kind }

func (b base) describe(subject, description, config string) pipeline.Description {
	return pipeline.Description{
		Kind:        b.kind,
		Stage:       b.name,
		Subject:     subject,
		Description: description,
		Config:      config,
	}
}

// valueRef points at either the final score or a subtotal bucket.
type valueRef struct {
	final  bool
	bucket model.Bucket
}

const finalRef = "final"

func parseRef(s string) (valueRef, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == finalRef {
		return valueRef{final: true}, nil
	}
	b, err := model.ParseBucket(s)
	if err != nil {
		return valueRef{}, err
	}
	return valueRef{bucket: b}, nil
}

func (r valueRef) String() string {
	if r.final {
		return finalRef
	}
	return string(r.bucket)
}

// read returns the referenced value; ok is false when it was never written.
func (r valueRef) read(c *model.Context) (float64, bool) {
	if r.final {
		if c.Student.Result == nil {
			return 0, false
		}
		return c.Student.Result.FinalScore, true
	}
	if !c.Subtotals.Has(r.bucket) {
		return 0, false
	}
	return c.Subtotals.Get(r.bucket), true
}

func (r valueRef) write(c *model.Context, v float64, formula string) {
	if !r.final {
		c.Subtotals.Set(r.bucket, v)
		return
	}
	if c.Student.Result != nil && c.Student.Result.Formula != "" && formula != "" {
		formula = c.Student.Result.Formula + " | " + formula
	}
	c.Student.SetResult(v, formula)
}

// inTarget reports whether a subject's separation is in the target set.
func inTarget(target policy.CodeSet, sub *model.Subject) bool {
	return target.Contains(sub.Separation)
}

// targets returns the reflected subjects in the target separations.
func targets(st *model.Student, target policy.CodeSet) []*model.Subject {
	var out []*model.Subject
	for _, sub := range st.Subjects {
		if sub.Detail.Reflected && inTarget(target, sub) {
			out = append(out, sub)
		}
	}
	return out
}

// withScore keeps the subjects some converter produced a score for. A
// subject an achievement table passed over and nothing else converted has
// no score to average.
func withScore(subs []*model.Subject) []*model.Subject {
	var out []*model.Subject
	for _, sub := range subs {
		if sub.Detail.Converted() {
			out = append(out, sub)
		}
	}
	return out
}

func unitOf(sub *model.Subject) float64 {
	return numeric.ParseUnit(sub.Unit)
}

func gradeTable(t map[int]float64) string {
	keys := make([]int, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d→%s", k, num(t[k])))
	}
	return strings.Join(parts, " ")
}

func letterTable(t map[string]float64) string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s→%s", k, num(t[k])))
	}
	return strings.Join(parts, " ")
}

func normalizeLetters(t map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(t))
	for k, v := range t {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}

func num(v float64) string {
	return fmt.Sprintf("%g", v)
}

func joinEntries(parts []string) string {
	return strings.Join(parts, "; ")
}
