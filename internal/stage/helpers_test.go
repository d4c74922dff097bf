package stage

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nsip/otf-admit/internal/model"
	"github.com/nsip/otf-admit/internal/pipeline"
	"github.com/nsip/otf-admit/internal/policy"
)

func yamlConfig(src string) Decoder {
	return func(v interface{}) error {
		return yaml.Unmarshal([]byte(src), v)
	}
}

var testEnv = Env{
	Institution: "test",
	Catalog: policy.NewCatalog(
		map[string]string{"A10": "Student record", "A20": "Regional balance"},
		map[string]string{"U100": "Computer science", "U200": "Mechanical engineering"},
	),
}

func mustBuild(t *testing.T, name, src string) pipeline.Stage {
	t.Helper()
	s, err := Build(name, testEnv, yamlConfig(src))
	require.NoError(t, err)
	return s
}

func f(v float64) *float64 { return &v }

type subOpt func(*model.Subject)

func sub(name string, opts ...subOpt) *model.Subject {
	s := &model.Subject{
		Name: name, Code: name, Separation: "common", Group: "korean", Unit: "1", Grade: 1, Term: 1,
		Detail: model.CalculationDetail{Reflected: true},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func sep(v string) subOpt     { return func(s *model.Subject) { s.Separation = v } }
func group(v string) subOpt   { return func(s *model.Subject) { s.Group = v } }
func unit(v string) subOpt    { return func(s *model.Subject) { s.Unit = v } }
func rank(v string) subOpt    { return func(s *model.Subject) { s.RankGrade = v } }
func ach(v string) subOpt     { return func(s *model.Subject) { s.Achievement = v } }
func assess(v string) subOpt  { return func(s *model.Subject) { s.Assessment = v } }
func when(g, t int) subOpt    { return func(s *model.Subject) { s.Grade, s.Term = g, t } }
func raw(v float64) subOpt    { return func(s *model.Subject) { s.RawScore = f(v) } }
func scored(v float64) subOpt { return func(s *model.Subject) { s.Detail.Convert("test", v, model.BasisGrade, "") } }
func cohort(r, tie, size int) subOpt {
	return func(s *model.Subject) { s.Rank, s.TieCount, s.CohortSize = r, tie, size }
}
func stats(mean, sd float64) subOpt {
	return func(s *model.Subject) { s.CohortMean, s.CohortStdDev = f(mean), f(sd) }
}

func student(subs ...*model.Subject) *model.Context {
	st := &model.Student{ID: "s1", AdmissionCode: "A10", UnitCode: "U100", GraduationYear: 2025}
	st.Subjects = subs
	return model.NewContext(st)
}

func reflected(c *model.Context) []string {
	var out []string
	for _, s := range c.Student.Subjects {
		if s.Detail.Reflected {
			out = append(out, s.Name)
		}
	}
	return out
}
