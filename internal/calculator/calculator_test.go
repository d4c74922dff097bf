package calculator

import (
	"testing"
	"testing/fstest"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsip/otf-admit/internal/model"
	"github.com/nsip/otf-admit/internal/pipeline"
	"github.com/nsip/otf-admit/internal/stage"
)

func bundledRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Load("")
	require.NoError(t, err)
	return r
}

func calc(t *testing.T, code string) *Calculator {
	t.Helper()
	c, err := bundledRegistry(t).Lookup(code)
	require.NoError(t, err)
	return c
}

type subOpt func(*model.Subject)

func subject(name, sep, group string, opts ...subOpt) *model.Subject {
	s := &model.Subject{Name: name, Code: name, Separation: sep, Group: group, Unit: "1", Grade: 1, Term: 1}
	for _, o := range opts {
		o(s)
	}
	return s
}

func grade(g string) subOpt     { return func(s *model.Subject) { s.RankGrade = g } }
func units(u string) subOpt     { return func(s *model.Subject) { s.Unit = u } }
func term(g, t int) subOpt      { return func(s *model.Subject) { s.Grade, s.Term = g, t } }
func achieved(a string) subOpt  { return func(s *model.Subject) { s.Achievement = a } }
func assessed(a string) subOpt  { return func(s *model.Subject) { s.Assessment = a } }
func rawScore(v float64) subOpt { return func(s *model.Subject) { s.RawScore = &v } }
func zStats(mean, sd float64) subOpt {
	return func(s *model.Subject) { s.CohortMean, s.CohortStdDev = &mean, &sd }
}

func applicant(adm, unit string, subs ...*model.Subject) *model.Student {
	return &model.Student{ID: "st-1", AdmissionCode: adm, UnitCode: unit, GraduationYear: 2025, Subjects: subs}
}

func detailOf(t *testing.T, st *model.Student, name string) model.CalculationDetail {
	t.Helper()
	for _, sub := range st.Subjects {
		if sub.Name == name {
			return sub.Detail
		}
	}
	t.Fatalf("no subject %s", name)
	return model.CalculationDetail{}
}

func TestBundledInstitutions(t *testing.T) {
	r := bundledRegistry(t)
	assert.Equal(t, []string{"dasol", "gaon", "hanul", "narae", "saebit"}, r.Codes())

	_, err := r.Lookup("nowhere")
	assert.True(t, errors.Is(err, ErrUnknownInstitution))
}

func hanulApplicant() *model.Student {
	return applicant("A10", "U210",
		subject("Korean", "common", "korean", grade("2"), units("4")),
		subject("Math", "common", "math", grade("1"), units("4"), term(1, 2)),
		subject("English", "common", "english", grade("3"), units("3"), term(2, 1)),
		subject("Physics", "common", "science", grade("4"), units("2"), term(2, 2)),
		subject("History", "common", "social", grade("1"), units("3")),
		subject("Calculus", "common", "math", grade("1"), units("4"), term(3, 2)),
		subject("PE", "arts", "pe", achieved("A")),
		subject("Programming", "career", "tech", achieved("A"), units("2")),
		subject("Geometry", "career", "math", achieved("B"), term(3, 1)),
	)
}

func TestHanul(t *testing.T) {
	c := calc(t, "hanul")
	st := hanulApplicant()
	res := c.Calculate(st)

	// common 1205/13 ceil → 92.693, career 90; 0.8×92.693 + 0.2×90 floored
	assert.Equal(t, 92.15, res.FinalScore)
	assert.False(t, res.Disqualified)
	assert.Equal(t, "st-1", res.StudentID)

	assert.Equal(t, stage.ReasonSubjectGroup, detailOf(t, st, "History").NonReflectedReason)
	assert.Equal(t, stage.ReasonOutsideWindow, detailOf(t, st, "Calculus").NonReflectedReason)
	assert.Equal(t, stage.ReasonSeparation, detailOf(t, st, "PE").NonReflectedReason)
	assert.Equal(t, "semesterWindow", detailOf(t, st, "Calculus").ProducingStage)

	k := detailOf(t, st, "Korean")
	assert.True(t, k.Reflected)
	assert.Equal(t, 96.0, k.ConvertedScore)
	assert.Equal(t, model.BasisGrade, k.ConvertedBasis)
	assert.Equal(t, 80.0, detailOf(t, st, "Geometry").ConvertedScore)
}

func TestHanulEarlyGraduateAndRerun(t *testing.T) {
	c := calc(t, "hanul")
	st := hanulApplicant()
	st.EarlyGraduate = true

	first := *c.Calculate(st)
	assert.Equal(t, stage.ReasonEarlyGraduate, detailOf(t, st, "Physics").NonReflectedReason)
	// common 1051/11 ceil → 95.546
	assert.Equal(t, 94.43, first.FinalScore)

	// a second run starts from a clean slate and lands on the same result
	second := *c.Calculate(st)
	assert.Equal(t, first, second)
}

func TestHanulDisqualification(t *testing.T) {
	c := calc(t, "hanul")

	st := hanulApplicant()
	st.UnitCode = "U999"
	res := c.Calculate(st)
	assert.True(t, res.Disqualified)
	assert.Equal(t, 0.0, res.FinalScore)
	assert.Equal(t, "unsupported recruitment unit: U999", res.Reason)
	assert.Equal(t, "eligibility", res.Formula)
	// nothing after the rejecting stage ran
	for _, sub := range st.Subjects {
		assert.True(t, sub.Detail.Reflected, sub.Name)
		assert.False(t, sub.Detail.Converted(), sub.Name)
	}

	st = applicant("A20", "U110",
		subject("Korean", "common", "korean", grade("2")),
		subject("Math", "common", "math", grade("2")),
	)
	res = c.Calculate(st)
	assert.True(t, res.Disqualified)
	assert.Equal(t, "missing required subject group: english", res.Reason)
}

func TestHanulUnmappedAchievementLeavesCareerAverage(t *testing.T) {
	c := calc(t, "hanul")
	st := applicant("A10", "U110",
		subject("Korean", "common", "korean", grade("1")),
		subject("Math", "common", "math", grade("1")),
		subject("English", "common", "english", grade("1")),
		subject("Programming", "career", "tech", achieved("A")),
		subject("Robotics lab", "career", "tech", achieved("P")),
	)
	res := c.Calculate(st)

	// career averages Programming alone; a zero for the lab would give 90
	assert.Equal(t, 100.0, res.FinalScore)
	lab := detailOf(t, st, "Robotics lab")
	assert.False(t, lab.Reflected)
	assert.Equal(t, stage.ReasonNoRule, lab.NonReflectedReason)
	assert.Equal(t, "calculate", lab.ProducingStage)
	assert.True(t, detailOf(t, st, "Programming").Reflected)
}

func TestGaon(t *testing.T) {
	c := calc(t, "gaon")
	st := applicant("A10", "U100",
		subject("Korean", "common", "korean", grade("1"), units("4")),
		subject("Math", "common", "math", grade("2"), units("4")),
		subject("English", "common", "english", grade("3"), units("3")),
		subject("Science", "common", "science", grade("1"), units("2")),
		subject("Social", "common", "social", grade("5"), units("3")),
		subject("History", "common", "social", grade("2"), units("2")),
		subject("Music", "arts", "music", assessed("A")),
	)
	res := c.Calculate(st)
	// top five: 145.2 / 15 = 9.68, ×100
	assert.Equal(t, 968.0, res.FinalScore)
	assert.Equal(t, stage.ReasonTopK, detailOf(t, st, "Social").NonReflectedReason)
	assert.Contains(t, res.Formula, " | ")

	low := applicant("A10", "U100",
		subject("Korean", "common", "korean", grade("1"), units("4")),
		subject("Math", "common", "math", grade("2"), units("4")),
	)
	res = c.Calculate(low)
	assert.True(t, res.Disqualified)
	assert.Equal(t, 0.0, res.FinalScore)
	assert.Equal(t, "insufficient units: 8 of 10", res.Reason)
}

func TestSaebit(t *testing.T) {
	c := calc(t, "saebit")
	st := applicant("A10", "U500",
		subject("Korean 1", "common", "korean", grade("2"), units("4")),
		subject("Math 1", "common", "math", grade("3"), units("4")),
		subject("Korean 2", "common", "korean", grade("1"), units("4"), term(1, 2)),
		subject("English 1", "common", "english", grade("B"), units("2"), term(1, 2), rawScore(85), zStats(70, 10)),
		subject("Math 2", "common", "math", grade("4"), units("4"), term(2, 1)),
		subject("Science", "common", "science", grade("2"), units("3"), term(2, 2)),
		subject("Social", "common", "social", grade("2"), units("3"), term(2, 2)),
		subject("English 2", "common", "english", grade("3"), units("2"), term(3, 1)),
	)
	res := c.Calculate(st)
	// best semesters 1-2, 2-2, 1-1; weighted grade 40/20 = 2.0
	assert.Equal(t, 98.0, res.FinalScore)

	e := detailOf(t, st, "English 1")
	assert.Equal(t, model.BasisZScore, e.ConvertedBasis)
	assert.Equal(t, 2.0, e.ConvertedScore)
	assert.Equal(t, stage.ReasonSemester, detailOf(t, st, "Math 2").NonReflectedReason)
	assert.Equal(t, stage.ReasonSemester, detailOf(t, st, "English 2").NonReflectedReason)

	st.AdmissionCode = "A20"
	res = c.Calculate(st)
	assert.True(t, res.Disqualified)
	assert.Equal(t, "unsupported admission track: Regional balance", res.Reason)
}

func TestDasol(t *testing.T) {
	c := calc(t, "dasol")
	st := applicant("A10", "U700",
		subject("Korean", "common", "korean", grade("1"), units("4")),
		subject("Math", "common", "math", grade("2"), units("4")),
		subject("English", "common", "english", grade("4"), units("2")),
		subject("Design", "career", "design", achieved("A"), units("2")),
		subject("Drawing", "career", "design", achieved("B"), units("2")),
		subject("Music", "arts", "music", assessed("A")),
		subject("Art", "arts", "art", assessed("B")),
	)
	res := c.Calculate(st)
	// 97×0.7 + 97.5×0.2 + 95×0.1 + 0.75
	assert.Equal(t, 97.65, res.FinalScore)

	b := applicant("B10", "U700",
		subject("Machining", "common", "tech", rawScore(88), units("3")),
		subject("Drafting", "common", "tech", rawScore(92), units("1")),
		subject("Welding", "common", "tech", units("1")),
	)
	res = c.Calculate(b)
	// 89×0.7, every other bucket empty
	assert.InDelta(t, 62.3, res.FinalScore, 1e-9)
	assert.Equal(t, model.BasisRaw, detailOf(t, b, "Machining").ConvertedBasis)
	assert.Equal(t, stage.ReasonRawMissing, detailOf(t, b, "Welding").NonReflectedReason)
}

func TestNarae(t *testing.T) {
	c := calc(t, "narae")
	st := applicant("A10", "U900",
		subject("Korean A", "common", "korean", grade("1")),
		subject("Korean B", "common", "korean", grade("3")),
		subject("Korean C", "common", "korean", grade("2")),
		subject("Math", "common", "math", grade("2")),
		subject("English", "common", "english", grade("4")),
		subject("Science", "common", "science", grade("1")),
		subject("Social", "common", "social", grade("3")),
		subject("Physical education", "common", "pe", grade("1")),
		subject("Programming", "career", "tech", achieved("A")),
		subject("Robotics lab", "career", "tech", achieved("P")),
	)
	res := c.Calculate(st)
	// 100 90 90 100 72 32 → 484/6, ceil 1
	assert.Equal(t, 80.7, res.FinalScore)

	assert.Equal(t, stage.ReasonTopK, detailOf(t, st, "Korean B").NonReflectedReason)
	assert.Equal(t, stage.ReasonGroupBest, detailOf(t, st, "English").NonReflectedReason)
	assert.Equal(t, stage.ReasonGroupBest, detailOf(t, st, "Social").NonReflectedReason)
	assert.Equal(t, stage.ReasonExcludedSubject, detailOf(t, st, "Physical education").NonReflectedReason)

	p := detailOf(t, st, "Programming")
	assert.Equal(t, 72.0, p.ConvertedScore)
	assert.Equal(t, model.BasisAchievement, p.ConvertedBasis)
	assert.Equal(t, "linearScale", p.ProducingStage)
	assert.Equal(t, 32.0, detailOf(t, st, "Robotics lab").ConvertedScore)
}

func TestCalculateWithoutAggregator(t *testing.T) {
	def, err := Parse([]byte(`
code: bare
name: Bare
admissions: {A10: Student record}
units: {U1: Any}
stages:
  - type: eligibility
`))
	require.NoError(t, err)
	c, err := Build(def)
	require.NoError(t, err)

	res := c.Calculate(applicant("A10", "U1"))
	require.NotNil(t, res)
	assert.Equal(t, 0.0, res.FinalScore)
	assert.Equal(t, FormulaNoScore, res.Formula)
	assert.False(t, res.Disqualified)
}

func TestBuildErrors(t *testing.T) {
	cases := map[string]string{
		"unknown stage": `
code: x
name: X
admissions: {A10: a}
units: {U1: u}
stages:
  - type: teleport
`,
		"bad config": `
code: x
name: X
admissions: {A10: a}
units: {U1: u}
stages:
  - type: topK
    config:
      entries: [{k: 0}]
`,
		"misspelt config key": `
code: x
name: X
admissions: {A10: a}
units: {U1: u}
stages:
  - type: semesterWindow
    config:
      entries:
        - maxGrade: 3
          maxTerm: 1
          excludeEarlyGraduateFinalTem: true
`,
		"score ranking before converter": `
code: x
name: X
admissions: {A10: a}
units: {U1: u}
stages:
  - type: topK
    config:
      entries: [{k: 3}]
  - type: rankGrade
    config:
      entries: [{table: {1: 100}}]
`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			def, err := Parse([]byte(src))
			require.NoError(t, err)
			_, err = Build(def)
			assert.Error(t, err)
		})
	}

	def, err := Parse([]byte("code: x\nname: X\nstages: []\n"))
	assert.Error(t, err, "catalogs and stages are required")
	assert.Equal(t, "x", def.Code)

	_, err = Parse([]byte("code: [\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("code: x\nname: X\nadmissions: {A: a}\nunits: {U: u}\nstages: [{type: round}]\nstagse: []\n"))
	assert.Error(t, err, "unknown top-level key")
}

func TestUnknownStageError(t *testing.T) {
	def, err := Parse([]byte("code: x\nname: X\nadmissions: {A: a}\nunits: {U: u}\nstages: [{type: nope}]\n"))
	require.NoError(t, err)
	_, err = Build(def)
	assert.True(t, errors.Is(err, stage.ErrUnknownStage))
}

func TestDescribe(t *testing.T) {
	c := calc(t, "saebit")
	d := c.Describe()
	require.Len(t, d, 9)
	assert.Equal(t, "eligibility", d[0].Stage)
	assert.Equal(t, pipeline.Filter, d[0].Kind)
	assert.Equal(t, "round", d[8].Stage)
	assert.Equal(t, pipeline.Aggregator, d[8].Kind)
	assert.Equal(t, "Saebit University", c.Name())
	assert.Equal(t, "Nursing", c.Catalog().UnitName("U500"))
}

func TestDirectoryOverride(t *testing.T) {
	r := NewRegistry()
	fsys := fstest.MapFS{
		"defs/gaon.yaml": {Data: []byte(`
code: gaon
name: Gaon override
admissions: {A10: a}
units: {U1: u}
stages:
  - type: fixedScore
    config:
      entries: [{score: 7}]
  - type: average
    config:
      entries: [{}]
`)},
		"defs/notes.txt": {Data: []byte("ignored")},
	}
	require.NoError(t, r.AddFS(bundled, "institutions"))
	require.NoError(t, r.AddFS(fsys, "defs"))

	c, err := r.Lookup("gaon")
	require.NoError(t, err)
	assert.Equal(t, "Gaon override", c.Name())
	res := c.Calculate(applicant("A10", "U1", subject("x", "common", "korean")))
	assert.Equal(t, 7.0, res.FinalScore)
	assert.Len(t, r.Codes(), 5)
}
