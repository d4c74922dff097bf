package stage

import (
	"fmt"

	"github.com/nsip/otf-admit/internal/model"
	"github.com/nsip/otf-admit/internal/numeric"
	"github.com/nsip/otf-admit/internal/pipeline"
	"github.com/nsip/otf-admit/internal/policy"
)

func init() {
	Register("percentileGrade", newPercentileGrade)
	Register("zScoreGrade", newZScoreGrade)
}

const (
	ReasonRankMissing = "rank or cohort size missing"
	// transcripts from before this year carry no rank grade
	defaultPercentileYear = 2007
)

// --- percentileGrade ---

type percentileEntry struct {
	policy.Scope `yaml:",inline"`
	// applies to graduates of this year or earlier
	MaxGraduationYear int             `yaml:"maxGraduationYear" validate:"min=0"`
	IgnoreTies        bool            `yaml:"ignoreTies"`
	Table             map[int]float64 `yaml:"table" validate:"required,min=1"`
}

type percentileGrade struct {
	base
	entries []percentileEntry
}

func newPercentileGrade(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []percentileEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	for i := range cfg.Entries {
		if err := checkGrades(cfg.Entries[i].Table); err != nil {
			return nil, err
		}
		if cfg.Entries[i].MaxGraduationYear == 0 {
			cfg.Entries[i].MaxGraduationYear = defaultPercentileYear
		}
	}
	return &percentileGrade{base: base{"percentileGrade", pipeline.Converter}, entries: cfg.Entries}, nil
}

// Process derives a grade from cohort rank for older transcripts that
// have no usable rank grade.
func (s *percentileGrade) Process(c *model.Context) {
	st := c.Student
	// an unknown graduation year is not evidence of an old transcript
	if st.GraduationYear <= 0 {
		return
	}
	for _, sub := range st.Subjects {
		if !pending(sub) {
			continue
		}
		if _, ok := sub.NumericRankGrade(); ok {
			continue
		}
		e, ok := policy.ForSubject(s.entries, st, sub)
		if !ok || st.GraduationYear > e.MaxGraduationYear {
			continue
		}
		p, ok := numeric.Percentile(sub.Rank, sub.TieCount, sub.CohortSize, !e.IgnoreTies)
		if !ok {
			sub.Detail.Exclude(s.name, ReasonRankMissing)
			continue
		}
		g := numeric.PercentileGrade(p)
		score, ok := e.Table[g]
		if !ok {
			sub.Detail.Exclude(s.name, fmt.Sprintf("%s for grade %d", ReasonNoRule, g))
			continue
		}
		formula := fmt.Sprintf("percentile %s → grade %d → %s", num(p), g, num(score))
		sub.Detail.Convert(s.name, score, model.BasisPercentile, formula)
	}
}

func (s *percentileGrade) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		mode := "tie-adjusted"
		if e.IgnoreTies {
			mode = "plain"
		}
		parts = append(parts, fmt.Sprintf("%s: graduates ≤%d, %s, %s", e.Scope, e.MaxGraduationYear, mode, gradeTable(e.Table)))
	}
	return s.describe("older subjects without a rank grade",
		"derives grade 1-9 from cohort percentile (rank+(ties-1)/2)/size×100", joinEntries(parts))
}

// --- zScoreGrade ---

type zScoreGrade struct {
	base
	entries []tableEntry
}

func newZScoreGrade(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []tableEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	if err := checkGradeTable(cfg.Entries); err != nil {
		return nil, err
	}
	return &zScoreGrade{base: base{"zScoreGrade", pipeline.Converter}, entries: cfg.Entries}, nil
}

// Process handles subjects graded A-E that still carry a raw score and the
// cohort mean and deviation. A zero deviation leaves the subject alone.
func (s *zScoreGrade) Process(c *model.Context) {
	for _, sub := range c.Student.Subjects {
		if !pending(sub) || !sub.LetterRankGrade() {
			continue
		}
		if sub.RawScore == nil || sub.CohortMean == nil || sub.CohortStdDev == nil {
			continue
		}
		e, ok := policy.ForSubject(s.entries, c.Student, sub)
		if !ok {
			continue
		}
		raw := *sub.RawScore
		if raw < 0 || raw > 100 {
			sub.Detail.Exclude(s.name, ReasonRawOutOfRange)
			continue
		}
		z, ok := numeric.ZScore(raw, *sub.CohortMean, *sub.CohortStdDev)
		if !ok {
			continue
		}
		g := numeric.ZScoreGrade(z)
		score, ok := e.Table[g]
		if !ok {
			sub.Detail.Exclude(s.name, fmt.Sprintf("%s for grade %d", ReasonNoRule, g))
			continue
		}
		formula := fmt.Sprintf("z (%s-%s)/%s = %.3f → grade %d → %s",
			num(raw), num(*sub.CohortMean), num(*sub.CohortStdDev), z, g, num(score))
		sub.Detail.Convert(s.name, score, model.BasisZScore, formula)
	}
}

func (s *zScoreGrade) Describe() pipeline.Description {
	return s.describe("letter-graded subjects with raw score and cohort statistics",
		"derives grade 1-9 from the z-score of the raw score", describeTables(s.entries))
}
