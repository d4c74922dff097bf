package stage

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/nsip/otf-admit/internal/model"
	"github.com/nsip/otf-admit/internal/numeric"
	"github.com/nsip/otf-admit/internal/pipeline"
	"github.com/nsip/otf-admit/internal/policy"
)

func init() {
	Register("rankGrade", newRankGrade)
	Register("achievement", newAchievement)
	Register("assessment", newAssessment)
	Register("rawScore", newRawScore)
	Register("fixedScore", newFixedScore)
	Register("linearScale", newLinearScale)
}

const (
	ReasonGradeOutOfRange = "grade missing or out of range"
	ReasonNoRule          = "no conversion rule"
	ReasonRawMissing      = "raw score missing"
	ReasonRawOutOfRange   = "raw score out of range"
)

// Primary converters only touch subjects that are reflected and not yet
// converted, so an earlier, more specific converter takes precedence.
func pending(sub *model.Subject) bool {
	return sub.Detail.Reflected && !sub.Detail.Converted()
}

type tableEntry struct {
	policy.Scope `yaml:",inline"`
	Table        map[int]float64 `yaml:"table" validate:"required,min=1"`
}

func checkGradeTable(entries []tableEntry) error {
	for _, e := range entries {
		if err := checkGrades(e.Table); err != nil {
			return err
		}
	}
	return nil
}

func checkGrades(table map[int]float64) error {
	for g := range table {
		if g < 1 || g > 9 {
			return errors.Errorf("grade table key %d outside 1..9", g)
		}
	}
	return nil
}

func describeTables(entries []tableEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Scope, gradeTable(e.Table)))
	}
	return joinEntries(parts)
}

// --- rankGrade ---

type rankGrade struct {
	base
	entries []tableEntry
}

func newRankGrade(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []tableEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	if err := checkGradeTable(cfg.Entries); err != nil {
		return nil, err
	}
	return &rankGrade{base: base{"rankGrade", pipeline.Converter}, entries: cfg.Entries}, nil
}

func (s *rankGrade) Process(c *model.Context) {
	for _, sub := range c.Student.Subjects {
		if !pending(sub) {
			continue
		}
		e, ok := policy.ForSubject(s.entries, c.Student, sub)
		if !ok {
			continue
		}
		g, ok := sub.NumericRankGrade()
		if !ok || g < 1 || g > 9 {
			sub.Detail.Exclude(s.name, ReasonGradeOutOfRange)
			continue
		}
		score, ok := e.Table[g]
		if !ok {
			sub.Detail.Exclude(s.name, fmt.Sprintf("%s for grade %d", ReasonNoRule, g))
			continue
		}
		sub.Detail.Convert(s.name, score, model.BasisGrade, fmt.Sprintf("grade %d → %s", g, num(score)))
	}
}

func (s *rankGrade) Describe() pipeline.Description {
	return s.describe("subjects with a rank grade", "converts rank grade 1-9 to a score by table", describeTables(s.entries))
}

// --- achievement ---

type letterEntry struct {
	policy.Scope `yaml:",inline"`
	Table        map[string]float64 `yaml:"table" validate:"required,min=1"`
}

func decodeLetterEntries(decode Decoder) ([]letterEntry, error) {
	var cfg struct {
		Entries []letterEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	for i := range cfg.Entries {
		cfg.Entries[i].Table = normalizeLetters(cfg.Entries[i].Table)
	}
	return cfg.Entries, nil
}

func describeLetters(entries []letterEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Scope, letterTable(e.Table)))
	}
	return joinEntries(parts)
}

type achievement struct {
	base
	entries []letterEntry
}

func newAchievement(_ Env, decode Decoder) (pipeline.Stage, error) {
	entries, err := decodeLetterEntries(decode)
	if err != nil {
		return nil, err
	}
	return &achievement{base: base{"achievement", pipeline.Converter}, entries: entries}, nil
}

// Process leaves subjects with an unmapped letter untouched; a later
// converter may still handle them.
func (s *achievement) Process(c *model.Context) {
	for _, sub := range c.Student.Subjects {
		if !pending(sub) {
			continue
		}
		e, ok := policy.ForSubject(s.entries, c.Student, sub)
		if !ok {
			continue
		}
		letter := strings.ToUpper(strings.TrimSpace(sub.Achievement))
		score, ok := e.Table[letter]
		if letter == "" || !ok {
			continue
		}
		sub.Detail.Convert(s.name, score, model.BasisAchievement, fmt.Sprintf("achievement %s → %s", letter, num(score)))
	}
}

func (s *achievement) Describe() pipeline.Description {
	return s.describe("subjects with an achievement letter", "converts achievement A-E to a score by table; unmapped letters pass through", describeLetters(s.entries))
}

// --- assessment ---

type assessment struct {
	base
	entries []letterEntry
}

func newAssessment(_ Env, decode Decoder) (pipeline.Stage, error) {
	entries, err := decodeLetterEntries(decode)
	if err != nil {
		return nil, err
	}
	return &assessment{base: base{"assessment", pipeline.Converter}, entries: entries}, nil
}

func (s *assessment) Process(c *model.Context) {
	for _, sub := range c.Student.Subjects {
		if !pending(sub) {
			continue
		}
		e, ok := policy.ForSubject(s.entries, c.Student, sub)
		if !ok {
			continue
		}
		letter := strings.ToUpper(strings.TrimSpace(sub.Assessment))
		score, ok := e.Table[letter]
		if !ok {
			sub.Detail.Exclude(s.name, fmt.Sprintf("%s for assessment %q", ReasonNoRule, letter))
			continue
		}
		sub.Detail.Convert(s.name, score, model.BasisAssessment, fmt.Sprintf("assessment %s → %s", letter, num(score)))
	}
}

func (s *assessment) Describe() pipeline.Description {
	return s.describe("subjects with an assessment letter", "converts an assessment letter to a score by table", describeLetters(s.entries))
}

// --- rawScore ---

type rawEntry struct {
	policy.Scope `yaml:",inline"`
}

type rawScore struct {
	base
	entries []rawEntry
}

func newRawScore(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []rawEntry `yaml:"entries" validate:"required,min=1"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	return &rawScore{base: base{"rawScore", pipeline.Converter}, entries: cfg.Entries}, nil
}

func (s *rawScore) Process(c *model.Context) {
	for _, sub := range c.Student.Subjects {
		if !pending(sub) {
			continue
		}
		if _, ok := policy.ForSubject(s.entries, c.Student, sub); !ok {
			continue
		}
		if sub.RawScore == nil {
			sub.Detail.Exclude(s.name, ReasonRawMissing)
			continue
		}
		raw := *sub.RawScore
		if raw < 0 || raw > 100 {
			sub.Detail.Exclude(s.name, ReasonRawOutOfRange)
			continue
		}
		sub.Detail.Convert(s.name, raw, model.BasisRaw, "raw "+num(raw))
	}
}

func (s *rawScore) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		parts = append(parts, e.Scope.String())
	}
	return s.describe("subjects with a raw score", "uses the 0-100 raw score as the converted score", joinEntries(parts))
}

// --- fixedScore ---

type fixedEntry struct {
	policy.Scope `yaml:",inline"`
	Score        float64 `yaml:"score"`
}

type fixedScore struct {
	base
	entries []fixedEntry
}

func newFixedScore(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []fixedEntry `yaml:"entries" validate:"required,min=1"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	return &fixedScore{base: base{"fixedScore", pipeline.Converter}, entries: cfg.Entries}, nil
}

func (s *fixedScore) Process(c *model.Context) {
	for _, sub := range c.Student.Subjects {
		if !pending(sub) {
			continue
		}
		e, ok := policy.ForSubject(s.entries, c.Student, sub)
		if !ok {
			continue
		}
		sub.Detail.Convert(s.name, e.Score, model.BasisFixed, "fixed "+num(e.Score))
	}
}

func (s *fixedScore) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Scope, num(e.Score)))
	}
	return s.describe("reflected subjects", "assigns a fixed score", joinEntries(parts))
}

// --- linearScale ---

type scaleEntry struct {
	policy.Scope `yaml:",inline"`
	Multiplier   float64 `yaml:"multiplier" validate:"required"`
	Offset       float64 `yaml:"offset"`
	Digits       *int    `yaml:"digits" validate:"omitempty,min=0"`
}

type linearScale struct {
	base
	entries []scaleEntry
}

func newLinearScale(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []scaleEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	return &linearScale{base: base{"linearScale", pipeline.Converter}, entries: cfg.Entries}, nil
}

// Process rescales already converted subjects; the basis is kept.
func (s *linearScale) Process(c *model.Context) {
	for _, sub := range c.Student.Subjects {
		d := &sub.Detail
		if !d.Reflected || !d.Converted() {
			continue
		}
		e, ok := policy.ForSubject(s.entries, c.Student, sub)
		if !ok {
			continue
		}
		v := d.ConvertedScore*e.Multiplier + e.Offset
		if e.Digits != nil {
			v = numeric.Round(v, *e.Digits)
		}
		formula := fmt.Sprintf("%s | ×%s%+g = %s", d.ConversionFormula, num(e.Multiplier), e.Offset, num(v))
		d.Convert(s.name, v, d.ConvertedBasis, formula)
	}
}

func (s *linearScale) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		parts = append(parts, fmt.Sprintf("%s: ×%s %+g", e.Scope, num(e.Multiplier), e.Offset))
	}
	return s.describe("converted subjects", "rescales converted scores linearly", joinEntries(parts))
}
