package stage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nsip/otf-admit/internal/model"
	"github.com/nsip/otf-admit/internal/numeric"
	"github.com/nsip/otf-admit/internal/pipeline"
	"github.com/nsip/otf-admit/internal/policy"
)

func init() {
	Register("weightedAverage", newAverager("weightedAverage", true))
	Register("average", newAverager("average", false))
	Register("achievementBonus", newAchievementBonus)
	Register("sumBuckets", newSumBuckets)
}

// --- weightedAverage / average ---

type averageEntry struct {
	policy.Scope `yaml:",inline"`
	Target       policy.CodeSet `yaml:"target"`
	// final (default) or a bucket name
	Into       string `yaml:"into"`
	CeilDigits *int   `yaml:"ceilDigits" validate:"omitempty,min=0"`

	into valueRef
}

type averager struct {
	base
	weighted bool
	entries  []averageEntry
}

func newAverager(name string, weighted bool) Factory {
	return func(_ Env, decode Decoder) (pipeline.Stage, error) {
		var cfg struct {
			Entries []averageEntry `yaml:"entries" validate:"required,min=1,dive"`
		}
		if err := decodeConfig(decode, &cfg); err != nil {
			return nil, err
		}
		for i := range cfg.Entries {
			ref, err := parseRef(cfg.Entries[i].Into)
			if err != nil {
				return nil, err
			}
			cfg.Entries[i].into = ref
		}
		return &averager{base: base{name, pipeline.Aggregator}, weighted: weighted, entries: cfg.Entries}, nil
	}
}

// WeightedAverage returns Σ(score×unit)/Σunit, or zero when there is no weight.
func WeightedAverage(subs []*model.Subject) float64 {
	sum, weight := 0.0, 0.0
	for _, sub := range subs {
		u := unitOf(sub)
		sum += sub.Detail.ConvertedScore * u
		weight += u
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

func plainAverage(subs []*model.Subject) float64 {
	if len(subs) == 0 {
		return 0
	}
	sum := 0.0
	for _, sub := range subs {
		sum += sub.Detail.ConvertedScore
	}
	return sum / float64(len(subs))
}

func (s *averager) Process(c *model.Context) {
	e, ok := policy.ForStudent(s.entries, c.Student)
	if !ok {
		return
	}
	subs := withScore(targets(c.Student, e.Target))
	var v float64
	var formula string
	if s.weighted {
		v = WeightedAverage(subs)
		formula = fmt.Sprintf("Σ(score×unit)/Σunit over %d subjects", len(subs))
	} else {
		v = plainAverage(subs)
		formula = fmt.Sprintf("Σscore/%d", len(subs))
	}
	if e.CeilDigits != nil {
		v = numeric.CeilToDigits(v, *e.CeilDigits)
		formula += fmt.Sprintf(" ceil %d", *e.CeilDigits)
	}
	e.into.write(c, v, fmt.Sprintf("%s = %s", formula, num(v)))
}

func (s *averager) Describe() pipeline.Description {
	what := "straight average of converted scores"
	if s.weighted {
		what = "unit-weighted average of converted scores"
	}
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		p := fmt.Sprintf("%s: %s → %s", e.Scope, e.Target, e.into)
		if e.CeilDigits != nil {
			p += fmt.Sprintf(" ceil %d", *e.CeilDigits)
		}
		parts = append(parts, p)
	}
	return s.describe("reflected subjects of the target separations", what, joinEntries(parts))
}

// --- achievementBonus ---

type bonusEntry struct {
	policy.Scope `yaml:",inline"`
	Target       policy.CodeSet     `yaml:"target"`
	Points       map[string]float64 `yaml:"points" validate:"required,min=1"`
	Max          float64            `yaml:"max" validate:"min=0"`
	Into         string             `yaml:"into" validate:"required"`

	into valueRef
}

type achievementBonus struct {
	base
	entries []bonusEntry
}

func newAchievementBonus(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []bonusEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	for i := range cfg.Entries {
		ref, err := parseRef(cfg.Entries[i].Into)
		if err != nil {
			return nil, err
		}
		cfg.Entries[i].into = ref
		cfg.Entries[i].Points = normalizeLetters(cfg.Entries[i].Points)
	}
	return &achievementBonus{base: base{"achievementBonus", pipeline.Aggregator}, entries: cfg.Entries}, nil
}

// Process sums per-letter points of reflected subjects, capped at Max
// when Max is positive.
func (s *achievementBonus) Process(c *model.Context) {
	e, ok := policy.ForStudent(s.entries, c.Student)
	if !ok {
		return
	}
	total := 0.0
	for _, sub := range targets(c.Student, e.Target) {
		total += e.Points[strings.ToUpper(strings.TrimSpace(sub.Achievement))]
	}
	if e.Max > 0 && total > e.Max {
		total = e.Max
	}
	e.into.write(c, total, "achievement bonus "+num(total))
}

func (s *achievementBonus) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		parts = append(parts, fmt.Sprintf("%s: %s max %s → %s", e.Scope, letterTable(e.Points), num(e.Max), e.into))
	}
	return s.describe("reflected subjects of the target separations",
		"adds points per achievement letter, capped", joinEntries(parts))
}

// --- sumBuckets ---

type sumEntry struct {
	policy.Scope `yaml:",inline"`
	Weights      map[string]float64 `yaml:"weights" validate:"required,min=1"`

	buckets []model.Bucket
}

type sumBuckets struct {
	base
	entries []sumEntry
}

func newSumBuckets(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []sumEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	for i := range cfg.Entries {
		e := &cfg.Entries[i]
		for name := range e.Weights {
			b, err := model.ParseBucket(name)
			if err != nil {
				return nil, err
			}
			e.buckets = append(e.buckets, b)
		}
		sort.Slice(e.buckets, func(a, b int) bool { return e.buckets[a] < e.buckets[b] })
	}
	return &sumBuckets{base: base{"sumBuckets", pipeline.Aggregator}, entries: cfg.Entries}, nil
}

// Process writes Σ weight×bucket to the final score. Buckets nobody wrote
// count as zero.
func (s *sumBuckets) Process(c *model.Context) {
	e, ok := policy.ForStudent(s.entries, c.Student)
	if !ok {
		return
	}
	total := 0.0
	terms := make([]string, 0, len(e.buckets))
	for _, b := range e.buckets {
		w := e.Weights[string(b)]
		v := c.Subtotals.Get(b)
		total += w * v
		terms = append(terms, fmt.Sprintf("%s×%s", num(v), num(w)))
	}
	c.Student.SetResult(total, fmt.Sprintf("%s = %s", strings.Join(terms, " + "), num(total)))
}

func (s *sumBuckets) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Scope, letterTable(e.Weights)))
	}
	return s.describe("subtotals", "final score is the weighted sum of subtotal buckets", joinEntries(parts))
}
