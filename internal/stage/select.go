package stage

import (
	"fmt"
	"sort"

	"github.com/nsip/otf-admit/internal/model"
	"github.com/nsip/otf-admit/internal/pipeline"
	"github.com/nsip/otf-admit/internal/policy"
)

func init() {
	Register("topK", newTopK)
	Register("topKPerGroup", newTopKPerGroup)
	Register("bestSemesters", newBestSemesters)
	Register("bestGroups", newBestGroups)
}

const (
	ReasonTopK       = "top-K not selected"
	ReasonSemester   = "best semester not selected"
	ReasonGroupBest  = "best subject group not selected"
	rankByGrade      = "grade"
	rankByScore      = "score"
	defaultRankByKey = rankByGrade
)

// rankSubjects orders by converted score descending, then by the larger
// unit weight; remaining ties keep transcript order.
func rankSubjects(subs []*model.Subject) {
	sort.SliceStable(subs, func(i, j int) bool {
		a, b := subs[i], subs[j]
		if a.Detail.ConvertedScore != b.Detail.ConvertedScore {
			return a.Detail.ConvertedScore > b.Detail.ConvertedScore
		}
		return unitOf(a) > unitOf(b)
	})
}

func keepTop(subs []*model.Subject, k int, stage, reason string) {
	rankSubjects(subs)
	for i, sub := range subs {
		if i >= k {
			sub.Detail.Exclude(stage, reason)
		}
	}
}

// --- topK ---

type topKEntry struct {
	policy.Scope `yaml:",inline"`
	Target       policy.CodeSet `yaml:"target"`
	K            int            `yaml:"k" validate:"min=1"`
}

type topK struct {
	base
	entries []topKEntry
}

func newTopK(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []topKEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	return &topK{base: base{"topK", pipeline.Selector}, entries: cfg.Entries}, nil
}

func (s *topK) Process(c *model.Context) {
	e, ok := policy.ForStudent(s.entries, c.Student)
	if !ok {
		return
	}
	keepTop(targets(c.Student, e.Target), e.K, s.name, ReasonTopK)
}

func (s *topK) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		parts = append(parts, fmt.Sprintf("%s: top %d of %s", e.Scope, e.K, e.Target))
	}
	return s.describe("reflected subjects of the target separations",
		"keeps the K highest converted scores, larger unit weight wins ties", joinEntries(parts))
}

// --- topKPerGroup ---

type groupTopEntry struct {
	policy.Scope `yaml:",inline"`
	Target       policy.CodeSet `yaml:"target"`
	// groups to cut; subjects of other groups are left alone
	Groups policy.CodeSet `yaml:"groups"`
	K      int            `yaml:"k" validate:"min=1"`
}

type topKPerGroup struct {
	base
	entries []groupTopEntry
}

func newTopKPerGroup(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []groupTopEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	return &topKPerGroup{base: base{"topKPerGroup", pipeline.Selector}, entries: cfg.Entries}, nil
}

func (s *topKPerGroup) Process(c *model.Context) {
	e, ok := policy.ForStudent(s.entries, c.Student)
	if !ok {
		return
	}
	byGroup := map[string][]*model.Subject{}
	var order []string
	for _, sub := range targets(c.Student, e.Target) {
		if !e.Groups.Contains(sub.Group) {
			continue
		}
		if _, seen := byGroup[sub.Group]; !seen {
			order = append(order, sub.Group)
		}
		byGroup[sub.Group] = append(byGroup[sub.Group], sub)
	}
	for _, g := range order {
		keepTop(byGroup[g], e.K, s.name, ReasonTopK)
	}
}

func (s *topKPerGroup) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		parts = append(parts, fmt.Sprintf("%s: top %d per group of %s in %s", e.Scope, e.K, e.Groups, e.Target))
	}
	return s.describe("reflected subjects per subject group",
		"keeps the K highest converted scores inside each subject group", joinEntries(parts))
}

// --- bestSemesters / bestGroups ---

type bestEntry struct {
	policy.Scope `yaml:",inline"`
	Target       policy.CodeSet `yaml:"target"`
	Count        int            `yaml:"count" validate:"min=1"`
	// grade: lowest average rank grade first; score: highest average converted score first
	RankBy string `yaml:"rankBy" validate:"omitempty,oneof=grade score"`
}

type cluster struct {
	key      string
	subjects []*model.Subject
	average  float64
	usable   bool
}

// best keeps the subjects of the Count best clusters. Clusters are
// ranked by their unit-weighted average of the rankBy metric: ascending
// for rank grade, descending for converted score. Clusters without a
// usable value rank last.
type best struct {
	base
	entries []bestEntry
	keyOf   func(*model.Subject) string
	label   string
	reason  string
}

func newBest(name, label, reason string, keyOf func(*model.Subject) string) Factory {
	return func(_ Env, decode Decoder) (pipeline.Stage, error) {
		var cfg struct {
			Entries []bestEntry `yaml:"entries" validate:"required,min=1,dive"`
		}
		if err := decodeConfig(decode, &cfg); err != nil {
			return nil, err
		}
		for i := range cfg.Entries {
			if cfg.Entries[i].RankBy == "" {
				cfg.Entries[i].RankBy = defaultRankByKey
			}
		}
		return &best{
			base:    base{name, pipeline.Selector},
			entries: cfg.Entries,
			keyOf:   keyOf,
			label:   label,
			reason:  reason,
		}, nil
	}
}

var (
	newBestSemesters = newBest("bestSemesters", "semester", ReasonSemester,
		func(sub *model.Subject) string { return sub.Semester().String() })
	newBestGroups = newBest("bestGroups", "subject group", ReasonGroupBest,
		func(sub *model.Subject) string { return sub.Group })
)

func (s *best) Process(c *model.Context) {
	e, ok := policy.ForStudent(s.entries, c.Student)
	if !ok {
		return
	}
	index := map[string]*cluster{}
	var clusters []*cluster
	for _, sub := range targets(c.Student, e.Target) {
		k := s.keyOf(sub)
		cl, ok := index[k]
		if !ok {
			cl = &cluster{key: k}
			index[k] = cl
			clusters = append(clusters, cl)
		}
		cl.subjects = append(cl.subjects, sub)
	}
	for _, cl := range clusters {
		cl.average, cl.usable = clusterAverage(cl.subjects, e.RankBy)
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		a, b := clusters[i], clusters[j]
		if a.usable != b.usable {
			return a.usable
		}
		if e.RankBy == rankByScore {
			return a.average > b.average
		}
		return a.average < b.average
	})
	for i, cl := range clusters {
		if i < e.Count {
			continue
		}
		for _, sub := range cl.subjects {
			sub.Detail.Exclude(s.name, s.reason)
		}
	}
}

func clusterAverage(subs []*model.Subject, rankBy string) (float64, bool) {
	sum, weight := 0.0, 0.0
	for _, sub := range subs {
		var v float64
		switch rankBy {
		case rankByScore:
			if !sub.Detail.Converted() {
				continue
			}
			v = sub.Detail.ConvertedScore
		default:
			g, ok := sub.NumericRankGrade()
			if !ok || g < 1 || g > 9 {
				continue
			}
			v = float64(g)
		}
		u := unitOf(sub)
		sum += v * u
		weight += u
	}
	if weight == 0 {
		return 0, false
	}
	return sum / weight, true
}

func (s *best) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		parts = append(parts, fmt.Sprintf("%s: best %d by %s in %s", e.Scope, e.Count, e.RankBy, e.Target))
	}
	return s.describe("reflected subjects grouped by "+s.label,
		"keeps the subjects of the best "+s.label+"s by unit-weighted average", joinEntries(parts))
}

// ScoreRanked is implemented by selectors that rank on converted scores
// and so must run after a converter.
type ScoreRanked interface {
	RanksByScore() bool
}

func (s *topK) RanksByScore() bool         { return true }
func (s *topKPerGroup) RanksByScore() bool { return true }

func (s *best) RanksByScore() bool {
	for _, e := range s.entries {
		if e.RankBy == rankByScore {
			return true
		}
	}
	return false
}
