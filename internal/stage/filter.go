package stage

import (
	"fmt"
	"strings"

	"github.com/nsip/otf-admit/internal/model"
	"github.com/nsip/otf-admit/internal/pipeline"
	"github.com/nsip/otf-admit/internal/policy"
)

func init() {
	Register("semesterWindow", newSemesterWindow)
	Register("separation", newSeparation)
	Register("subjectGroup", newSubjectGroup)
	Register("excludeSubjects", newExcludeSubjects)
}

// Reasons attached to excluded subjects.
const (
	ReasonOutsideWindow   = "outside semester window"
	ReasonEarlyGraduate   = "early graduate final term"
	ReasonSeparation      = "unreflected subject separation"
	ReasonSubjectGroup    = "unreflected subject group"
	ReasonExcludedSubject = "excluded subject"
)

// --- semesterWindow ---

type windowEntry struct {
	policy.Scope `yaml:",inline"`
	MaxGrade     int  `yaml:"maxGrade" validate:"min=1,max=3"`
	MaxTerm      int  `yaml:"maxTerm" validate:"min=1,max=2"`
	EarlyGrad    bool `yaml:"excludeEarlyGraduateFinalTerm"`
}

type semesterWindow struct {
	base
	entries []windowEntry
}

func newSemesterWindow(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []windowEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	return &semesterWindow{base: base{"semesterWindow", pipeline.Filter}, entries: cfg.Entries}, nil
}

// Process keeps subjects taken before the window closes: any earlier grade,
// or the last grade up to and including maxTerm.
func (s *semesterWindow) Process(c *model.Context) {
	st := c.Student
	e, ok := policy.ForStudent(s.entries, st)
	if !ok {
		return
	}
	for _, sub := range st.Subjects {
		if !sub.Detail.Reflected {
			continue
		}
		if e.EarlyGrad && st.EarlyGraduate && sub.Grade == 2 && sub.Term == 2 {
			sub.Detail.Exclude(s.name, ReasonEarlyGraduate)
			continue
		}
		if sub.Grade < e.MaxGrade || (sub.Grade == e.MaxGrade && sub.Term <= e.MaxTerm) {
			continue
		}
		sub.Detail.Exclude(s.name, ReasonOutsideWindow)
	}
}

func (s *semesterWindow) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		p := fmt.Sprintf("%s: up to %d-%d", e.Scope, e.MaxGrade, e.MaxTerm)
		if e.EarlyGrad {
			p += ", early graduates drop 2-2"
		}
		parts = append(parts, p)
	}
	return s.describe("all subjects", "keeps subjects taken up to the last reflected semester", joinEntries(parts))
}

// --- separation ---

type separationEntry struct {
	policy.Scope `yaml:",inline"`
	Allow        policy.CodeSet `yaml:"allow" validate:"required,min=1"`
}

type separation struct {
	base
	entries []separationEntry
}

func newSeparation(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []separationEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	return &separation{base: base{"separation", pipeline.Filter}, entries: cfg.Entries}, nil
}

func (s *separation) Process(c *model.Context) {
	e, ok := policy.ForStudent(s.entries, c.Student)
	if !ok {
		return
	}
	for _, sub := range c.Student.Subjects {
		if sub.Detail.Reflected && !e.Allow.Contains(sub.Separation) {
			sub.Detail.Exclude(s.name, ReasonSeparation)
		}
	}
}

func (s *separation) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		parts = append(parts, fmt.Sprintf("%s: allow %s", e.Scope, e.Allow))
	}
	return s.describe("all subjects", "keeps subjects of the reflected separations", joinEntries(parts))
}

// --- subjectGroup ---

type groupEntry struct {
	policy.Scope `yaml:",inline"`
	Groups       policy.CodeSet `yaml:"groups" validate:"required,min=1"`
}

type subjectGroup struct {
	base
	entries []groupEntry
}

func newSubjectGroup(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []groupEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	return &subjectGroup{base: base{"subjectGroup", pipeline.Filter}, entries: cfg.Entries}, nil
}

func (s *subjectGroup) Process(c *model.Context) {
	for _, sub := range c.Student.Subjects {
		if !sub.Detail.Reflected {
			continue
		}
		e, ok := policy.ForSubject(s.entries, c.Student, sub)
		if !ok {
			continue
		}
		if !e.Groups.Contains(sub.Group) {
			sub.Detail.Exclude(s.name, ReasonSubjectGroup)
		}
	}
}

func (s *subjectGroup) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		parts = append(parts, fmt.Sprintf("%s: groups %s", e.Scope, e.Groups))
	}
	return s.describe("subjects by separation", "keeps subjects of the reflected subject groups", joinEntries(parts))
}

// --- excludeSubjects ---

type excludeEntry struct {
	policy.Scope `yaml:",inline"`
	Names        []string `yaml:"names"`
	Codes        []string `yaml:"codes"`
}

type excludeSubjects struct {
	base
	entries []excludeEntry
}

func newExcludeSubjects(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []excludeEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	return &excludeSubjects{base: base{"excludeSubjects", pipeline.Filter}, entries: cfg.Entries}, nil
}

func (s *excludeSubjects) Process(c *model.Context) {
	for _, sub := range c.Student.Subjects {
		if !sub.Detail.Reflected {
			continue
		}
		e, ok := policy.ForSubject(s.entries, c.Student, sub)
		if !ok {
			continue
		}
		if matchesAny(sub.Name, e.Names) || codeIn(sub.Code, e.Codes) {
			sub.Detail.Exclude(s.name, ReasonExcludedSubject)
		}
	}
}

func matchesAny(name string, keywords []string) bool {
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" && strings.Contains(name, k) {
			return true
		}
	}
	return false
}

func codeIn(code string, codes []string) bool {
	for _, c := range codes {
		if strings.TrimSpace(c) == code && code != "" {
			return true
		}
	}
	return false
}

func (s *excludeSubjects) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		parts = append(parts, fmt.Sprintf("%s: names %v codes %v", e.Scope, e.Names, e.Codes))
	}
	return s.describe("subjects by name or code", "drops individually listed subjects", joinEntries(parts))
}
