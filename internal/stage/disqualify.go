package stage

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/nsip/otf-admit/internal/model"
	"github.com/nsip/otf-admit/internal/pipeline"
	"github.com/nsip/otf-admit/internal/policy"
)

func init() {
	Register("eligibility", newEligibility)
	Register("requiredGroups", newRequiredGroups)
	Register("minimumUnits", newMinimumUnits)
}

// --- eligibility ---

type eligibility struct {
	base
	catalog    policy.Catalog
	admissions policy.CodeSet
	units      policy.CodeSet
	minYear    int
	maxYear    int
}

// newEligibility defaults the allow-lists to every code in the
// institution's catalog.
func newEligibility(env Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Admissions        []string `yaml:"admissions"`
		Units             []string `yaml:"units"`
		MinGraduationYear int      `yaml:"minGraduationYear" validate:"min=0"`
		MaxGraduationYear int      `yaml:"maxGraduationYear" validate:"min=0"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Admissions) == 0 {
		cfg.Admissions = sortedKeys(env.Catalog.Admissions())
	}
	if len(cfg.Units) == 0 {
		cfg.Units = sortedKeys(env.Catalog.Units())
	}
	if cfg.MaxGraduationYear > 0 && cfg.MinGraduationYear > cfg.MaxGraduationYear {
		return nil, errors.Errorf("minGraduationYear %d after maxGraduationYear %d", cfg.MinGraduationYear, cfg.MaxGraduationYear)
	}
	return &eligibility{
		base:       base{"eligibility", pipeline.Filter},
		catalog:    env.Catalog,
		admissions: policy.CodeSet(cfg.Admissions),
		units:      policy.CodeSet(cfg.Units),
		minYear:    cfg.MinGraduationYear,
		maxYear:    cfg.MaxGraduationYear,
	}, nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// allowed is stricter than CodeSet.Contains: an empty list admits nobody.
func allowed(set policy.CodeSet, code string) bool {
	return len(set) > 0 && set.Contains(code)
}

func (s *eligibility) Process(c *model.Context) {
	st := c.Student
	switch {
	case !allowed(s.admissions, st.AdmissionCode):
		c.Disqualify(s.name, "unsupported admission track: "+s.catalog.AdmissionName(st.AdmissionCode))
	case !allowed(s.units, st.UnitCode):
		c.Disqualify(s.name, "unsupported recruitment unit: "+s.catalog.UnitName(st.UnitCode))
	case s.minYear > 0 && st.GraduationYear < s.minYear:
		c.Disqualify(s.name, fmt.Sprintf("graduation year %d before %d", st.GraduationYear, s.minYear))
	case s.maxYear > 0 && st.GraduationYear > s.maxYear:
		c.Disqualify(s.name, fmt.Sprintf("graduation year %d after %d", st.GraduationYear, s.maxYear))
	}
}

func (s *eligibility) Describe() pipeline.Description {
	cfg := fmt.Sprintf("admissions=%s units=%s", s.admissions, s.units)
	if s.minYear > 0 || s.maxYear > 0 {
		cfg += fmt.Sprintf(" graduation=%d..%d", s.minYear, s.maxYear)
	}
	return s.describe("student", "rejects applicants outside the supported tracks, units and graduation years", cfg)
}

// --- requiredGroups ---

type requiredEntry struct {
	policy.Scope `yaml:",inline"`
	Groups       []string `yaml:"groups" validate:"required,min=1"`
}

type requiredGroups struct {
	base
	entries []requiredEntry
}

func newRequiredGroups(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []requiredEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	return &requiredGroups{base: base{"requiredGroups", pipeline.Filter}, entries: cfg.Entries}, nil
}

func (s *requiredGroups) Process(c *model.Context) {
	e, ok := policy.ForStudent(s.entries, c.Student)
	if !ok {
		return
	}
	present := map[string]bool{}
	for _, sub := range c.Student.Reflected() {
		present[sub.Group] = true
	}
	for _, g := range e.Groups {
		if !present[g] {
			c.Disqualify(s.name, "missing required subject group: "+g)
			return
		}
	}
}

func (s *requiredGroups) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		parts = append(parts, fmt.Sprintf("%s: %v", e.Scope, e.Groups))
	}
	return s.describe("reflected subjects", "requires at least one reflected subject in every listed group", joinEntries(parts))
}

// --- minimumUnits ---

type unitsEntry struct {
	policy.Scope `yaml:",inline"`
	Target       policy.CodeSet `yaml:"target"`
	MinUnits     float64        `yaml:"minUnits" validate:"gt=0"`
}

type minimumUnits struct {
	base
	entries []unitsEntry
}

func newMinimumUnits(_ Env, decode Decoder) (pipeline.Stage, error) {
	var cfg struct {
		Entries []unitsEntry `yaml:"entries" validate:"required,min=1,dive"`
	}
	if err := decodeConfig(decode, &cfg); err != nil {
		return nil, err
	}
	return &minimumUnits{base: base{"minimumUnits", pipeline.Filter}, entries: cfg.Entries}, nil
}

func (s *minimumUnits) Process(c *model.Context) {
	e, ok := policy.ForStudent(s.entries, c.Student)
	if !ok {
		return
	}
	total := 0.0
	for _, sub := range targets(c.Student, e.Target) {
		total += unitOf(sub)
	}
	if total < e.MinUnits {
		c.Disqualify(s.name, fmt.Sprintf("insufficient units: %s of %s", num(total), num(e.MinUnits)))
	}
}

func (s *minimumUnits) Describe() pipeline.Description {
	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		parts = append(parts, fmt.Sprintf("%s: ≥%s units in %s", e.Scope, num(e.MinUnits), e.Target))
	}
	return s.describe("reflected subjects", "requires a minimum total of reflected unit weight", joinEntries(parts))
}
