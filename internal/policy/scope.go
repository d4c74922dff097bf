// Package policy resolves which configuration entry applies to a student or
// subject. Entries are scoped by admission codes, recruitment-unit codes and
// subject-separation codes and are scanned in order; the first entry whose
// sets all contain the codes wins, so narrower entries must be listed first.
package policy

import (
	"strings"

	"github.com/nsip/otf-admit/internal/model"
)

// Any is the wildcard code.
const Any = "*"

// CodeSet is a list of codes. An empty set, or one holding "*", matches
// every code.
type CodeSet []string

func (s CodeSet) Contains(code string) bool {
	if len(s) == 0 {
		return true
	}
	code = strings.TrimSpace(code)
	for _, c := range s {
		c = strings.TrimSpace(c)
		if c == Any || c == code {
			return true
		}
	}
	return false
}

func (s CodeSet) String() string {
	if len(s) == 0 {
		return Any
	}
	return strings.Join(s, ",")
}

// Scope is embedded into every scoped configuration entry.
type Scope struct {
	Admissions  CodeSet `yaml:"admissions,omitempty" json:"admissions,omitempty"`
	Units       CodeSet `yaml:"units,omitempty" json:"units,omitempty"`
	Separations CodeSet `yaml:"separations,omitempty" json:"separations,omitempty"`
}

// ScopeOf lets any struct embedding Scope satisfy Scoped.
func (s Scope) ScopeOf() Scope { return s }

func (s Scope) String() string {
	out := "admissions=" + s.Admissions.String() + " units=" + s.Units.String()
	if len(s.Separations) > 0 {
		out += " separations=" + s.Separations.String()
	}
	return out
}

// Scoped is a configuration entry that carries a Scope.
type Scoped interface {
	ScopeOf() Scope
}

// ForStudent returns the first entry matching the student's admission and
// unit codes. Separation sets are not consulted.
func ForStudent[T Scoped](entries []T, st *model.Student) (T, bool) {
	for _, e := range entries {
		sc := e.ScopeOf()
		if sc.Admissions.Contains(st.AdmissionCode) && sc.Units.Contains(st.UnitCode) {
			return e, true
		}
	}
	var zero T
	return zero, false
}

// ForSubject returns the first entry matching the student's codes and the
// subject's separation code.
func ForSubject[T Scoped](entries []T, st *model.Student, sub *model.Subject) (T, bool) {
	for _, e := range entries {
		sc := e.ScopeOf()
		if sc.Admissions.Contains(st.AdmissionCode) &&
			sc.Units.Contains(st.UnitCode) &&
			sc.Separations.Contains(sub.Separation) {
			return e, true
		}
	}
	var zero T
	return zero, false
}
