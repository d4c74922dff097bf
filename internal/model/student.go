// Package model holds the records a calculation run works on: the applicant,
// their transcript subjects, the per-subject calculation detail and the final
// score result. All of them are created fresh for one run and mutated in place
// by pipeline stages.
package model

//
// Student is one applicant together with the transcript
// that will be scored for a single admission track / unit.
//
type Student struct {
	ID string `json:"id"`
	// admission-track code applied for
	AdmissionCode string `json:"admissionCode"`
	// recruitment-unit code applied for
	UnitCode string `json:"unitCode"`
	// year of (expected) high-school graduation
	GraduationYear int `json:"graduationYear"`
	// true when the applicant graduates early (after grade 2 / term 2)
	EarlyGraduate bool `json:"earlyGraduate"`

	Subjects []*Subject `json:"subjects"`

	Result *ScoreResult `json:"scoreResult,omitempty"`
}

// Reflected returns the subjects that still count towards the score.
func (s *Student) Reflected() []*Subject {
	out := make([]*Subject, 0, len(s.Subjects))
	for _, sub := range s.Subjects {
		if sub.Detail.Reflected {
			out = append(out, sub)
		}
	}
	return out
}

// ResetDetails puts every subject back into the initial reflected,
// unconverted state. Called once at the start of a run.
func (s *Student) ResetDetails() {
	for _, sub := range s.Subjects {
		sub.Detail = CalculationDetail{Reflected: true}
	}
	s.Result = nil
}

// SetResult creates or overwrites the score result.
func (s *Student) SetResult(score float64, formula string) {
	s.Result = &ScoreResult{
		StudentID:  s.ID,
		FinalScore: score,
		Formula:    formula,
	}
}

//
// ScoreResult is written by aggregator stages and, on
// disqualification, frozen at zero with a reason.
//
type ScoreResult struct {
	StudentID    string  `json:"studentId"`
	FinalScore   float64 `json:"finalScore"`
	Formula      string  `json:"formula,omitempty"`
	Disqualified bool    `json:"disqualified,omitempty"`
	Reason       string  `json:"reason,omitempty"`
}
