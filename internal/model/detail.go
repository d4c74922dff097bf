package model

// Basis names the input a converted score was derived from.
type Basis string

const (
	BasisNone        Basis = ""
	BasisGrade       Basis = "grade"
	BasisAchievement Basis = "achievement"
	BasisAssessment  Basis = "assessment"
	BasisPercentile  Basis = "percentile"
	BasisZScore      Basis = "z-score"
	BasisRaw         Basis = "raw"
	BasisFixed       Basis = "fixed"
)

// CalculationDetail is the mutable part of a Subject.
//
// Reflected only ever goes from true to false within a run; stages use
// Exclude and never write the field directly.
type CalculationDetail struct {
	Reflected          bool    `json:"isReflected"`
	NonReflectedReason string  `json:"nonReflectionReason,omitempty"`
	ConvertedScore     float64 `json:"convertedScore"`
	ConvertedBasis     Basis   `json:"convertedBasis,omitempty"`
	ConversionFormula  string  `json:"conversionFormula,omitempty"`
	ProducingStage     string  `json:"producingStage,omitempty"`
}

// Exclude marks the subject unreflected. Already excluded subjects keep
// their first reason.
func (d *CalculationDetail) Exclude(stage, reason string) {
	if !d.Reflected {
		return
	}
	d.Reflected = false
	d.NonReflectedReason = reason
	d.ProducingStage = stage
}

// Convert records a converted score for a reflected subject.
func (d *CalculationDetail) Convert(stage string, score float64, basis Basis, formula string) {
	if !d.Reflected {
		return
	}
	d.ConvertedScore = score
	d.ConvertedBasis = basis
	d.ConversionFormula = formula
	d.ProducingStage = stage
}

// Converted reports whether some converter has produced a score.
func (d *CalculationDetail) Converted() bool {
	return d.ConvertedBasis != BasisNone
}
