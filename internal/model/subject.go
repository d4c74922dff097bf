package model

import (
	"strconv"
	"strings"
)

// Subject is one transcript line. Everything except Detail is input
// and is never changed by the pipeline.
type Subject struct {
	Name       string `json:"name"`
	Code       string `json:"code"`
	Group      string `json:"group"`
	Separation string `json:"separation"`

	// rank grade as recorded, "1".."9" or a letter "A".."E"
	RankGrade   string `json:"rankGrade"`
	Achievement string `json:"achievement"`
	Assessment  string `json:"assessment"`

	RawScore     *float64 `json:"rawScore,omitempty"`
	CohortMean   *float64 `json:"cohortMean,omitempty"`
	CohortStdDev *float64 `json:"cohortStdDev,omitempty"`

	Rank       int `json:"rank"`
	CohortSize int `json:"cohortSize"`
	TieCount   int `json:"tieCount"`

	// credit hours, free text ("3", "3단위", " 2.0")
	Unit string `json:"unit"`

	// school year and term the subject was taken in
	Grade int `json:"grade"`
	Term  int `json:"term"`

	Detail CalculationDetail `json:"calculationDetail"`
}

// NumericRankGrade returns the rank grade as an integer when it is one.
func (s *Subject) NumericRankGrade() (int, bool) {
	g, err := strconv.Atoi(strings.TrimSpace(s.RankGrade))
	if err != nil {
		return 0, false
	}
	return g, true
}

// LetterRankGrade reports whether the rank grade field holds a letter A-E.
func (s *Subject) LetterRankGrade() bool {
	g := strings.ToUpper(strings.TrimSpace(s.RankGrade))
	return len(g) == 1 && g[0] >= 'A' && g[0] <= 'E'
}

// Semester identifies the (grade, term) a subject belongs to.
type Semester struct {
	Grade int
	Term  int
}

func (s *Subject) Semester() Semester {
	return Semester{Grade: s.Grade, Term: s.Term}
}

func (s Semester) String() string {
	return strconv.Itoa(s.Grade) + "-" + strconv.Itoa(s.Term)
}
