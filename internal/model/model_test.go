package model

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExcludeKeepsFirstReason(t *testing.T) {
	d := CalculationDetail{Reflected: true}
	d.Exclude("window", "outside")
	d.Exclude("separation", "wrong separation")
	assert.False(t, d.Reflected)
	assert.Equal(t, "outside", d.NonReflectedReason)
	assert.Equal(t, "window", d.ProducingStage)

	// converting an excluded subject is a no-op
	d.Convert("rank", 100, BasisGrade, "grade 1")
	assert.False(t, d.Converted())
	assert.Equal(t, 0.0, d.ConvertedScore)
}

func TestConvertOverwrites(t *testing.T) {
	d := CalculationDetail{Reflected: true}
	assert.False(t, d.Converted())
	d.Convert("rank", 96, BasisGrade, "grade 2")
	d.Convert("scale", 76.8, BasisGrade, "grade 2 | ×0.8")
	assert.True(t, d.Converted())
	assert.Equal(t, 76.8, d.ConvertedScore)
	assert.Equal(t, "scale", d.ProducingStage)
}

func TestResetDetails(t *testing.T) {
	st := &Student{ID: "a", Subjects: []*Subject{{Name: "x"}, {Name: "y"}}}
	st.Subjects[0].Detail.Reflected = true
	st.Subjects[0].Detail.Convert("rank", 1, BasisGrade, "")
	st.SetResult(10, "f")

	st.ResetDetails()
	assert.Nil(t, st.Result)
	for _, sub := range st.Subjects {
		assert.Equal(t, CalculationDetail{Reflected: true}, sub.Detail)
	}
	assert.Len(t, st.Reflected(), 2)

	st.Subjects[1].Detail.Exclude("s", "r")
	assert.Equal(t, []*Subject{st.Subjects[0]}, st.Reflected())
}

func TestDisqualifyFreezes(t *testing.T) {
	st := &Student{ID: "s1"}
	c := NewContext(st)
	assert.True(t, c.ShouldContinue())

	c.Disqualify("eligibility", "unsupported admission track: X")
	c.Disqualify("minimumUnits", "insufficient units")
	assert.False(t, c.ShouldContinue())
	require.NotNil(t, st.Result)
	assert.Equal(t, ScoreResult{
		StudentID:    "s1",
		FinalScore:   0,
		Formula:      "eligibility",
		Disqualified: true,
		Reason:       "unsupported admission track: X",
	}, *st.Result)
}

func TestSubtotals(t *testing.T) {
	var s Subtotals
	assert.False(t, s.Has(BucketCareer))
	assert.Equal(t, 0.0, s.Get(BucketCareer))

	s.Set(BucketCommon, 91.5)
	s.Set(BucketArts, 0)
	assert.True(t, s.Has(BucketArts))
	assert.Equal(t, 91.5, s.Get(BucketCommon))
	assert.Equal(t, []Bucket{BucketArts, BucketCommon}, s.Buckets())

	b, err := ParseBucket(" bonus ")
	require.NoError(t, err)
	assert.Equal(t, BucketBonus, b)

	_, err = ParseBucket("extra")
	assert.True(t, errors.Is(err, ErrUnknownBucket))
}

func TestRankGradeForms(t *testing.T) {
	cases := []struct {
		grade   string
		numeric int
		isNum   bool
		letter  bool
	}{
		{"3", 3, true, false},
		{" 9 ", 9, true, false},
		{"b", 0, false, true},
		{"E", 0, false, true},
		{"F", 0, false, false},
		{"", 0, false, false},
		{"P", 0, false, false},
	}
	for _, tc := range cases {
		s := &Subject{RankGrade: tc.grade}
		g, ok := s.NumericRankGrade()
		assert.Equal(t, tc.isNum, ok, tc.grade)
		assert.Equal(t, tc.numeric, g, tc.grade)
		assert.Equal(t, tc.letter, s.LetterRankGrade(), tc.grade)
	}
	assert.Equal(t, "2-1", (&Subject{Grade: 2, Term: 1}).Semester().String())
}

func TestStudentJSON(t *testing.T) {
	src := `{
		"id": "st-9",
		"admissionCode": "A10",
		"unitCode": "U100",
		"graduationYear": 2024,
		"subjects": [{"name": "Korean", "separation": "common", "rankGrade": "2", "unit": "4", "grade": 1, "term": 2}]
	}`
	var st Student
	require.NoError(t, json.Unmarshal([]byte(src), &st))
	require.Len(t, st.Subjects, 1)
	assert.Equal(t, "2", st.Subjects[0].RankGrade)
	assert.Equal(t, Semester{1, 2}, st.Subjects[0].Semester())
	assert.Nil(t, st.Result)
}
