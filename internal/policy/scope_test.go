package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsip/otf-admit/internal/model"
)

type entry struct {
	Scope
	Label string
}

func TestForSubjectFirstMatchWins(t *testing.T) {
	entries := []entry{
		{Scope: Scope{Admissions: CodeSet{"A10"}, Separations: CodeSet{"career"}}, Label: "a10-career"},
		{Scope: Scope{Separations: CodeSet{"career"}}, Label: "career"},
		{Scope: Scope{Separations: CodeSet{"common", "career"}}, Label: "broad"},
	}
	st := &model.Student{AdmissionCode: "A10", UnitCode: "U1"}

	e, ok := ForSubject(entries, st, &model.Subject{Separation: "career"})
	require.True(t, ok)
	assert.Equal(t, "a10-career", e.Label)

	st.AdmissionCode = "A20"
	e, ok = ForSubject(entries, st, &model.Subject{Separation: "career"})
	require.True(t, ok)
	assert.Equal(t, "career", e.Label)

	e, ok = ForSubject(entries, st, &model.Subject{Separation: "common"})
	require.True(t, ok)
	assert.Equal(t, "broad", e.Label)

	_, ok = ForSubject(entries, st, &model.Subject{Separation: "arts"})
	assert.False(t, ok)
}

func TestForStudentIgnoresSeparation(t *testing.T) {
	entries := []entry{
		{Scope: Scope{Units: CodeSet{"U9"}, Separations: CodeSet{"arts"}}, Label: "u9"},
		{Scope: Scope{Admissions: CodeSet{"*"}}, Label: "any"},
	}
	e, ok := ForStudent(entries, &model.Student{AdmissionCode: "A10", UnitCode: "U9"})
	require.True(t, ok)
	assert.Equal(t, "u9", e.Label)

	e, ok = ForStudent(entries, &model.Student{AdmissionCode: "A10", UnitCode: "U1"})
	require.True(t, ok)
	assert.Equal(t, "any", e.Label)

	_, ok = ForStudent([]entry{}, &model.Student{})
	assert.False(t, ok)
}

func TestCatalogIsACopy(t *testing.T) {
	adm := map[string]string{"A10": "Student record"}
	c := NewCatalog(adm, nil)
	adm["A10"] = "changed"
	adm["A20"] = "new"

	assert.Equal(t, "Student record", c.AdmissionName("A10"))
	assert.False(t, c.HasAdmission("A20"))
	assert.Equal(t, "U1", c.UnitName("U1"))
}
