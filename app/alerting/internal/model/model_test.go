package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityRank(t *testing.T) {
	assert.Less(t, SeverityRed.Rank(), SeverityOrange.Rank())
	assert.Less(t, SeverityOrange.Rank(), SeverityYellow.Rank())
	assert.Less(t, SeverityYellow.Rank(), SeverityGreen.Rank())
	assert.False(t, Severity("BLUE").Valid())
}

func TestAlert_IsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &Alert{Status: StatusOpen, DueAt: Ptr(now.Add(-time.Hour))}
	assert.True(t, a.IsOverdue(now))

	a.Status = StatusResolved
	assert.False(t, a.IsOverdue(now))

	a.Status = StatusSnoozed
	a.DueAt = Ptr(now.Add(time.Hour))
	assert.False(t, a.IsOverdue(now))

	a.DueAt = nil
	assert.False(t, a.IsOverdue(now))
}

func TestAlert_Clone(t *testing.T) {
	a := &Alert{ID: "1", VesselID: Ptr("v-1"), EscalationTargetRoles: []string{"DPA"}}
	cp := a.Clone()
	*cp.VesselID = "v-2"
	cp.EscalationTargetRoles[0] = "CAPTAIN"
	assert.Equal(t, "v-1", *a.VesselID)
	assert.Equal(t, "DPA", a.EscalationTargetRoles[0])
}

func TestCounts_Add(t *testing.T) {
	a := NewCounts()
	a.Total, a.Overdue = 2, 1
	a.BySeverity[SeverityRed] = 2
	a.ByCategory[CategoryIncident] = 2

	b := NewCounts()
	b.Total = 1
	b.BySeverity[SeverityRed] = 1
	b.ByCategory[CategoryCAPA] = 1

	a.Add(b)
	assert.Equal(t, 3, a.Total)
	assert.Equal(t, 3, a.BySeverity[SeverityRed])
	assert.Equal(t, 1, a.ByCategory[CategoryCAPA])
}

func TestFact_Validate(t *testing.T) {
	f := &Fact{Category: CategoryCAPA, EntityID: "capa-1", CompanyID: "c-1"}
	require.NoError(t, f.Validate())

	f.VesselID = Ptr("")
	assert.ErrorIs(t, f.Validate(), ErrInvalidFact)

	f.VesselID = nil
	f.CompanyID = ""
	assert.ErrorIs(t, f.Validate(), ErrInvalidFact)
}
