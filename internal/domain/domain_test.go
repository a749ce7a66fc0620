package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityRank_Ordered(t *testing.T) {
	prev := 0
	for _, s := range Severities() {
		assert.Greater(t, s.Rank(), prev, s)
		prev = s.Rank()
	}
	assert.Equal(t, 0, Severity("urgent").Rank())
}

func TestSeverityCounts_Add(t *testing.T) {
	var c SeverityCounts
	for _, s := range []Severity{SeverityHigh, SeverityHigh, SeverityLow, SeverityCritical, "bogus"} {
		c.Add(s)
	}
	assert.Equal(t, SeverityCounts{Low: 1, High: 2, Critical: 1}, c)
}

func TestKeys(t *testing.T) {
	f := Finding{TenantID: "t1", Rule: RuleDispatchOverage, EntityKey: "dispatch:42"}
	ex := Exception{TenantID: "t1", Rule: RuleDispatchOverage, EntityKey: "dispatch:42"}

	assert.Equal(t, f.Key(), ex.Key())
	assert.Equal(t, "t1/dispatch_received_gt_dispatched/dispatch:42", f.Key().String())
}

func TestArisingString(t *testing.T) {
	f := Finding{EntityKey: "store:parchment", Severity: SeverityHigh}

	assert.Equal(t, "new high store:parchment", Arising{Finding: f, Change: ChangeNew}.String())
	assert.Equal(t, "escalated medium->high store:parchment",
		Arising{Finding: f, Change: ChangeEscalated, PreviousSeverity: SeverityMedium}.String())
}

func TestKnownRule(t *testing.T) {
	assert.True(t, KnownRule(RuleYieldOutlier))
	assert.True(t, KnownRule(RuleFloatRateOutlier))
	assert.False(t, KnownRule("made_up"))
}
