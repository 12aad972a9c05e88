package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchPrefix_LongestWins(t *testing.T) {
	rules := []PrefixRule{
		{Prefix: "+9114", Action: PrefixBlock},
		{Prefix: "+911400", Action: PrefixAllow},
		{Prefix: "+91", Action: PrefixBlock},
	}

	got := MatchPrefix(rules, "+91140099")
	require.NotNil(t, got)
	assert.Equal(t, "+911400", got.Prefix)
	assert.Equal(t, PrefixAllow, got.Action)

	got = MatchPrefix(rules, "+91149999")
	require.NotNil(t, got)
	assert.Equal(t, "+9114", got.Prefix)

	assert.Nil(t, MatchPrefix(rules, "+12125550123"))
	assert.Nil(t, MatchPrefix(nil, "+919876543210"))
}

func TestNightGuard_Covers(t *testing.T) {
	wrapping := NightGuard{Enabled: true, StartHour: 22, EndHour: 7}
	assert.True(t, wrapping.Covers(23))
	assert.True(t, wrapping.Covers(0))
	assert.True(t, wrapping.Covers(6))
	assert.False(t, wrapping.Covers(7))
	assert.False(t, wrapping.Covers(12))

	daytime := NightGuard{Enabled: true, StartHour: 9, EndHour: 17}
	assert.True(t, daytime.Covers(9))
	assert.False(t, daytime.Covers(17))

	disabled := NightGuard{StartHour: 0, EndHour: 23}
	assert.False(t, disabled.Covers(3))
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeAllowed, OutcomeOf(Allow{Source: SourceDefault}))
	assert.Equal(t, OutcomeSilenced, OutcomeOf(Silence{Source: SourceSeedDB}))
	assert.Equal(t, OutcomeRejected, OutcomeOf(Reject{Source: SourceBlocklist}))
	assert.Equal(t, OutcomeFlagged, OutcomeOf(Flag{Source: SourceBehavioral}))
}
