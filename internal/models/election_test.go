package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestElectionStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to ElectionStatus
		allowed  bool
	}{
		{ElectionStatusPending, ElectionStatusPending, true},
		{ElectionStatusPending, ElectionStatusOngoing, true},
		{ElectionStatusPending, ElectionStatusCompleted, true},
		{ElectionStatusOngoing, ElectionStatusOngoing, true},
		{ElectionStatusOngoing, ElectionStatusCompleted, true},
		{ElectionStatusOngoing, ElectionStatusPending, false},
		{ElectionStatusCompleted, ElectionStatusCompleted, true},
		{ElectionStatusCompleted, ElectionStatusOngoing, false},
		{ElectionStatusCompleted, ElectionStatusPending, false},
		{ElectionStatusPending, ElectionStatus("Archived"), false},
		{ElectionStatus("Draft"), ElectionStatusOngoing, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestElectionStatusValid(t *testing.T) {
	assert.True(t, ElectionStatusOngoing.Valid())
	assert.False(t, ElectionStatus("ongoing").Valid())
	assert.False(t, ElectionStatus("").Valid())
}

func TestElectionLookups(t *testing.T) {
	e := Election{
		Candidates: []Candidate{{ID: "c1", Name: "Ada"}, {ID: "c2", Name: "Grace"}},
		Voters:     []string{"u1"},
	}

	c, ok := e.Candidate("c2")
	assert.True(t, ok)
	assert.Equal(t, "Grace", c.Name)

	_, ok = e.Candidate("missing")
	assert.False(t, ok)

	assert.True(t, e.HasVoter("u1"))
	assert.False(t, e.HasVoter("u2"))
}

func TestIdentityCanAdminister(t *testing.T) {
	var nilIdentity *Identity
	assert.False(t, nilIdentity.CanAdminister())
	assert.True(t, (&Identity{Role: RoleAdmin}).CanAdminister())
	assert.True(t, (&Identity{Role: RoleStudent, IsAdmin: true}).CanAdminister())
	assert.False(t, (&Identity{Role: RoleStudent}).CanAdminister())
}
