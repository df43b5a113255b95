package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryStatePaths(t *testing.T) {
	paths := [][]queryState{
		{stateValidated, stateAccepted},
		{stateValidated, stateLeakFound, stateCorrectionSent, stateAccepted},
		{stateValidated, stateLeakFound, stateCorrectionSent, stateUnresolved},
		{stateUnresolved},
	}
	for _, path := range paths {
		tr := &queryTrack{}
		for _, next := range path {
			require.NoError(t, tr.advance(next), "%s -> %s", tr.state, next)
		}
		assert.True(t, tr.state.terminal())
	}
}

func TestQueryStateRejectsShortcuts(t *testing.T) {
	tr := &queryTrack{}
	assert.Error(t, tr.advance(stateAccepted))
	assert.Error(t, tr.advance(stateCorrectionSent))

	require.NoError(t, tr.advance(stateValidated))
	require.NoError(t, tr.advance(stateAccepted))
	assert.Error(t, tr.advance(stateLeakFound), "accepted is terminal")
	assert.Equal(t, "accepted", tr.state.String())
}
