package graph

import (
	"testing"

	"github.com/flyingrobots/echo/pkg/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarpProvisionsOnFirstAccess(t *testing.T) {
	s := NewWarpState()
	_, ok := s.Lookup(id(1))
	assert.False(t, ok)

	w := s.Warp(id(1))
	require.NotNil(t, w)
	assert.Equal(t, 1, s.Len())

	again, ok := s.Lookup(id(1))
	require.True(t, ok)
	assert.Same(t, w, again, "Warp must return the same instance on repeat access")
}

func TestWarpStateInOrderIsAscending(t *testing.T) {
	s := NewWarpState()
	s.Warp(id(3))
	s.Warp(id(1))
	s.Warp(id(2))

	var seen []ids.WarpId
	for wid := range s.InOrder() {
		seen = append(seen, wid)
	}
	require.Len(t, seen, 3)
	assert.Equal(t, id(1), seen[0])
	assert.Equal(t, id(2), seen[1])
	assert.Equal(t, id(3), seen[2])
}
