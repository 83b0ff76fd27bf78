package vec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapDegrees(t *testing.T) {
	assert.InDelta(t, 100.0, WrapDegrees(100.0), 0.001)
	assert.InDelta(t, 0.5, WrapDegrees(720.5), 0.001)
	assert.InDelta(t, -0.5, WrapDegrees(-0.5), 0.001)
	assert.InDelta(t, -5.5, WrapDegrees(-365.5), 0.001)
}

func TestNodeToBlock(t *testing.T) {
	assert.Equal(t, V3S16{0, 0, 0}, NodeToBlock(V3S16{0, 15, 3}))
	assert.Equal(t, V3S16{-1, 1, 0}, NodeToBlock(V3S16{-1, 16, 0}))
	assert.Equal(t, V3S16{-1, -2, 0}, NodeToBlock(V3S16{-16, -17, 0}))
	assert.Equal(t, V3S16{15, 0, 0}, NodeInBlock(V3S16{-1, 16, 0}))
}

func TestFacePositions(t *testing.T) {
	require.Equal(t, []V3S16{{}}, FacePositions(0))

	for d := int16(1); d <= 4; d++ {
		list := FacePositions(d)
		seen := make(map[V3S16]bool, len(list))
		for _, p := range list {
			require.False(t, seen[p], "duplicate %v at d=%d", p, d)
			seen[p] = true
			require.Equal(t, d, p.Chebyshev(V3S16{}), "point %v is not on shell %d", p, d)
		}
		side := int(2*d + 1)
		inner := int(2*d - 1)
		assert.Len(t, list, side*side*side-inner*inner*inner)
	}
}

func TestFloatToInt(t *testing.T) {
	assert.Equal(t, V3S16{0, 0, 0}, FloatToInt(V3F{4.9, -4.9, 0}))
	assert.Equal(t, V3S16{1, -1, 2}, FloatToInt(V3F{5.1, -5.1, 20}))
	assert.Equal(t, V3F{10, -20, 0}, IntToFloat(V3S16{1, -2, 0}))
}
