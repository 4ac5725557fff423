package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRegion(t *testing.T, a, b Position) Region {
	t.Helper()
	r, err := NewRegion(a, b)
	require.NoError(t, err)
	return r
}

func TestNewRegion_NormalizesCorners(t *testing.T) {
	r := mustRegion(t,
		Position{World: "world", X: 10, Y: 5, Z: -3},
		Position{World: "world", X: -2, Y: 64, Z: 7},
	)

	assert.Equal(t, Position{World: "world", X: -2, Y: 5, Z: -3}, r.Min)
	assert.Equal(t, Position{World: "world", X: 10, Y: 64, Z: 7}, r.Max)
	assert.Equal(t, "world", r.World())
}

func TestNewRegion_DifferentWorlds(t *testing.T) {
	_, err := NewRegion(Position{World: "world"}, Position{World: "nether"})
	require.Error(t, err)

	var invalid *InvalidRegionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "world", invalid.First)
	assert.Equal(t, "nether", invalid.Second)
}

func TestRegion_Contains(t *testing.T) {
	r := mustRegion(t, Position{World: "w", X: 0, Y: 0, Z: 0}, Position{World: "w", X: 4, Y: 4, Z: 4})

	tests := []struct {
		name string
		p    Position
		want bool
	}{
		{"min corner", Position{World: "w", X: 0, Y: 0, Z: 0}, true},
		{"max corner", Position{World: "w", X: 4, Y: 4, Z: 4}, true},
		{"inside", Position{World: "w", X: 2, Y: 3, Z: 1}, true},
		{"outside x", Position{World: "w", X: 5, Y: 2, Z: 2}, false},
		{"outside y", Position{World: "w", X: 2, Y: -1, Z: 2}, false},
		{"outside z", Position{World: "w", X: 2, Y: 2, Z: 5}, false},
		{"other world", Position{World: "x", X: 2, Y: 2, Z: 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Contains(tt.p))
		})
	}
}

func TestRegion_Collides(t *testing.T) {
	base := mustRegion(t, Position{World: "w", X: 0, Y: 0, Z: 0}, Position{World: "w", X: 10, Y: 10, Z: 10})

	tests := []struct {
		name  string
		other Region
		want  bool
	}{
		{"self", base, true},
		{"touching edge", mustRegion(t, Position{World: "w", X: 10, Y: 10, Z: 10}, Position{World: "w", X: 20, Y: 20, Z: 20}), true},
		{"nested", mustRegion(t, Position{World: "w", X: 2, Y: 2, Z: 2}, Position{World: "w", X: 3, Y: 3, Z: 3}), true},
		{"apart on x", mustRegion(t, Position{World: "w", X: 11, Y: 0, Z: 0}, Position{World: "w", X: 20, Y: 10, Z: 10}), false},
		{"apart on y only", mustRegion(t, Position{World: "w", X: 0, Y: 11, Z: 0}, Position{World: "w", X: 10, Y: 20, Z: 10}), false},
		{"other world", mustRegion(t, Position{World: "n", X: 0, Y: 0, Z: 0}, Position{World: "n", X: 10, Y: 10, Z: 10}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Collides(tt.other))
			assert.Equal(t, tt.want, tt.other.Collides(base), "collision must be symmetric")
		})
	}
}

func TestRegion_Center(t *testing.T) {
	r := mustRegion(t, Position{World: "w", X: 0, Y: 10, Z: -4}, Position{World: "w", X: 10, Y: 20, Z: 4})
	assert.Equal(t, Position{World: "w", X: 5, Y: 15, Z: 0}, r.Center())
}

func TestRegion_Each(t *testing.T) {
	r := mustRegion(t, Position{World: "w", X: 0, Y: 0, Z: 0}, Position{World: "w", X: 1, Y: 2, Z: 1})

	seen := map[Position]bool{}
	r.Each(func(p Position) {
		assert.True(t, r.Contains(p))
		seen[p] = true
	})

	assert.Len(t, seen, r.Volume())
	assert.Equal(t, 12, r.Volume())
}
