package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClockLess(t *testing.T) {
	tests := []struct {
		name string
		a, b Clock
		want bool
	}{
		{
			name: "lower tick wins regardless of node",
			a:    Clock{Node: "zeta", Tick: 1},
			b:    Clock{Node: "alpha", Tick: 2},
			want: true,
		},
		{
			name: "higher tick is not less",
			a:    Clock{Node: "alpha", Tick: 3},
			b:    Clock{Node: "zeta", Tick: 2},
			want: false,
		},
		{
			name: "equal tick breaks tie on node",
			a:    Clock{Node: "alpha", Tick: 5},
			b:    Clock{Node: "beta", Tick: 5},
			want: true,
		},
		{
			name: "equal clocks are not less",
			a:    Clock{Node: "alpha", Tick: 5},
			b:    Clock{Node: "alpha", Tick: 5},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Less(tt.b))
		})
	}
}

func TestClockOrderIsTotal(t *testing.T) {
	clocks := []Clock{
		{Node: "alpha", Tick: 1},
		{Node: "beta", Tick: 1},
		{Node: "alpha", Tick: 2},
	}
	for i, a := range clocks {
		for j, b := range clocks {
			if i == j {
				assert.False(t, a.Less(b))
				continue
			}
			// Exactly one direction holds for distinct clocks.
			assert.NotEqual(t, a.Less(b), b.Less(a), "%v vs %v", a, b)
		}
	}
}
