package status

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(details ...Detail) Indicator {
	return IndicatorFunc(func(context.Context) []Detail { return details })
}

func TestWorst(t *testing.T) {
	tests := []struct {
		name   string
		levels []Level
		want   Level
	}{
		{"no levels", nil, OK},
		{"all ok", []Level{OK, OK}, OK},
		{"warning wins over ok", []Level{OK, Warning, OK}, Warning},
		{"error wins over warning", []Level{Warning, Error, OK}, Error},
		{"unknown counts as error", []Level{OK, Level("BOGUS")}, Level("BOGUS")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Worst(tt.levels...))
		})
	}
}

func TestAggregate(t *testing.T) {
	ctx := context.Background()

	snap := Aggregate(ctx,
		fixed(Detail{Name: "a", Status: OK}),
		nil,
		fixed(Detail{Name: "b", Status: Warning, Message: "slow"}, Detail{Name: "c", Status: OK}),
	)

	assert.Equal(t, Warning, snap.Status)
	require.Len(t, snap.Details, 3)
	assert.Equal(t, "a", snap.Details[0].Name)
	assert.Equal(t, "b", snap.Details[1].Name)
	assert.Equal(t, "c", snap.Details[2].Name)
	assert.False(t, snap.CheckedAt.IsZero())
}

func TestDetail_WithAttributeCopies(t *testing.T) {
	orig := Detail{Name: "x", Status: OK, Attributes: map[string]string{"a": "1"}}
	next := orig.WithAttribute("b", "2")

	assert.Equal(t, map[string]string{"a": "1"}, orig.Attributes)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, next.Attributes)
}

func TestCachedAggregator(t *testing.T) {
	ctx := context.Background()
	level := OK
	ind := IndicatorFunc(func(context.Context) []Detail {
		return []Detail{{Name: "dyn", Status: level}}
	})

	c := NewCachedAggregator(nil, ind)

	t.Run("initial snapshot is ok and empty", func(t *testing.T) {
		snap := c.Snapshot()
		assert.Equal(t, OK, snap.Status)
		assert.Empty(t, snap.Details)
	})

	t.Run("serves last refreshed snapshot", func(t *testing.T) {
		level = Error
		c.Refresh(ctx)

		// Changing the indicator does not affect reads until the next refresh.
		level = OK
		assert.Equal(t, Error, c.Snapshot().Status)
		require.Len(t, c.StatusDetails(ctx), 1)
		assert.Equal(t, Error, c.StatusDetails(ctx)[0].Status)

		c.Refresh(ctx)
		assert.Equal(t, OK, c.Snapshot().Status)
	})
}
