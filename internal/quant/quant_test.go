package quant

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrice(t *testing.T) {
	t.Run("floors to tick", func(t *testing.T) {
		got, err := Price(1.2345, 0.001)
		require.NoError(t, err)
		assert.InDelta(t, 1.234, got, 1e-9)
	})

	t.Run("rejects below one tick", func(t *testing.T) {
		_, err := Price(0.0005, 0.001)
		assert.Error(t, err)
	})

	t.Run("rejects non-positive tick size", func(t *testing.T) {
		_, err := Price(1.0, 0)
		assert.Error(t, err)
	})

	t.Run("rejects non-finite price", func(t *testing.T) {
		_, err := Price(math.Inf(1), 0.001)
		assert.Error(t, err)
	})
}

func TestSize(t *testing.T) {
	t.Run("floors to lot", func(t *testing.T) {
		got, err := Size(10.7, 0.5, 1.0)
		require.NoError(t, err)
		assert.InDelta(t, 10.5, got, 1e-9)
	})

	t.Run("rejects below min size", func(t *testing.T) {
		_, err := Size(0.2, 0.5, 1.0)
		assert.Error(t, err)
	})

	t.Run("rejects quantity insufficient for one lot after floor", func(t *testing.T) {
		_, err := Size(1.0, 5.0, 1.0)
		assert.Error(t, err)
	})
}
