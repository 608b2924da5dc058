package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmissionLimitsInflight(t *testing.T) {
	a := NewAdmission(1, 1000)

	permit1, err := a.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = a.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	permit1.Release()

	permit2, err := a.Acquire(context.Background())
	require.NoError(t, err)
	permit2.Release()
}

func TestAdmissionRateLimitsWithinWindow(t *testing.T) {
	a := NewAdmission(10, 2)

	for i := 0; i < 2; i++ {
		permit, err := a.Acquire(context.Background())
		require.NoError(t, err)
		permit.Release()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAdmissionCloseRejectsNewCallers(t *testing.T) {
	a := NewAdmission(2, 200)
	a.Close()

	_, err := a.Acquire(context.Background())
	assert.Error(t, err)
}

func TestPermitReleaseIsIdempotent(t *testing.T) {
	a := NewAdmission(1, 200)
	permit, err := a.Acquire(context.Background())
	require.NoError(t, err)

	permit.Release()
	permit.Release()

	permit2, err := a.Acquire(context.Background())
	require.NoError(t, err)
	permit2.Release()
}
