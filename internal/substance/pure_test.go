package substance

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polytrope/internal/thermo"
)

// countingOracle wraps canned responses and counts round trips.
type countingOracle struct {
	env     thermo.SaturationEnvelope
	fetches atomic.Int64
}

func (o *countingOracle) Lookup(ctx context.Context, a, b thermo.Property) (thermo.StateVector, error) {
	return thermo.StateVector{}, nil
}

func (o *countingOracle) SaturationAt(ctx context.Context, axis thermo.Property) (thermo.SaturationEnvelope, error) {
	o.fetches.Add(1)
	return o.env, nil
}

func TestPureEnvelopeCache(t *testing.T) {
	ctx := context.Background()
	oracle := &countingOracle{env: testEnvelope()}
	water := NewPure("water", oracle)

	axis := thermo.Property{Kind: thermo.QuantityPressure, Value: 4.7616}
	env1, err := water.SaturationAt(ctx, axis)
	require.NoError(t, err)
	env2, err := water.SaturationAt(ctx, axis)
	require.NoError(t, err)
	assert.Equal(t, env1, env2)
	assert.Equal(t, int64(1), oracle.fetches.Load(), "second fetch should hit the cache")

	// Moving the axis refetches.
	_, err = water.SaturationAt(ctx, thermo.Property{Kind: thermo.QuantityPressure, Value: 6.1823})
	require.NoError(t, err)
	assert.Equal(t, int64(2), oracle.fetches.Load())

	// Invalidate drops the cache.
	water.InvalidateEnvelope()
	_, ok := water.CachedEnvelope(axis)
	assert.False(t, ok)
}

func TestPureCachedEnvelopeIsReadOnly(t *testing.T) {
	ctx := context.Background()
	oracle := &countingOracle{env: testEnvelope()}
	water := NewPure("water", oracle)

	axis := thermo.Property{Kind: thermo.QuantityTemperature, Value: 150}
	_, err := water.SaturationAt(ctx, axis)
	require.NoError(t, err)

	env, ok := water.CachedEnvelope(axis)
	require.True(t, ok)
	assert.Equal(t, testEnvelope(), env)
	assert.Equal(t, int64(1), oracle.fetches.Load(), "CachedEnvelope must not fetch")

	_, ok = water.CachedEnvelope(thermo.Property{Kind: thermo.QuantityTemperature, Value: 151})
	assert.False(t, ok)
}

func TestPureConcurrentFetchesShareOneTrip(t *testing.T) {
	ctx := context.Background()
	oracle := &countingOracle{env: testEnvelope()}
	water := NewPure("water", oracle)
	axis := thermo.Property{Kind: thermo.QuantityPressure, Value: 4.7616}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := water.SaturationAt(ctx, axis)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// singleflight collapses the burst; allow a small race margin but far
	// fewer trips than callers.
	assert.LessOrEqual(t, oracle.fetches.Load(), int64(3))
}

func TestPureRejectsCorruptEnvelope(t *testing.T) {
	corrupt := testEnvelope()
	corrupt.Vg = corrupt.Vf // violates vg > vf
	oracle := &countingOracle{env: corrupt}
	water := NewPure("water", oracle)

	axis := thermo.Property{Kind: thermo.QuantityPressure, Value: 4.7616}
	_, err := water.SaturationAt(context.Background(), axis)
	require.Error(t, err)
	assert.True(t, thermo.IsInconsistent(err))

	// Corrupt data is never cached; the next call refetches.
	_, ok := water.CachedEnvelope(axis)
	assert.False(t, ok)
}
