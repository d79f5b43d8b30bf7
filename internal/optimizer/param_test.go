package optimizer

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpace() ParameterSpace {
	return ParameterSpace{
		{Name: "ma_period", Min: 5, Max: 50, Step: 1, Type: TypeInteger, Default: 20},
		{Name: "stop_loss", Min: 0.01, Max: 0.05, Step: 0.005, Type: TypeFloat, Default: 0.02},
		{Name: "take_profit", Min: 0.02, Max: 0.10, Step: 0.005, Type: TypeFloat, Default: 0.06},
	}
}

func TestParameterSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    ParameterSpec
		wantErr bool
	}{
		{
			name: "valid integer",
			spec: ParameterSpec{Name: "p", Min: 1, Max: 10, Step: 1, Type: TypeInteger, Default: 5},
		},
		{
			name:    "min above max",
			spec:    ParameterSpec{Name: "p", Min: 10, Max: 1, Step: 1, Type: TypeInteger, Default: 5},
			wantErr: true,
		},
		{
			name:    "zero step",
			spec:    ParameterSpec{Name: "p", Min: 1, Max: 10, Step: 0, Type: TypeInteger, Default: 5},
			wantErr: true,
		},
		{
			name:    "negative step",
			spec:    ParameterSpec{Name: "p", Min: 1, Max: 10, Step: -1, Type: TypeInteger, Default: 5},
			wantErr: true,
		},
		{
			name:    "default outside range",
			spec:    ParameterSpec{Name: "p", Min: 1, Max: 10, Step: 1, Type: TypeInteger, Default: 11},
			wantErr: true,
		},
		{
			name:    "range not a whole number of steps",
			spec:    ParameterSpec{Name: "p", Min: 0, Max: 1, Step: 0.3, Type: TypeFloat, Default: 0.3},
			wantErr: true,
		},
		{
			name:    "unknown type",
			spec:    ParameterSpec{Name: "p", Min: 1, Max: 10, Step: 1, Type: "boolean", Default: 5},
			wantErr: true,
		},
		{
			name:    "empty name",
			spec:    ParameterSpec{Min: 1, Max: 10, Step: 1, Type: TypeInteger, Default: 5},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParameterSpaceValidateDuplicates(t *testing.T) {
	space := ParameterSpace{
		{Name: "p", Min: 1, Max: 10, Step: 1, Type: TypeInteger, Default: 5},
		{Name: "p", Min: 1, Max: 10, Step: 1, Type: TypeInteger, Default: 5},
	}
	assert.Error(t, space.Validate())

	assert.Error(t, ParameterSpace{}.Validate())
}

func TestRepairClampsAndSnaps(t *testing.T) {
	space := testSpace()

	repaired := space.Repair(Individual{
		"ma_period":   -3,
		"stop_loss":   0.0226,
		"take_profit": 1.5,
	})

	assert.Equal(t, 5.0, repaired["ma_period"], "below min clamps to min")
	assert.InDelta(t, 0.025, repaired["stop_loss"], 1e-9, "snaps to nearest step from min")
	assert.InDelta(t, 0.10, repaired["take_profit"], 1e-9, "above max clamps to max")
}

func TestRepairMissingParameterGetsDefault(t *testing.T) {
	space := testSpace()
	repaired := space.Repair(Individual{"ma_period": 30})

	assert.InDelta(t, 0.02, repaired["stop_loss"], 1e-9)
	assert.InDelta(t, 0.06, repaired["take_profit"], 1e-9)
}

func TestRepairIdempotent(t *testing.T) {
	space := testSpace()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		raw := Individual{
			"ma_period":   rng.Float64()*200 - 50,
			"stop_loss":   rng.Float64() * 0.2,
			"take_profit": rng.Float64() * 0.5,
		}
		once := space.Repair(raw)
		twice := space.Repair(once)
		assert.Equal(t, once, twice)
	}
}

func TestRepairIsAFreshCopy(t *testing.T) {
	space := testSpace()
	original := Individual{"ma_period": 20, "stop_loss": 0.02, "take_profit": 0.06}
	repaired := space.Repair(original)
	repaired["ma_period"] = 99

	assert.Equal(t, 20.0, original["ma_period"])
}

func TestRepairNaNFallsBackToDefault(t *testing.T) {
	space := testSpace()
	repaired := space.Repair(Individual{"ma_period": math.NaN()})
	assert.Equal(t, 20.0, repaired["ma_period"])
}

func TestRandomStaysFeasible(t *testing.T) {
	space := testSpace()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		ind := space.Random(rng)
		require.Len(t, ind, len(space))
		for _, spec := range space {
			v := ind[spec.Name]
			assert.GreaterOrEqual(t, v, spec.Min)
			assert.LessOrEqual(t, v, spec.Max)
			// Already on the step grid: repair must not move it.
			assert.Equal(t, spec.repairValue(v), v)
		}
	}
}

func TestDefaultConstraints(t *testing.T) {
	constraints := DefaultConstraints()

	feasible := Individual{"take_profit": 0.06, "stop_loss": 0.02, "overbought": 70, "oversold": 30}
	assert.Empty(t, CheckConstraints(feasible, constraints))
	assert.Zero(t, ConstraintPenalty(feasible, constraints))

	inverted := Individual{"take_profit": 0.01, "stop_loss": 0.02}
	violated := CheckConstraints(inverted, constraints)
	require.Len(t, violated, 1)
	assert.Equal(t, "take_profit_above_stop_loss", violated[0])
	assert.Equal(t, 1000.0, ConstraintPenalty(inverted, constraints))

	both := Individual{"take_profit": 0.01, "stop_loss": 0.02, "overbought": 20, "oversold": 80}
	assert.Equal(t, 1500.0, ConstraintPenalty(both, constraints))

	// Rules only fire when both parameters are present.
	partial := Individual{"take_profit": 0.01}
	assert.Zero(t, ConstraintPenalty(partial, constraints))
}

func TestRSIConstraintMatchesPrefixedNames(t *testing.T) {
	constraints := DefaultConstraints()

	// Spaces that name the thresholds with the indicator prefix still
	// trigger the overbought-above-oversold rule.
	inverted := Individual{"rsi_overbought": 20, "rsi_oversold": 80}
	violated := CheckConstraints(inverted, constraints)
	require.Len(t, violated, 1)
	assert.Equal(t, "overbought_above_oversold", violated[0])
	assert.Equal(t, 500.0, ConstraintPenalty(inverted, constraints))

	feasible := Individual{"rsi_overbought": 70, "rsi_oversold": 30}
	assert.Zero(t, ConstraintPenalty(feasible, constraints))
}

func TestDiversity(t *testing.T) {
	space := testSpace()

	collapsed := []Individual{
		{"ma_period": 20, "stop_loss": 0.02, "take_profit": 0.06},
		{"ma_period": 20, "stop_loss": 0.02, "take_profit": 0.06},
	}
	assert.Zero(t, Diversity(space, collapsed))

	spread := []Individual{
		{"ma_period": 5, "stop_loss": 0.01, "take_profit": 0.02},
		{"ma_period": 50, "stop_loss": 0.05, "take_profit": 0.10},
	}
	assert.Greater(t, Diversity(space, spread), 0.0)

	// A single individual has no spread by definition.
	assert.Zero(t, Diversity(space, collapsed[:1]))
}
