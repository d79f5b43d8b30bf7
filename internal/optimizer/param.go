package optimizer

import (
	"fmt"
	"math"
	"math/rand"
)

// ParameterType declares how a parameter value is cast after repair.
type ParameterType string

const (
	TypeInteger ParameterType = "integer"
	TypeFloat   ParameterType = "float"
)

// ParameterSpec declares the feasible region of one tunable parameter.
type ParameterSpec struct {
	Name    string        `json:"name" yaml:"name"`
	Min     float64       `json:"min" yaml:"min"`
	Max     float64       `json:"max" yaml:"max"`
	Step    float64       `json:"step" yaml:"step"`
	Type    ParameterType `json:"type" yaml:"type"`
	Default float64       `json:"default" yaml:"default"`
}

// Validate checks the spec invariants: min <= default <= max, step > 0,
// and (max-min)/step a whole number of discretization levels.
func (s ParameterSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("parameter spec: empty name")
	}
	if s.Min > s.Max {
		return fmt.Errorf("parameter %s: min %v > max %v", s.Name, s.Min, s.Max)
	}
	if s.Step <= 0 {
		return fmt.Errorf("parameter %s: step must be positive, got %v", s.Name, s.Step)
	}
	if s.Default < s.Min || s.Default > s.Max {
		return fmt.Errorf("parameter %s: default %v outside [%v, %v]", s.Name, s.Default, s.Min, s.Max)
	}
	levels := (s.Max - s.Min) / s.Step
	if math.Abs(levels-math.Round(levels)) > 1e-9 {
		return fmt.Errorf("parameter %s: range %v is not a whole number of steps %v", s.Name, s.Max-s.Min, s.Step)
	}
	if s.Type != TypeInteger && s.Type != TypeFloat {
		return fmt.Errorf("parameter %s: unknown type %q", s.Name, s.Type)
	}
	return nil
}

// Range returns max-min. A zero range means the parameter is fixed.
func (s ParameterSpec) Range() float64 {
	return s.Max - s.Min
}

// repairValue clamps v to [min,max], snaps it to the nearest step multiple
// from min, then casts to the declared type. Idempotent.
func (s ParameterSpec) repairValue(v float64) float64 {
	if math.IsNaN(v) {
		v = s.Default
	}
	v = math.Max(s.Min, math.Min(s.Max, v))
	if s.Step > 0 {
		v = s.Min + math.Round((v-s.Min)/s.Step)*s.Step
		v = math.Max(s.Min, math.Min(s.Max, v))
	}
	if s.Type == TypeInteger {
		v = math.Round(v)
	}
	return v
}

// ParameterSpace is the ordered set of tunable parameters. Order matters:
// single- and two-point crossover treat it as a sequence.
type ParameterSpace []ParameterSpec

// Validate checks every spec and rejects duplicate names.
func (space ParameterSpace) Validate() error {
	if len(space) == 0 {
		return fmt.Errorf("parameter space: no parameters")
	}
	seen := make(map[string]bool, len(space))
	for _, spec := range space {
		if err := spec.Validate(); err != nil {
			return err
		}
		if seen[spec.Name] {
			return fmt.Errorf("parameter space: duplicate parameter %s", spec.Name)
		}
		seen[spec.Name] = true
	}
	return nil
}

// Spec returns the spec for name, or false when the space does not tune it.
func (space ParameterSpace) Spec(name string) (ParameterSpec, bool) {
	for _, s := range space {
		if s.Name == name {
			return s, true
		}
	}
	return ParameterSpec{}, false
}

// Names returns parameter names in declaration order.
func (space ParameterSpace) Names() []string {
	names := make([]string, len(space))
	for i, s := range space {
		names[i] = s.Name
	}
	return names
}

// Repair projects an individual into the feasible region: every declared
// parameter is clamped, step-snapped and type-cast; missing parameters get
// their defaults. The result is a fresh copy.
func (space ParameterSpace) Repair(ind Individual) Individual {
	out := make(Individual, len(space))
	for _, spec := range space {
		v, ok := ind[spec.Name]
		if !ok {
			v = spec.Default
		}
		out[spec.Name] = spec.repairValue(v)
	}
	return out
}

// Random draws a feasible individual uniformly over the discretized space.
func (space ParameterSpace) Random(rng *rand.Rand) Individual {
	ind := make(Individual, len(space))
	for _, spec := range space {
		levels := int(math.Round(spec.Range()/spec.Step)) + 1
		v := spec.Min + float64(rng.Intn(levels))*spec.Step
		ind[spec.Name] = spec.repairValue(v)
	}
	return ind
}

// Defaults returns the individual made of every parameter's default value.
func (space ParameterSpace) Defaults() Individual {
	ind := make(Individual, len(space))
	for _, spec := range space {
		ind[spec.Name] = spec.repairValue(spec.Default)
	}
	return ind
}

// Constraint is a cross-parameter domain rule. Violations are never
// rejected outright: Penalty is subtracted from fitness so the search can
// pass through infeasible neighborhoods while being pushed away from them.
type Constraint struct {
	Name    string
	Penalty float64
	Check   func(ind Individual) bool
}

// DefaultConstraints returns the trading-domain rules: take-profit must
// exceed stop-loss, and the overbought threshold must exceed oversold.
// Each rule only fires when both of its parameters are present.
func DefaultConstraints() []Constraint {
	return []Constraint{
		{
			Name:    "take_profit_above_stop_loss",
			Penalty: 1000,
			Check: func(ind Individual) bool {
				tp, okTP := ind["take_profit"]
				sl, okSL := ind["stop_loss"]
				if !okTP || !okSL {
					return true
				}
				return tp > sl
			},
		},
		{
			Name:    "overbought_above_oversold",
			Penalty: 500,
			Check: func(ind Individual) bool {
				ob, okOB := lookupParam(ind, "overbought", "rsi_overbought")
				os, okOS := lookupParam(ind, "oversold", "rsi_oversold")
				if !okOB || !okOS {
					return true
				}
				return ob > os
			},
		},
	}
}

// lookupParam returns the first of the aliased names present in the
// individual. Spaces name the RSI thresholds with or without the
// indicator prefix.
func lookupParam(ind Individual, names ...string) (float64, bool) {
	for _, name := range names {
		if v, ok := ind[name]; ok {
			return v, true
		}
	}
	return 0, false
}

// CheckConstraints reports the violated constraint names.
func CheckConstraints(ind Individual, constraints []Constraint) []string {
	var violated []string
	for _, c := range constraints {
		if !c.Check(ind) {
			violated = append(violated, c.Name)
		}
	}
	return violated
}

// ConstraintPenalty sums the penalties of all violated constraints.
func ConstraintPenalty(ind Individual, constraints []Constraint) float64 {
	var penalty float64
	for _, c := range constraints {
		if !c.Check(ind) {
			penalty += c.Penalty
		}
	}
	return penalty
}

// Diversity measures population spread as the mean per-parameter standard
// deviation, normalized by parameter range. 0 means a collapsed population.
func Diversity(space ParameterSpace, population []Individual) float64 {
	if len(population) < 2 || len(space) == 0 {
		return 0
	}
	var total float64
	var counted int
	for _, spec := range space {
		r := spec.Range()
		if r == 0 {
			continue
		}
		var mean float64
		for _, ind := range population {
			mean += ind[spec.Name]
		}
		mean /= float64(len(population))
		var variance float64
		for _, ind := range population {
			d := ind[spec.Name] - mean
			variance += d * d
		}
		variance /= float64(len(population))
		total += math.Sqrt(variance) / r
		counted++
	}
	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}
