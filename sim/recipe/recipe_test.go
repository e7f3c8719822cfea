package recipe

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func op(name string) Operation {
	return Operation{Name: name, UsedInTech: true, TimeMin: 5, TimeOpt: 6, TimeMax: 10, DripTime: 3, CrossingDistance: 5}
}

func names(ops []Operation) []string {
	out := make([]string, 0, len(ops))
	for _, o := range ops {
		out = append(out, o.Name)
	}
	return out
}

func TestActiveOperations_SkipsUnusedOperations(t *testing.T) {
	// GIVEN a technology where the middle operation is not used
	unused := op("rinse")
	unused.UsedInTech = false
	tech := Technology{Operations: []Operation{op("degrease"), unused, op("zinc")}}

	// WHEN the active operations are computed
	active, err := tech.ActiveOperations()

	// THEN the unused operation is absent and order is preserved
	require.NoError(t, err)
	assert.Equal(t, []string{"degrease", "zinc"}, names(active))
}

func TestActiveOperations_WhenRuleFiltersByAttributes(t *testing.T) {
	pickle := op("pickle")
	pickle.When = "material == 'Fe' && pickling"
	passivate := op("passivate")
	passivate.When = "layers > 2"

	tech := Technology{
		Attrs:      map[string]any{"material": "Fe", "pickling": true, "layers": 2},
		Operations: []Operation{op("degrease"), pickle, passivate},
	}

	active, err := tech.ActiveOperations()
	require.NoError(t, err)
	assert.Equal(t, []string{"degrease", "pickle"}, names(active))
}

func TestActiveOperations_BadRuleIsReported(t *testing.T) {
	bad := op("pickle")
	bad.When = "material =="
	tech := Technology{Attrs: map[string]any{"material": "Fe"}, Operations: []Operation{bad}}

	_, err := tech.ActiveOperations()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRule))
}

func TestActiveOperations_NonBoolRuleRejected(t *testing.T) {
	bad := op("pickle")
	bad.When = "layers + 1"
	tech := Technology{Attrs: map[string]any{"layers": 1}, Operations: []Operation{bad}}

	_, err := tech.ActiveOperations()
	assert.True(t, errors.Is(err, ErrRule))
}

func TestActiveOperations_DuplicateNames(t *testing.T) {
	tech := Technology{Operations: []Operation{op("zinc"), op("zinc")}}
	_, err := tech.ActiveOperations()
	assert.Error(t, err)
}

func TestOperation_Dwell(t *testing.T) {
	assert.Equal(t, 6.0, op("a").Dwell())
	noOpt := op("b")
	noOpt.TimeOpt = 0
	assert.Equal(t, 5.0, noOpt.Dwell())
}

func TestOperation_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Operation)
	}{
		{"empty name", func(o *Operation) { o.Name = "" }},
		{"negative drip", func(o *Operation) { o.DripTime = -1 }},
		{"NaN crossing distance", func(o *Operation) { o.CrossingDistance = math.NaN() }},
		{"infinite time_max", func(o *Operation) { o.TimeMax = math.Inf(1) }},
		{"no dwell", func(o *Operation) { o.TimeMin, o.TimeOpt = 0, 0 }},
		{"opt below min", func(o *Operation) { o.TimeOpt = 4 }},
		{"max below dwell", func(o *Operation) { o.TimeMax = 5.5 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := op("x")
			tc.mutate(&o)
			assert.Error(t, o.Validate())
		})
	}
	assert.NoError(t, op("ok").Validate())
}
