package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recoverViolation runs f and returns the invariant violation it raised, if any.
func recoverViolation(f func()) (v *InvariantViolation) {
	defer func() {
		if rec := recover(); rec != nil {
			v = rec.(*InvariantViolation)
		}
	}()
	f()
	return nil
}

func newBath() *Station {
	return newStation(1, StationSpec{Name: "bath5", Kind: StationBath, Position: 5, Dwell: 60, Drip: 30})
}

func TestStation_Dwell_Lifecycle(t *testing.T) {
	// GIVEN an empty bath
	st := newBath()
	require.True(t, st.Accepts())

	// WHEN a manipulator acquires capacity and drops a rack
	require.True(t, st.AcquireCapacity(0))
	assert.False(t, st.Accepts(), "capacity token held")
	st.BeginDwell(7, 100)
	st.ReleaseCapacity(0)

	// THEN the bath stays occupied while the rack dwells
	assert.True(t, st.Occupied())
	assert.False(t, st.Accepts())
	assert.False(t, st.DwellElapsed(7, 159))
	assert.True(t, st.DwellElapsed(7, 160))
	assert.Equal(t, map[int]int64{7: 100}, st.DwellStarts())

	// WHEN the dwell is released, the bath is still in use until the drip ends
	st.Release(7)
	assert.Empty(t, st.DwellStarts())
	assert.True(t, st.Occupied())
	assert.False(t, st.AcquireCapacity(1))

	// THEN vacating makes it available again
	st.Vacate()
	assert.True(t, st.Accepts())
	assert.True(t, st.AcquireCapacity(1))
}

func TestStation_AcquireCapacity_Exclusive(t *testing.T) {
	st := newBath()
	require.True(t, st.AcquireCapacity(0))

	assert.False(t, st.AcquireCapacity(1))
	assert.True(t, st.AcquireCapacity(0), "holder may re-acquire")
}

func TestStation_BeginDwell_OccupiedIsViolation(t *testing.T) {
	st := newBath()
	st.BeginDwell(1, 0)

	v := recoverViolation(func() { st.BeginDwell(2, 10) })

	require.NotNil(t, v)
	assert.Equal(t, InvariantCapacity, v.Invariant)
	assert.ErrorIs(t, v, ErrInvariant)
}

func TestStation_ReleaseCapacity_WrongHolderIsViolation(t *testing.T) {
	st := newBath()
	require.True(t, st.AcquireCapacity(0))

	v := recoverViolation(func() { st.ReleaseCapacity(1) })

	require.NotNil(t, v)
	assert.Equal(t, InvariantCapacity, v.Invariant)
}

func TestStation_BeginDwell_NonBathIsViolation(t *testing.T) {
	exit := newStation(2, StationSpec{Name: "exit", Kind: StationExit, Position: 7})

	v := recoverViolation(func() { exit.BeginDwell(0, 0) })

	require.NotNil(t, v)
	assert.True(t, exit.Accepts())
}

func TestStation_Stack_ArrivalOrder(t *testing.T) {
	exit := newStation(2, StationSpec{Name: "exit", Kind: StationExit, Position: 7})

	assert.Equal(t, 0, exit.Stack(4))
	assert.Equal(t, 1, exit.Stack(2))
	assert.Equal(t, []int{4, 2}, exit.Stacked())

	assert.Panics(t, func() { newBath().Stack(0) })
}
