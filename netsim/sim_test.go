package netsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callLog struct {
	calls []string
	times []float64
}

func (cl *callLog) handler(name string) HandlerFunc {
	return func(sim *Simulator, context any, data any) {
		cl.calls = append(cl.calls, name)
		cl.times = append(cl.times, sim.Now())
	}
}

func TestSimulatorRunsEventsInTimeOrder(t *testing.T) {
	sim := NewSimulator()
	log := &callLog{}

	sim.ScheduleAt(2.0, log.handler("a"), nil, nil)
	sim.ScheduleAt(1.0, log.handler("b"), nil, nil)
	sim.ScheduleAt(3.5, log.handler("c"), nil, nil)
	sim.StopAt(10.0)

	require.NoError(t, sim.Run())
	assert.Equal(t, []string{"b", "a", "c"}, log.calls)
	assert.Equal(t, []float64{1.0, 2.0, 3.5}, log.times)
	assert.Equal(t, 10.0, sim.Now())
}

func TestSimulatorBreaksTiesInInsertionOrder(t *testing.T) {
	sim := NewSimulator()
	log := &callLog{}

	sim.ScheduleAt(1.0, log.handler("first"), nil, nil)
	sim.ScheduleAt(1.0, func(sim *Simulator, context any, data any) {
		log.calls = append(log.calls, "second")
		sim.ScheduleIn(0.0, log.handler("fourth"), nil, nil)
	}, nil, nil)
	sim.ScheduleAt(1.0, log.handler("third"), nil, nil)
	sim.StopAt(2.0)

	require.NoError(t, sim.Run())
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, log.calls)
}

func TestSimulatorCancelsPendingEvents(t *testing.T) {
	sim := NewSimulator()
	log := &callLog{}

	kept := sim.ScheduleAt(1.0, log.handler("kept"), nil, nil)
	dropped := sim.ScheduleAt(2.0, log.handler("dropped"), nil, nil)
	assert.True(t, dropped.Pending())
	assert.True(t, dropped.Cancel())
	assert.False(t, dropped.Cancel())
	sim.StopAt(5.0)

	require.NoError(t, sim.Run())
	assert.Equal(t, []string{"kept"}, log.calls)
	assert.False(t, kept.Cancel(), "an event that fired cannot be cancelled")
	assert.False(t, kept.Pending())
}

func TestSimulatorStopsAtStopTime(t *testing.T) {
	sim := NewSimulator()
	log := &callLog{}

	sim.ScheduleAt(4.0, log.handler("before"), nil, nil)
	sim.StopAt(5.0)
	sim.ScheduleAt(5.0, log.handler("at-stop"), nil, nil)
	sim.ScheduleAt(6.0, log.handler("after"), nil, nil)

	require.NoError(t, sim.Run())
	assert.Equal(t, []string{"before"}, log.calls)
	assert.True(t, sim.Stopped())
}

func TestSimulatorNeedsStopTime(t *testing.T) {
	sim := NewSimulator()
	assert.ErrorIs(t, sim.Run(), ErrNotStopped)
}

func TestSimulatorFailHaltsRun(t *testing.T) {
	sim := NewSimulator()
	log := &callLog{}

	sim.ScheduleAt(1.0, func(sim *Simulator, context any, data any) {
		sim.Fail(ErrNoRoute)
	}, nil, nil)
	sim.ScheduleAt(2.0, log.handler("never"), nil, nil)
	sim.StopAt(3.0)

	assert.ErrorIs(t, sim.Run(), ErrNoRoute)
	assert.Empty(t, log.calls)
}

func TestSimulatorMovesPastTimesToNow(t *testing.T) {
	sim := NewSimulator()
	log := &callLog{}

	sim.ScheduleAt(2.0, func(sim *Simulator, context any, data any) {
		sim.ScheduleAt(1.0, log.handler("late"), nil, nil)
	}, nil, nil)
	sim.StopAt(3.0)

	require.NoError(t, sim.Run())
	assert.Equal(t, []float64{2.0}, log.times)
}

func drawStreams(sim *Simulator) [][]float64 {
	draws := [][]float64{}
	for _, name := range []string{"loss", "jitter"} {
		rng := sim.NewRngStream(name)
		vals := make([]float64, 5)
		for idx := range vals {
			vals[idx] = rng.RandU01()
		}
		draws = append(draws, vals)
	}
	return draws
}

func TestRngStreamsRepeatAcrossSimulators(t *testing.T) {
	first := drawStreams(NewSimulator())
	second := drawStreams(NewSimulator())
	assert.Equal(t, first, second)
	assert.NotEqual(t, first[0], first[1])

	other := NewSimulator()
	require.NoError(t, other.SetSeed(777))
	assert.NotEqual(t, first, drawStreams(other))
}

func TestSimulatorRejectsUnusableSeeds(t *testing.T) {
	sim := NewSimulator()
	assert.ErrorIs(t, sim.SetSeed(0), ErrBadSeed)
	assert.ErrorIs(t, sim.SetSeed(1<<40), ErrBadSeed)
	assert.Equal(t, DefaultSeed, sim.Seed())
}
