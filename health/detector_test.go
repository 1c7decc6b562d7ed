package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyProbe struct {
	mu   sync.Mutex
	errs []error
	pos  int
}

func (f *flakyProbe) probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pos >= len(f.errs) {
		return nil
	}
	err := f.errs[f.pos]
	f.pos++
	return err
}

func TestEscalationLadder(t *testing.T) {
	boom := errors.New("connection refused")
	probe := &flakyProbe{errs: []error{boom, boom, boom, boom, boom, nil}}

	d := NewDetector(WithFailureThreshold(5))
	d.Register("terminology", probe.probe)

	want := []Status{
		StatusDegraded,
		StatusUnhealthy,
		StatusUnhealthy,
		StatusUnhealthy,
		StatusCircuitOpen,
		StatusHealthy,
	}
	for i, status := range want {
		d.CheckNow(context.Background())
		state, ok := d.Status("terminology")
		require.True(t, ok)
		assert.Equal(t, status, state.Status, "after probe %d", i+1)
	}

	state, _ := d.Status("terminology")
	assert.Zero(t, state.ConsecutiveFailures)
	assert.Empty(t, state.LastError)
	assert.False(t, state.LastHealthy.IsZero())
}

func TestModeDerivation(t *testing.T) {
	var tsErr, fhirErr error
	var mu sync.Mutex

	d := NewDetector(WithFailureThreshold(2))
	d.Register("terminology", func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		return tsErr
	})
	d.Register("fhir-server", func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		return fhirErr
	})

	d.CheckNow(context.Background())
	assert.Equal(t, ModeOnline, d.Mode())

	mu.Lock()
	tsErr = errors.New("timeout")
	mu.Unlock()
	d.CheckNow(context.Background())
	assert.Equal(t, ModeDegraded, d.Mode())

	mu.Lock()
	fhirErr = errors.New("timeout")
	mu.Unlock()
	// drive both checks past the threshold
	d.CheckNow(context.Background())
	d.CheckNow(context.Background())
	assert.Equal(t, ModeOffline, d.Mode())
	assert.False(t, d.Usable("terminology"))
	assert.False(t, d.Usable("fhir-server"))

	mu.Lock()
	tsErr, fhirErr = nil, nil
	mu.Unlock()
	d.CheckNow(context.Background())
	assert.Equal(t, ModeOnline, d.Mode())
	assert.True(t, d.Usable("terminology"))
}

func TestManualOverride(t *testing.T) {
	d := NewDetector()
	d.Register("fhir-server", func(ctx context.Context) error { return nil })
	d.CheckNow(context.Background())
	require.Equal(t, ModeOnline, d.Mode())

	var events []Event
	d.Events().Subscribe(func(ev Event) {
		if ev.Type == EventModeChanged {
			events = append(events, ev)
		}
	})

	d.SetMode(ModeOffline)
	assert.Equal(t, ModeOffline, d.Mode())
	require.Len(t, events, 1)
	assert.False(t, events[0].Auto)
	assert.Equal(t, ModeOffline, events[0].Mode)

	// probing cannot flip an overridden mode
	d.CheckNow(context.Background())
	assert.Equal(t, ModeOffline, d.Mode())
	assert.Len(t, events, 1)

	d.ClearOverride()
	assert.Equal(t, ModeOnline, d.Mode())
	require.Len(t, events, 2)
	assert.True(t, events[1].Auto)
	assert.Equal(t, ModeOnline, events[1].Mode)
}

func TestStatusChangeEvents(t *testing.T) {
	boom := errors.New("boom")
	probe := &flakyProbe{errs: []error{boom, nil}}

	d := NewDetector()
	d.Register("registry", probe.probe)

	var statuses []Status
	d.Events().Subscribe(func(ev Event) {
		if ev.Type == EventStatusChanged {
			statuses = append(statuses, ev.Status)
		}
	})

	d.CheckNow(context.Background())
	d.CheckNow(context.Background())
	d.CheckNow(context.Background()) // no change, no event

	assert.Equal(t, []Status{StatusDegraded, StatusHealthy}, statuses)
}

func TestPeriodicLoop(t *testing.T) {
	var calls int
	var mu sync.Mutex

	d := NewDetector(WithInterval(10 * time.Millisecond))
	d.Register("fhir-server", func(ctx context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	d.Start(context.Background())
	defer d.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := calls
		mu.Unlock()
		if n >= 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("loop did not probe repeatedly")
}

func TestGroupedModeDerivation(t *testing.T) {
	var primaryErr error
	var mu sync.Mutex

	d := NewDetector()
	d.RegisterInGroup("terminology", "tx-primary", func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		return primaryErr
	})
	d.RegisterInGroup("terminology", "tx-fallback", func(ctx context.Context) error { return nil })
	d.RegisterInGroup("registry", "packages.fhir.org", func(ctx context.Context) error { return nil })

	// One terminology server down: the group still has a healthy
	// member, so the mode stays online.
	mu.Lock()
	primaryErr = errors.New("unreachable")
	mu.Unlock()
	d.CheckNow(context.Background())
	assert.Equal(t, ModeOnline, d.Mode())

	mu.Lock()
	primaryErr = nil
	mu.Unlock()
	d.CheckNow(context.Background())
	assert.Equal(t, ModeOnline, d.Mode())

	state, ok := d.Status("tx-primary")
	require.True(t, ok)
	assert.Equal(t, "terminology", state.Group)
}

func TestAutoSwitchEvents(t *testing.T) {
	boom := errors.New("down")
	probe := &flakyProbe{errs: []error{boom}}

	d := NewDetector()
	d.Register("fhir-server", probe.probe)

	var auto []Mode
	d.Events().Subscribe(func(ev Event) {
		if ev.Type == EventAutoSwitch {
			auto = append(auto, ev.Mode)
		}
	})

	d.CheckNow(context.Background()) // fails, mode drops to offline
	d.CheckNow(context.Background()) // recovers

	assert.Equal(t, []Mode{ModeOffline, ModeOnline}, auto)
}

func TestResetCircuit(t *testing.T) {
	boom := errors.New("boom")
	probe := &flakyProbe{errs: []error{boom, boom}}

	d := NewDetector(WithFailureThreshold(2))
	d.Register("fhir-server", probe.probe)

	d.CheckNow(context.Background())
	d.CheckNow(context.Background())
	assert.False(t, d.Usable("fhir-server"))
	assert.Equal(t, ModeOffline, d.Mode())

	var autoSwitches, modeChanges int
	d.Events().Subscribe(func(ev Event) {
		switch ev.Type {
		case EventAutoSwitch:
			autoSwitches++
		case EventModeChanged:
			modeChanges++
		}
	})

	require.True(t, d.ResetCircuit("fhir-server"))
	state, _ := d.Status("fhir-server")
	assert.Equal(t, StatusHealthy, state.Status)
	assert.Zero(t, state.ConsecutiveFailures)
	assert.True(t, d.Usable("fhir-server"))
	assert.Equal(t, ModeOnline, d.Mode())

	// An operator reset is not an automatic switch.
	assert.Zero(t, autoSwitches)
	assert.Equal(t, 1, modeChanges)

	assert.False(t, d.ResetCircuit("not-registered"))
}

func TestStatesOrdered(t *testing.T) {
	d := NewDetector()
	d.Register("terminology", func(ctx context.Context) error { return nil })
	d.Register("fhir-server", func(ctx context.Context) error { return nil })
	d.Register("registry", func(ctx context.Context) error { return nil })

	states := d.States()
	require.Len(t, states, 3)
	assert.Equal(t, "fhir-server", states[0].Name)
	assert.Equal(t, "registry", states[1].Name)
	assert.Equal(t, "terminology", states[2].Name)
	for _, s := range states {
		assert.Equal(t, StatusUnknown, s.Status)
	}
}

func TestUnprobedChecksStartUnknown(t *testing.T) {
	d := NewDetector()
	d.Register("terminology", func(ctx context.Context) error { return nil })

	state, ok := d.Status("terminology")
	require.True(t, ok)
	assert.Equal(t, StatusUnknown, state.Status)
	assert.True(t, state.LastChecked.IsZero())

	var statuses []Status
	d.Events().Subscribe(func(ev Event) {
		if ev.Type == EventStatusChanged {
			statuses = append(statuses, ev.Status)
		}
	})

	d.CheckNow(context.Background())
	state, _ = d.Status("terminology")
	assert.Equal(t, StatusHealthy, state.Status)
	assert.Equal(t, []Status{StatusHealthy}, statuses)
	assert.Equal(t, ModeOnline, d.Mode())
}
