// Package health tracks the reachability of the external services
// validation depends on and derives the engine's operating mode from
// them.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/medvertical/records/event"
)

// Status is the health of a single monitored service.
type Status string

const (
	// StatusUnknown means the service has not been probed yet.
	StatusUnknown Status = "unknown"

	// StatusHealthy means the last probe succeeded.
	StatusHealthy Status = "healthy"

	// StatusDegraded means exactly one consecutive probe failed.
	StatusDegraded Status = "degraded"

	// StatusUnhealthy means two or more consecutive probes failed.
	StatusUnhealthy Status = "unhealthy"

	// StatusCircuitOpen means consecutive failures reached the
	// threshold; callers should stop using the service until a probe
	// succeeds again.
	StatusCircuitOpen Status = "circuit-open"
)

// Mode is the overall operating mode derived from all checks.
type Mode string

const (
	// ModeOnline means every check group has a healthy service.
	ModeOnline Mode = "online"

	// ModeDegraded means some services are failing but at least one
	// is still healthy.
	ModeDegraded Mode = "degraded"

	// ModeOffline means no monitored service is healthy.
	ModeOffline Mode = "offline"
)

// Probe tests one service. A nil error means the service is reachable.
type Probe func(ctx context.Context) error

// CheckState is a snapshot of one monitored service.
type CheckState struct {
	Name                string
	Group               string
	Status              Status
	ConsecutiveFailures int
	LastError           string
	Latency             time.Duration
	LastChecked         time.Time
	LastHealthy         time.Time
}

// EventType identifies what a health event describes.
type EventType string

const (
	// EventStatusChanged fires when a check's status moves.
	EventStatusChanged EventType = "statusChanged"

	// EventModeChanged fires when the effective mode moves, whether by
	// probing or by manual override.
	EventModeChanged EventType = "modeChanged"

	// EventAutoSwitch accompanies modeChanged when the move came from
	// probing rather than an operator.
	EventAutoSwitch EventType = "autoSwitch"
)

// Event is published when a check or the overall mode changes state.
type Event struct {
	Type EventType

	// Check and Status are set on statusChanged events.
	Check  string
	Status Status

	// Mode and Previous are set on modeChanged events.
	Mode     Mode
	Previous Mode

	// Auto is false when the change came from a manual override.
	Auto bool
}

const (
	// DefaultInterval is how often the background loop probes.
	DefaultInterval = 60 * time.Second

	// DefaultFailureThreshold opens the circuit after this many
	// consecutive failures.
	DefaultFailureThreshold = 5

	// DefaultProbeTimeout bounds a single probe.
	DefaultProbeTimeout = 5 * time.Second
)

type check struct {
	name  string
	group string
	probe Probe
	state CheckState
}

// Detector probes registered services periodically and escalates
// failures: one failure degrades a service, a second marks it
// unhealthy, and reaching the threshold opens its circuit. A single
// success resets it to healthy.
type Detector struct {
	interval  time.Duration
	threshold int
	timeout   time.Duration
	bus       *event.Bus[Event]

	mu       sync.Mutex
	checks   map[string]*check
	order    []string
	mode     Mode
	override *Mode

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Option configures the detector.
type Option func(*Detector)

// WithInterval sets how often the background loop probes.
func WithInterval(interval time.Duration) Option {
	return func(d *Detector) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// WithFailureThreshold sets how many consecutive failures open a
// check's circuit.
func WithFailureThreshold(threshold int) Option {
	return func(d *Detector) {
		if threshold > 0 {
			d.threshold = threshold
		}
	}
}

// WithProbeTimeout bounds the duration of a single probe.
func WithProbeTimeout(timeout time.Duration) Option {
	return func(d *Detector) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDetector creates a detector. Register checks, then Start the
// background loop or drive it with CheckNow.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		interval:  DefaultInterval,
		threshold: DefaultFailureThreshold,
		timeout:   DefaultProbeTimeout,
		bus:       event.NewBus[Event](),
		checks:    make(map[string]*check),
		mode:      ModeOnline,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a service to monitor in its own group. New checks
// start unknown until their first probe.
func (d *Detector) Register(name string, probe Probe) {
	d.RegisterInGroup(name, name, probe)
}

// RegisterInGroup adds a service under a named group. The derived mode
// is online only while every group still has a healthy member, so
// interchangeable services (several terminology servers, several
// registries) should share a group.
func (d *Detector) RegisterInGroup(group, name string, probe Probe) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.checks[name]; !exists {
		d.order = append(d.order, name)
		sort.Strings(d.order)
	}
	d.checks[name] = &check{
		name:  name,
		group: group,
		probe: probe,
		state: CheckState{Name: name, Group: group, Status: StatusUnknown},
	}
}

// Start launches the periodic probe loop. The loop runs until Stop is
// called or ctx is cancelled.
func (d *Detector) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	go func() {
		defer close(d.done)

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		d.CheckNow(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stop:
				return
			case <-ticker.C:
				d.CheckNow(ctx)
			}
		}
	}()
}

// Stop ends the background loop.
func (d *Detector) Stop() {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()

	d.stopOnce.Do(func() {
		close(d.stop)
		if started {
			<-d.done
		}
	})
}

// CheckNow probes every registered service once and updates statuses
// and the derived mode.
func (d *Detector) CheckNow(ctx context.Context) {
	d.mu.Lock()
	names := make([]string, len(d.order))
	copy(names, d.order)
	d.mu.Unlock()

	for _, name := range names {
		d.mu.Lock()
		c, ok := d.checks[name]
		probe := Probe(nil)
		if ok {
			probe = c.probe
		}
		d.mu.Unlock()
		if probe == nil {
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, d.timeout)
		start := time.Now()
		err := probe(probeCtx)
		latency := time.Since(start)
		cancel()

		d.record(name, err, latency)
	}
	d.refreshMode(true)
}

// record applies one probe outcome to a check.
func (d *Detector) record(name string, err error, latency time.Duration) {
	d.mu.Lock()
	c, ok := d.checks[name]
	if !ok {
		d.mu.Unlock()
		return
	}

	previous := c.state.Status
	now := time.Now()
	c.state.LastChecked = now
	c.state.Latency = latency

	if err == nil {
		c.state.ConsecutiveFailures = 0
		c.state.LastError = ""
		c.state.LastHealthy = now
		c.state.Status = StatusHealthy
	} else {
		c.state.ConsecutiveFailures++
		c.state.LastError = err.Error()
		c.state.Status = d.escalate(c.state.ConsecutiveFailures)
	}
	status := c.state.Status
	d.mu.Unlock()

	if status != previous {
		d.bus.Publish(Event{Type: EventStatusChanged, Check: name, Status: status, Auto: true})
	}
}

// escalate maps a consecutive failure count to a status.
func (d *Detector) escalate(failures int) Status {
	switch {
	case failures <= 0:
		return StatusHealthy
	case failures >= d.threshold:
		return StatusCircuitOpen
	case failures == 1:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

// refreshMode recomputes the derived mode and publishes a change
// event when it moves. A manual override suppresses automatic
// switches until cleared.
func (d *Detector) refreshMode(auto bool) {
	d.mu.Lock()
	derived := d.deriveLocked()
	previous := d.mode
	d.mode = derived
	overridden := d.override != nil
	d.mu.Unlock()

	if !overridden && derived != previous {
		d.bus.Publish(Event{Type: EventModeChanged, Mode: derived, Previous: previous, Auto: auto})
		if auto {
			d.bus.Publish(Event{Type: EventAutoSwitch, Mode: derived, Previous: previous, Auto: true})
		}
	}
}

// deriveLocked computes the mode from check statuses. Callers hold mu.
func (d *Detector) deriveLocked() Mode {
	if len(d.checks) == 0 {
		return ModeOnline
	}

	healthy := 0
	groupHealthy := make(map[string]bool)
	for _, c := range d.checks {
		if _, seen := groupHealthy[c.group]; !seen {
			groupHealthy[c.group] = false
		}
		if c.state.Status == StatusHealthy {
			healthy++
			groupHealthy[c.group] = true
		}
	}

	if healthy == 0 {
		return ModeOffline
	}
	for _, ok := range groupHealthy {
		if !ok {
			return ModeDegraded
		}
	}
	return ModeOnline
}

// Mode returns the effective operating mode, honoring any override.
func (d *Detector) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.override != nil {
		return *d.override
	}
	return d.mode
}

// SetMode forces the mode until ClearOverride is called.
func (d *Detector) SetMode(mode Mode) {
	d.mu.Lock()
	previous := d.mode
	if d.override != nil {
		previous = *d.override
	}
	d.override = &mode
	d.mu.Unlock()

	if mode != previous {
		d.bus.Publish(Event{Type: EventModeChanged, Mode: mode, Previous: previous, Auto: false})
	}
}

// ClearOverride returns the detector to automatic mode derivation.
func (d *Detector) ClearOverride() {
	d.mu.Lock()
	if d.override == nil {
		d.mu.Unlock()
		return
	}
	previous := *d.override
	d.override = nil
	current := d.mode
	d.mu.Unlock()

	if current != previous {
		d.bus.Publish(Event{Type: EventModeChanged, Mode: current, Previous: previous, Auto: true})
	}
}

// Status returns the snapshot of one check.
func (d *Detector) Status(name string) (CheckState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.checks[name]
	if !ok {
		return CheckState{}, false
	}
	return c.state, true
}

// States returns snapshots of all checks, ordered by name.
func (d *Detector) States() []CheckState {
	d.mu.Lock()
	defer d.mu.Unlock()

	states := make([]CheckState, 0, len(d.order))
	for _, name := range d.order {
		states = append(states, d.checks[name].state)
	}
	return states
}

// ResetCircuit puts a check back to healthy with a clean failure
// count, letting callers retry a service without waiting for the next
// probe. It reports whether the check exists.
func (d *Detector) ResetCircuit(name string) bool {
	d.mu.Lock()
	c, ok := d.checks[name]
	if !ok {
		d.mu.Unlock()
		return false
	}
	previous := c.state.Status
	c.state.Status = StatusHealthy
	c.state.ConsecutiveFailures = 0
	c.state.LastError = ""
	d.mu.Unlock()

	if previous != StatusHealthy {
		d.bus.Publish(Event{Type: EventStatusChanged, Check: name, Status: StatusHealthy, Auto: false})
	}
	d.refreshMode(false)
	return true
}

// Usable reports whether a check's circuit is closed. Unknown checks
// are usable.
func (d *Detector) Usable(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.checks[name]
	if !ok {
		return true
	}
	return c.state.Status != StatusCircuitOpen
}

// Events returns the bus health events are published on.
func (d *Detector) Events() *event.Bus[Event] {
	return d.bus
}
