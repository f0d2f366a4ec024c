/*
 * Copyright (c) 2024. Frits1980 -- All Rights Reserved
 *
 * This file is part of HEATING-PID project.
 *
 * HEATING-PID is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as the Free Software Foundation,
 * either version 3 of the License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package internal

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/Frits1980/heating-pid/internal/clock"
	"github.com/Frits1980/heating-pid/internal/config"
	"github.com/Frits1980/heating-pid/internal/db"
	"github.com/Frits1980/heating-pid/internal/debounce"
	"github.com/Frits1980/heating-pid/internal/heatsource"
	"github.com/Frits1980/heating-pid/internal/logger"
	"github.com/Frits1980/heating-pid/internal/metrics"
	"github.com/Frits1980/heating-pid/internal/pid"
	"github.com/Frits1980/heating-pid/internal/schedule"
	"github.com/Frits1980/heating-pid/internal/syncstart"
	"github.com/Frits1980/heating-pid/internal/valve"
	"github.com/Frits1980/heating-pid/internal/zone"
)

const (
	timerDuration = 50 * time.Millisecond
	saveTimeout   = 10 * time.Second
	presenceKey   = "presence"

	// a longer gap between ticks (suspend, clock jump) is not integrated
	maxTickGap = 10
)

type manualRequest struct {
	Setpoint float64
	Set      bool
}

// tickContext is the loop-wide state a tick works with. The away anchor is
// carried across ticks, the rest is refreshed at the start of every tick.
type tickContext struct {
	now       time.Time
	dt        float64
	outdoor   *float64
	solarHigh bool
	flow      *float64
	ret       *float64
	quiet     heatsource.Quiet

	away      bool
	awaySince time.Time
}

// Deps are the collaborators of the control loop.
type Deps struct {
	Clock    clock.Clock
	Sensors  SensorSource
	Schedule ScheduleSource
	Store    PersistentStore
	Heat     HeatSource
	// Status is optional.
	Status StatusPublisher
	Valves map[string]valve.Actuator
}

// ControlLoop ties zones, valves and the heat source together. All state is
// owned by the goroutine running Run.
type ControlLoop struct {
	cfg      *config.Config
	clock    clock.Clock
	sensors  SensorSource
	schedule ScheduleSource
	store    PersistentStore
	heat     HeatSource
	status   StatusPublisher

	zones    []*ZoneController
	byName   map[string]*ZoneController
	valves   *valve.Manager
	strategy *heatsource.Strategy
	sync     *syncstart.Engine
	outside  *OutsideController
	flow     sensorGroup
	ret      sensorGroup

	windows  *debounce.Debouncer[string, bool]
	manuals  *debounce.Debouncer[string, manualRequest]
	presence *debounce.Debouncer[string, bool]

	events     chan event
	tc         tickContext
	enabled    bool
	kick       bool
	saveNeeded bool
	lastTick   time.Time
	lastCmd    heatsource.Command
	maintZone  string
}

func NewControlLoop(cfg *config.Config, d Deps) (*ControlLoop, error) {
	if d.Sensors == nil || d.Schedule == nil || d.Store == nil || d.Heat == nil {
		return nil, errors.New("control loop: sensors, schedule, store and heat source are required")
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}

	awayDelay := debounce.AwayDelay
	if cfg.Presence != nil {
		awayDelay = cfg.Presence.AwayDelay
	}

	c := &ControlLoop{
		cfg:      cfg,
		clock:    d.Clock,
		sensors:  d.Sensors,
		schedule: d.Schedule,
		store:    d.Store,
		heat:     d.Heat,
		status:   d.Status,
		byName:   make(map[string]*ZoneController),
		valves:   valve.NewManager(cfg.Valves),
		strategy: heatsource.New(cfg.HeatSource.Config),
		sync:     syncstart.New(cfg.Sync.LookAhead),
		outside:  NewOutsideController(cfg.Outside, cfg.Solar),
		flow:     newSensorGroup(flowPrefix, cfg.HeatSource.FlowSensors, config.DefaultAverageType),
		ret:      newSensorGroup(returnPrefix, cfg.HeatSource.ReturnSensors, config.DefaultAverageType),
		windows:  debounce.New(debounce.Constant[string, bool](cfg.Debounce.Window)),
		manuals:  debounce.New(debounce.Constant[string, manualRequest](cfg.Debounce.Manual)),
		presence: debounce.New(debounce.Presence[string](awayDelay)),
		events:   make(chan event, eventQueueSize),
		enabled:  true,
	}

	for _, name := range cfg.ZoneNames() {
		a := d.Valves[name]
		if a == nil {
			return nil, errors.Errorf("zone %s: no valve actuator", name)
		}
		z := newZoneController(name, cfg.Zones[name], *cfg.Outside.ReferenceTemperature, cfg.Adaptive.LearnerConfig)
		z.valve = c.valves.Add(name, a)
		c.zones = append(c.zones, z)
		c.byName[name] = z

		// sources start from the safe state, the first report is debounced like any other
		c.windows.Seed(name, false)
		c.manuals.Seed(name, manualRequest{})
	}
	c.presence.Seed(presenceKey, true)
	return c, nil
}

func (c *ControlLoop) Zone(name string) *ZoneController {
	return c.byName[name]
}

func (c *ControlLoop) Enabled() bool {
	return c.enabled
}

// Load restores persisted state. Missing or unreadable state leaves the
// configured defaults in place.
func (c *ControlLoop) Load(ctx context.Context) {
	now := c.clock.Now()
	c.tc = tickContext{now: now}

	snap, err := c.store.Load(ctx)
	if err != nil {
		logger.L().Errorf("Loading state failed, using defaults: %v", err)
		metrics.PersistErrors.Inc()
		snap = db.NewSnapshot()
	}
	for _, z := range c.zones {
		rec, ok := snap.Zones[z.name]
		if !ok {
			z.log.Infof("No stored state, using defaults")
			continue
		}
		z.restore(rec, c.schedule.IsActive(z.name, now))
		if sp := z.manual.Setpoint(); sp != nil {
			c.manuals.Seed(z.name, manualRequest{Setpoint: *sp, Set: true})
		}
	}
	c.valves.SetLastMaintenance(snap.LastValveMaintenance)

	if vs, ok := c.store.(ControllerValues); ok {
		v, found, err := vs.ControllerValue(ctx, db.KeyEnabled)
		switch {
		case err != nil:
			logger.L().Errorf("Reading enable switch failed: %v", err)
		case found:
			if on, ok := parseSwitch(v); ok {
				c.enabled = on
			}
		}
	}
	metrics.LoopEnabled.Set(metrics.Bool(c.enabled))
	logger.L().Infof("Loaded state of %d zones, enabled=%v", len(snap.Zones), c.enabled)
}

// Run loads state, then ticks until ctx is cancelled. Raw events are
// debounced, a single timer wakes the loop at the earliest debounce deadline.
func (c *ControlLoop) Run(ctx context.Context) {
	c.Load(ctx)
	c.Tick(ctx)

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	saver := time.NewTicker(c.cfg.SaveInterval)
	defer saver.Stop()
	timer := time.NewTimer(timerDuration)
	defer timer.Stop()
	c.armTimer(timer)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case ev := <-c.events:
			c.handleEvent(ctx, ev)
			c.armTimer(timer)
		case <-timer.C:
			c.kick = false
			c.Tick(ctx)
			c.armTimer(timer)
		case <-ticker.C:
			c.Tick(ctx)
			c.armTimer(timer)
		case <-saver.C:
			c.save(ctx)
		}
	}
}

func (c *ControlLoop) armTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	if d, ok := c.nextWake(); ok {
		timer.Reset(d)
	}
}

func (c *ControlLoop) nextWake() (time.Duration, bool) {
	if c.kick {
		return timerDuration, true
	}
	var next time.Time
	for _, deadline := range []func() (time.Time, bool){
		c.windows.NextDeadline, c.manuals.NextDeadline, c.presence.NextDeadline,
	} {
		if t, ok := deadline(); ok && (next.IsZero() || t.Before(next)) {
			next = t
		}
	}
	if next.IsZero() {
		return 0, false
	}
	d := next.Sub(c.clock.Now())
	if d < timerDuration {
		d = timerDuration
	}
	return d, true
}

func (c *ControlLoop) shutdown() {
	c.windows.Cancel()
	c.manuals.Cancel()
	c.presence.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	c.save(ctx)
	c.tc = tickContext{}
	logger.L().Info("Control loop stopped")
}

func (c *ControlLoop) handleEvent(ctx context.Context, ev event) {
	now := c.clock.Now()
	switch ev.kind {
	case eventWindow:
		if ch, ok := c.windows.Observe(now, ev.zone, ev.on); ok {
			c.applyWindow(ch)
		}
	case eventManual:
		if ev.retained {
			// replayed broker state on (re)subscribe, not a user action
			logger.Zone(ev.zone).Debugf("Ignoring retained manual setpoint %.1f (set: %v)", ev.value, ev.on)
			return
		}
		if ch, ok := c.manuals.Observe(now, ev.zone, manualRequest{Setpoint: ev.value, Set: ev.on}); ok {
			c.applyManual(now, ch)
		}
	case eventPresence:
		if ch, ok := c.presence.Observe(now, presenceKey, ev.on); ok {
			c.applyPresence(ch)
		}
	case eventEnable:
		c.setEnabled(ctx, ev.on)
	case eventLogLevel:
		if err := logger.SetLogLevelString(ev.text); err != nil {
			logger.L().Error(err)
		} else {
			logger.L().Infof("Updated loglevel to `%v`", logger.Level().String())
		}
	case eventGain:
		z := c.byName[ev.zone]
		if z == nil {
			return
		}
		if err := z.setGain(ev.param, ev.value); err != nil {
			z.log.Error(err)
			return
		}
		c.saveNeeded = true
	}
}

// processDue applies debounced changes whose delay has passed.
func (c *ControlLoop) processDue(now time.Time) {
	for _, ch := range c.windows.Due(now) {
		c.applyWindow(ch)
	}
	for _, ch := range c.manuals.Due(now) {
		c.applyManual(now, ch)
	}
	for _, ch := range c.presence.Due(now) {
		c.applyPresence(ch)
	}
}

func (c *ControlLoop) applyWindow(ch debounce.Change[string, bool]) {
	z := c.byName[ch.Key]
	if z == nil || z.windowOpen == ch.To {
		return
	}
	z.windowOpen = ch.To
	z.log.Infof("Window open: %v", ch.To)
	c.kick = true
}

func (c *ControlLoop) applyManual(now time.Time, ch debounce.Change[string, manualRequest]) {
	z := c.byName[ch.Key]
	if z == nil {
		return
	}
	if ch.To.Set {
		active := c.schedule.IsActive(z.name, now)
		z.manual.Set(ch.To.Setpoint, active)
		z.log.Infof("Manual setpoint %.1f°C (schedule active: %v)", ch.To.Setpoint, active)
	} else {
		z.manual.Clear()
		z.log.Infof("Manual setpoint cleared")
	}
	c.saveNeeded = true
	c.kick = true
}

func (c *ControlLoop) applyPresence(ch debounce.Change[string, bool]) {
	away := !ch.To
	if away == c.tc.away {
		return
	}
	c.tc.away = away
	if away {
		c.tc.awaySince = ch.At
		logger.L().Infof("Away mode on since %v", ch.At.Format(time.RFC3339))
	} else {
		c.tc.awaySince = time.Time{}
		logger.L().Info("Away mode off")
	}
	c.kick = true
}

func (c *ControlLoop) setEnabled(ctx context.Context, on bool) {
	if on != c.enabled {
		logger.L().Infof("Heating enabled: %v -> %v", c.enabled, on)
	}
	c.enabled = on
	metrics.LoopEnabled.Set(metrics.Bool(on))

	cctx, cancel := context.WithTimeout(ctx, c.cfg.Valves.CommandTimeout)
	defer cancel()
	if c.status != nil {
		payload := "OFF"
		if on {
			payload = "ON"
		}
		if err := c.status.PublishWait(cctx, c.cfg.MQTTConfig.ControlTopic+"/active", mqttQoS, true, payload); err != nil {
			logger.L().Warn(err)
		}
	}
	if vs, ok := c.store.(ControllerValues); ok {
		if err := vs.SetControllerValue(cctx, db.KeyEnabled, strconv.FormatBool(on)); err != nil {
			logger.L().Errorf("Persisting enable switch failed: %v", err)
			metrics.PersistErrors.Inc()
		}
	}
	c.kick = true
}

// Tick runs one control cycle.
func (c *ControlLoop) Tick(ctx context.Context) {
	now := c.clock.Now()
	tc := &c.tc
	tc.now, tc.dt = now, 0
	if !c.lastTick.IsZero() {
		if gap := now.Sub(c.lastTick); gap > 0 && gap <= maxTickGap*c.cfg.TickInterval {
			tc.dt = gap.Seconds()
		}
	}
	c.lastTick = now

	tc.outdoor, tc.solarHigh = c.outside.Read(c.sensors)
	tc.flow = readOptional(c.flow, c.sensors)
	tc.ret = readOptional(c.ret, c.sensors)

	c.processDue(now)
	c.synchronize(now)
	for _, z := range c.zones {
		c.updateZone(tc, z)
	}

	reqs := make([]valve.Request, 0, len(c.zones))
	demand := make(map[string]float64, len(c.zones))
	for _, z := range c.zones {
		d := z.demand
		if !c.enabled {
			d = 0
		}
		demand[z.name] = d
		reqs = append(reqs, valve.Request{Zone: z.name, Demand: d, Setpoint: z.setpoint})
	}
	if err := c.valves.Apply(ctx, now, reqs, c.lastCmd.HoldValves); err != nil {
		logger.L().Warnf("Valve commands incomplete, retrying next tick: %v", err)
	}

	maxDemand := 0.0
	for _, z := range c.zones {
		if c.valves.CountsTowardDemand(z.name, now) {
			maxDemand = math.Max(maxDemand, demand[z.name])
		}
	}

	maint := c.valves.Maintain(ctx, now, demand, c.lastCmd.HoldValves)
	if mz := c.valves.MaintenanceZone(); mz != "" && mz != c.maintZone {
		metrics.ValveMaintenanceTotal.Inc()
	}
	c.maintZone = c.valves.MaintenanceZone()

	for _, z := range c.zones {
		z.heating = demand[z.name] > 0 && z.valve.Open() && !z.valve.InMaintenance()
		if f := z.valve.Failures(); f > z.valveFailures {
			metrics.ValveCommandErrors.WithLabelValues(z.name).Add(float64(f - z.valveFailures))
			z.valveFailures = f
		}
	}

	tc.quiet = c.strategy.QuietWindow(c.dayBlocks(now), now)
	cmd := c.strategy.Evaluate(heatsource.Inputs{
		Now:            now,
		MaxDemand:      maxDemand,
		Flow:           tc.flow,
		Return:         tc.ret,
		Quiet:          tc.quiet,
		SafetyOverride: !c.enabled,
	})
	if maint {
		cmd.Pump = true
	}
	c.commandHeatSource(ctx, cmd)
	c.lastCmd = cmd

	c.report(ctx, maxDemand, cmd)
	if c.saveNeeded {
		c.save(ctx)
	}
	metrics.LoopTicksTotal.Inc()
	metrics.LoopTickLatency.Observe(c.clock.Since(now).Seconds())
}

func (c *ControlLoop) synchronize(now time.Time) {
	if !*c.cfg.Sync.Enabled {
		return
	}
	members := make([]syncstart.Member, 0, len(c.zones))
	for _, z := range c.zones {
		next, has := c.schedule.NextBlock(z.name, now)
		members = append(members, syncstart.Member{
			Zone:           z.name,
			ScheduleActive: c.schedule.IsActive(z.name, now),
			Manual:         z.manual.Active(),
			Away:           c.tc.away,
			Current:        z.temperature,
			Next:           next,
			HasNext:        has,
			Heating:        z.heating,
		})
	}

	synced := make(map[string]bool)
	for _, name := range c.sync.Evaluate(now, members) {
		synced[name] = true
	}
	for _, z := range c.zones {
		z.synced = synced[z.name]
	}
}

func (c *ControlLoop) updateZone(tc *tickContext, z *ZoneController) {
	now := tc.now
	scheduleActive := c.schedule.IsActive(z.name, now)
	if z.manual.Expire(scheduleActive) {
		z.log.Infof("Manual setpoint expired, schedule active: %v", scheduleActive)
		c.manuals.Seed(z.name, manualRequest{})
		c.saveNeeded = true
	}

	t, ok := z.sensors.read(c.sensors)
	if ok {
		z.temperature = &t
		last := t
		z.lastKnown = &last
	} else {
		z.temperature = nil
	}

	in := zone.Inputs{
		Default:    *z.cfg.DefaultSetpoint,
		Manual:     z.manual.Setpoint(),
		WindowOpen: z.windowOpen,
		SolarHigh:  tc.solarHigh,
	}
	if scheduleActive {
		if sp, ok := c.schedule.CurrentSetpoint(z.name, now); ok {
			in.Schedule = &sp
		}
	}
	if tc.away {
		in.Away = z.cfg.AwayTemperature
	}

	wasPreheat := z.preheat
	z.preheat = false
	if ok && *c.cfg.Adaptive.Enabled && !scheduleActive {
		if next, has := c.schedule.NextBlock(z.name, now); has && z.learner.ShouldPreheat(now, next, t) {
			in.Preheat = &next.Temperature
			z.preheat = true
			if !wasPreheat {
				z.log.Infof("Pre-heating to %.1f°C for %v, factor %.1f min/°C",
					next.Temperature, next.From.Format("15:04"), z.learner.Factor())
			}
		}
	}
	if !z.preheat && z.synced {
		if b, ok := c.sync.Synced(z.name); ok {
			in.Preheat, in.Synced = &b.Temperature, true
		}
	}

	res := c.resolver(z).Resolve(in)
	z.setpoint, z.source = res.Setpoint, res.Source

	if !ok {
		c.sensorFailure(tc, z)
		return
	}
	if !z.failingSince.IsZero() {
		z.log.Infof("Temperature readings recovered")
		z.failingSince, z.escalated = time.Time{}, false
	}

	z.demand = z.pid.Update(z.setpoint, t, tc.outdoor, tc.dt)
	if *c.cfg.Adaptive.Enabled && z.learner.Observe(now, t, z.setpoint, z.demand, z.windowOpen) {
		c.saveNeeded = true
	}
}

// sensorFailure holds the last demand for a while, then falls back to frost
// protection with a proportional-only demand on the last known temperature.
func (c *ControlLoop) sensorFailure(tc *tickContext, z *ZoneController) {
	if z.failingSince.IsZero() {
		z.failingSince = tc.now
		z.log.Warnf("No fresh temperature reading, holding demand at %.1f%%", z.demand)
		metrics.ZoneSensorFailures.WithLabelValues(z.name).Inc()
	}
	if tc.now.Sub(z.failingSince) < c.cfg.SensorFailureTimeout {
		return
	}

	last := 0.0
	if z.lastKnown != nil {
		last = *z.lastKnown
	}
	if !z.escalated {
		z.escalated = true
		z.log.Errorf("Temperature unavailable for %v, frost protection at %.1f°C", c.cfg.SensorFailureTimeout,
			*c.cfg.FrostTemperature)
	}
	z.setpoint, z.source = *c.cfg.FrostTemperature, zone.SourceFrost
	z.demand = math.Max(pid.MinOutput, math.Min(pid.MaxOutput, z.pid.Gains().Kp*(z.setpoint-last)))
}

func (c *ControlLoop) resolver(z *ZoneController) zone.Resolver {
	r := zone.Resolver{FrostTemp: *c.cfg.FrostTemperature, WindowDrop: *z.cfg.WindowDrop}
	switch {
	case z.cfg.SolarDrop != nil:
		r.SolarDrop = *z.cfg.SolarDrop
	case c.cfg.Solar != nil:
		r.SolarDrop = c.cfg.Solar.Drop
	}
	return r
}

func (c *ControlLoop) dayBlocks(now time.Time) []schedule.Block {
	var blocks []schedule.Block
	for _, z := range c.zones {
		blocks = append(blocks, c.schedule.DayBlocks(z.name, now)...)
	}
	return blocks
}

func (c *ControlLoop) commandHeatSource(ctx context.Context, cmd heatsource.Command) {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.Valves.CommandTimeout)
	defer cancel()
	if err := c.heat.Command(cctx, cmd); err != nil {
		logger.L().Errorf("Heat source command failed, retrying next tick: %v", err)
		metrics.HeatSourceCommandErrors.Inc()
	}
}

func (c *ControlLoop) snapshot() *db.Snapshot {
	snap := db.NewSnapshot()
	for _, z := range c.zones {
		snap.Zones[z.name] = z.record()
	}
	snap.LastValveMaintenance = c.valves.LastMaintenance()
	snap.Version = db.SchemaVersion
	return snap
}

func (c *ControlLoop) save(ctx context.Context) {
	snap := c.snapshot()
	if err := c.store.Save(ctx, snap); err != nil {
		logger.L().Errorf("Saving state failed, keeping it in memory: %v", err)
		metrics.PersistErrors.Inc()
		return
	}
	c.saveNeeded = false
	logger.L().Debugf("Saved state of %d zones", len(snap.Zones))
}

func readOptional(g sensorGroup, src SensorSource) *float64 {
	if g.empty() {
		return nil
	}
	if v, ok := g.read(src); ok {
		return &v
	}
	return nil
}
