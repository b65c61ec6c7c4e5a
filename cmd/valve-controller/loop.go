package main

import (
	"errors"
	"os"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/valve-controller/internal/gpio"
	"github.com/sweeney/valve-controller/internal/logic"
	"github.com/sweeney/valve-controller/internal/metrics"
	"github.com/sweeney/valve-controller/internal/mqtt"
	"github.com/sweeney/valve-controller/internal/schedule"
	"github.com/sweeney/valve-controller/internal/status"
	"github.com/sweeney/valve-controller/internal/sysinfo"
)

// daemon holds everything the run loop owns. Only runLoop touches it.
type daemon struct {
	store      *schedule.Store
	controller *logic.Controller
	actuator   gpio.Actuator
	sw         gpio.Switch // nil when no switch is wired
	debouncer  *logic.SwitchDebouncer
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	metrics    metrics.Recorder
	host       *sysinfo.Sampler
	loc        *time.Location
	now        func() time.Time

	wateringActive bool
	connectedOnce  bool
	switchFailing  bool
}

// loopInputs are the event sources runLoop selects over. Nil channels are
// never ready, so unused sources can be left out.
type loopInputs struct {
	sig        <-chan os.Signal
	tick       <-chan time.Time
	switchPoll <-chan time.Time
	heartbeat  <-chan time.Time
	inbound    <-chan mqtt.Inbound
}

func (d *daemon) runLoop(in loopInputs) error {
	for {
		select {
		case s := <-in.sig:
			d.shutdown(s)
			return nil
		case <-in.tick:
			d.tick()
		case <-in.switchPoll:
			d.pollSwitch()
		case <-in.heartbeat:
			d.heartbeat()
		case msg := <-in.inbound:
			d.handleInbound(msg)
		}
	}
}

func (d *daemon) tick() {
	t := d.now()
	d.wateringActive = d.store.ActiveAt(t.In(d.loc))
	trs, err := d.controller.Tick(t, d.wateringActive)
	d.applied(trs, err)
}

// command applies a manual command from source and returns the metrics
// result label.
func (d *daemon) command(cmd logic.Command, source string) string {
	trs, err := d.controller.Command(cmd, d.now())
	result := metrics.ResultAccepted
	var aerr *logic.ActuatorError
	switch {
	case errors.As(err, &aerr) && len(trs) == 0:
		result = metrics.ResultFailed
	case err != nil && aerr == nil:
		result = metrics.ResultInvalid
	case len(trs) == 0:
		result = metrics.ResultIgnored
		log.WithFields(log.Fields{"source": source, "command": cmd, "state": d.controller.State()}).
			Info("manual command matches valve position, ignored")
	}
	d.metrics.IncManualCommand(source, result)
	d.applied(trs, err)
	return result
}

// applied publishes transitions and refreshes status after the controller ran.
func (d *daemon) applied(trs []logic.Transition, err error) {
	for _, tr := range trs {
		entry := log.WithFields(log.Fields{
			"from":   tr.From,
			"to":     tr.To,
			"reason": tr.Reason,
		})
		if tr.Reason == logic.ReasonTimeout {
			entry.Warn("manual open exceeded safety timeout, valve closed")
		} else {
			entry.Info("transition")
		}
		d.metrics.IncTransition(string(tr.Reason))
		if perr := d.publisher.PublishTransition(tr); perr != nil {
			log.WithError(perr).Warn("publish transition")
		}
	}

	var aerr *logic.ActuatorError
	if errors.As(err, &aerr) {
		log.WithError(err).WithField("state", d.controller.State()).Error("actuator failure")
		d.metrics.IncActuatorFailure()
		d.publishSystem(mqtt.EventAlert, "ACTUATOR", false)
	} else if err != nil {
		log.WithError(err).Warn("controller rejected input")
	}

	d.refresh()
}

func (d *daemon) refresh() {
	cs := d.controller.ControlState()
	d.tracker.Update(cs, d.controller.Counts(), d.wateringActive)
	d.metrics.SetValve(cs.ValveOpen, cs.Mode == logic.ModeManual)
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

func (d *daemon) pollSwitch() {
	if d.sw == nil {
		return
	}
	on, err := d.sw.Read()
	if err != nil {
		if !d.switchFailing {
			log.WithError(err).Warn("switch read failed")
			d.switchFailing = true
		}
		return
	}
	if d.switchFailing {
		log.Info("switch read recovered")
		d.switchFailing = false
	}

	cmd, ok := d.debouncer.Process(logic.SwitchInput{On: on, Time: d.now()})
	d.tracker.SetSwitch(status.SwitchInfo{
		Enabled:   true,
		On:        d.debouncer.Position(),
		Baselined: d.debouncer.IsBaselined(),
	})
	if ok {
		log.WithField("command", cmd).Info("switch moved")
		d.command(cmd, metrics.SourceSwitch)
	}
}

func (d *daemon) handleInbound(msg mqtt.Inbound) {
	switch msg.Kind {
	case mqtt.InboundSchedule:
		d.handleSchedule(msg)
	case mqtt.InboundManual:
		d.handleManual(msg)
	case mqtt.InboundConnected:
		d.handleConnected()
	case mqtt.InboundDisconnected:
		log.Warn("mqtt connection lost, waiting for reconnect")
		d.setConnected(false)
	default:
		log.WithField("kind", msg.Kind).Warn("unexpected inbound message")
	}
}

func (d *daemon) handleSchedule(msg mqtt.Inbound) {
	upd, err := schedule.ParseUpdate(msg.Payload)
	if err != nil {
		log.WithError(err).Warn("schedule update rejected")
		d.tracker.RecordRejectedSchedule()
		d.metrics.IncScheduleUpdate(metrics.ResultInvalid)
		return
	}

	t := d.now()
	if err := d.store.Replace(upd.Weekly, upd.Timestamp, t); err != nil {
		result := metrics.ResultInvalid
		if errors.Is(err, schedule.ErrStaleSchedule) {
			result = metrics.ResultStale
		}
		log.WithError(err).WithFields(log.Fields{
			"version": upd.Timestamp,
			"stored":  d.store.Version(),
		}).Warn("schedule update rejected")
		d.tracker.RecordRejectedSchedule()
		d.metrics.IncScheduleUpdate(result)
		return
	}

	slots := upd.Weekly.SlotCount()
	log.WithFields(log.Fields{"version": upd.Timestamp, "slots": slots}).Info("schedule replaced")
	d.tracker.SetSchedule(upd.Timestamp, t, slots)
	d.metrics.IncScheduleUpdate(metrics.ResultAccepted)
	d.metrics.SetScheduleVersion(upd.Timestamp)
}

func (d *daemon) handleManual(msg mqtt.Inbound) {
	req, err := mqtt.ParseManual(msg.Payload)
	if err != nil {
		log.WithError(err).Warn("manual message rejected")
		d.metrics.IncManualCommand(metrics.SourceMQTT, metrics.ResultInvalid)
		return
	}
	if req.Status {
		d.respondStatus()
		return
	}
	d.command(req.Command, metrics.SourceMQTT)
}

// respondStatus answers from the last host sample; the probe itself runs on
// the sampling job.
func (d *daemon) respondStatus() {
	payload := status.FormatResponse(d.controller.State().Open(), d.host.Latest())
	if err := d.publisher.PublishStatus(payload); err != nil {
		log.WithError(err).Warn("publish status response")
	}
}

func (d *daemon) handleConnected() {
	d.setConnected(true)

	version := d.store.Version()
	if err := d.publisher.PublishScheduleRequest(version); err != nil {
		log.WithError(err).Warn("publish schedule request")
	} else {
		log.WithField("version", version).Info("requested schedule")
	}

	if d.connectedOnce {
		d.publishSystem(mqtt.EventReconnected, "", false)
	}
	d.connectedOnce = true
}

func (d *daemon) setConnected(connected bool) {
	if err := d.actuator.SetIndicator(gpio.IndicatorMQTT, connected); err != nil {
		log.WithError(err).Warn("set mqtt indicator")
	}
	d.tracker.SetMQTTConnected(connected)
	d.metrics.SetMQTTConnected(connected)
}

func (d *daemon) heartbeat() {
	if n := readNetworkInfo(); n != nil {
		d.tracker.SetNetwork(n)
	}
	d.refresh()
	snap := d.tracker.Snapshot()
	log.WithFields(log.Fields{
		"state":   snap.State(),
		"uptime":  snap.Uptime().Truncate(time.Second),
		"opens":   snap.Counts.Opens,
		"version": snap.Schedule.Version,
	}).Info("heartbeat")
	d.publishSystem(mqtt.EventHeartbeat, "", false)
}

func (d *daemon) shutdown(s os.Signal) {
	name := signalName(s)
	log.WithField("signal", name).Info("shutting down")
	d.refresh()
	d.publishSystem(mqtt.EventShutdown, name, true)
}

// publishSystem sends a lifecycle event carrying the full status snapshot.
func (d *daemon) publishSystem(event, reason string, retained bool) {
	snap := d.tracker.Snapshot()
	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.WithError(err).WithField("event", event).Warn("publish system event")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
