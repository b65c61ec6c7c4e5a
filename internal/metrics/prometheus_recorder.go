package metrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "valve"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	valveOpen       prom.Gauge
	valveManual     prom.Gauge
	transitions     *prom.CounterVec
	scheduleUpdates *prom.CounterVec
	scheduleVersion prom.Gauge
	manualCommands  *prom.CounterVec
	actuatorFails   prom.Counter
	mqttConnected   prom.Gauge
	inboundDropped  *prom.CounterVec
}

// NewPrometheusRecorder constructs the metrics and registers them on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		valveOpen: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "open",
			Help:      "1 while the valve is open",
		}),
		valveManual: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "manual",
			Help:      "1 while the valve is under manual control",
		}),
		transitions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Controller state transitions by reason",
		}, []string{"reason"}),
		scheduleUpdates: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_updates_total",
			Help:      "Schedule updates received by result",
		}, []string{"result"}),
		scheduleVersion: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "schedule_version",
			Help:      "Timestamp of the stored schedule",
		}),
		manualCommands: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "manual_commands_total",
			Help:      "Manual commands by source and result",
		}, []string{"source", "result"}),
		actuatorFails: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "actuator_failures_total",
			Help:      "Valve actuator calls that failed after retries",
		}),
		mqttConnected: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "1 while the broker connection is up",
		}),
		inboundDropped: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_dropped_total",
			Help:      "MQTT messages and connection events dropped because the run loop queue was full",
		}, []string{"kind"}),
	}
	reg.MustRegister(pr.valveOpen, pr.valveManual, pr.transitions, pr.scheduleUpdates,
		pr.scheduleVersion, pr.manualCommands, pr.actuatorFails, pr.mqttConnected, pr.inboundDropped)
	return pr
}

func (p *PrometheusRecorder) SetValve(open, manual bool) {
	p.valveOpen.Set(boolFloat(open))
	p.valveManual.Set(boolFloat(manual))
}

func (p *PrometheusRecorder) IncTransition(reason string) {
	p.transitions.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncScheduleUpdate(result string) {
	p.scheduleUpdates.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) SetScheduleVersion(version int64) {
	p.scheduleVersion.Set(float64(version))
}

func (p *PrometheusRecorder) IncManualCommand(source, result string) {
	p.manualCommands.WithLabelValues(source, result).Inc()
}

func (p *PrometheusRecorder) IncActuatorFailure() {
	p.actuatorFails.Inc()
}

func (p *PrometheusRecorder) SetMQTTConnected(connected bool) {
	p.mqttConnected.Set(boolFloat(connected))
}

func (p *PrometheusRecorder) IncInboundDropped(kind string) {
	p.inboundDropped.WithLabelValues(kind).Inc()
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// HTTPHandler returns an http.Handler that serves metrics from g.
func HTTPHandler(g prom.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
