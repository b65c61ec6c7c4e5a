// Package metrics exposes controller activity as Prometheus metrics. Callers
// hold a Recorder; NoopRecorder is used when metrics are disabled.
package metrics

// Manual command sources.
const (
	SourceMQTT   = "mqtt"
	SourceSwitch = "switch"
)

// Result labels.
const (
	ResultAccepted = "accepted"
	ResultIgnored  = "ignored"
	ResultStale    = "stale"
	ResultInvalid  = "invalid"
	ResultFailed   = "failed"
)

// Recorder receives controller observations.
type Recorder interface {
	SetValve(open, manual bool)
	IncTransition(reason string)
	IncScheduleUpdate(result string)
	SetScheduleVersion(version int64)
	IncManualCommand(source, result string)
	IncActuatorFailure()
	SetMQTTConnected(connected bool)
	IncInboundDropped(kind string)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) SetValve(bool, bool)             {}
func (NoopRecorder) IncTransition(string)            {}
func (NoopRecorder) IncScheduleUpdate(string)        {}
func (NoopRecorder) SetScheduleVersion(int64)        {}
func (NoopRecorder) IncManualCommand(string, string) {}
func (NoopRecorder) IncActuatorFailure()             {}
func (NoopRecorder) SetMQTTConnected(bool)           {}
func (NoopRecorder) IncInboundDropped(string)        {}
