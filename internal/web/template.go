package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/valve-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"duration": formatDuration,
	"ms": func(ms int64) string {
		return formatDuration(time.Duration(ms) * time.Millisecond)
	},
	"valve": status.ValveWord,
	"utc": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format(time.RFC3339)
	},
}).Parse(indexHTML))

func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
	}
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Valve Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.open { color: green; font-weight: bold; }
.closed { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Valve Controller</h1>

<h2>Valve</h2>
<table>
<tr><th>Valve</th><td id="valve" class="{{valve .Control.ValveOpen}}">{{valve .Control.ValveOpen}}</td></tr>
<tr><th>State</th><td id="state">{{.State}}</td></tr>
<tr><th>Watering window</th><td>{{if .WateringActive}}active{{else}}inactive{{end}}</td></tr>
{{if .ManualOpenFor}}<tr><th>Manual open for</th><td>{{duration .ManualOpenFor}} of {{ms .Config.MaxManualOpenMs}}</td></tr>{{end}}
{{if .Switch.Enabled}}<tr><th>Switch</th><td>{{if .Switch.On}}ON{{else}}OFF{{end}}{{if not .Switch.Baselined}} (settling){{end}}</td></tr>{{end}}
</table>

<h2>Schedule</h2>
<table>
<tr><th>Version</th><td>{{.Schedule.Version}}</td></tr>
<tr><th>Updated</th><td>{{utc .Schedule.UpdatedAt}}</td></tr>
<tr><th>Slots</th><td>{{.Schedule.Slots}}</td></tr>
<tr><th>Rejected updates</th><td>{{.Schedule.Rejected}}</td></tr>
<tr><th>Timezone</th><td>{{.Config.Timezone}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topic prefix</th><td>{{.Config.TopicPrefix}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Opens</th><td>{{.Counts.Opens}}</td></tr>
<tr><th>Closes</th><td>{{.Counts.Closes}}</td></tr>
<tr><th>Timeouts</th><td>{{.Counts.Timeouts}}</td></tr>
<tr><th>Manual commands</th><td>{{.Counts.ManualCommands}}</td></tr>
<tr><th>Ignored commands</th><td>{{.Counts.IgnoredCommands}}</td></tr>
<tr><th>Actuator failures</th><td>{{.Counts.ActuatorFailures}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{duration .Uptime}}</td></tr>
<tr><th>Started</th><td>{{utc .StartTime}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Template methods cannot take arguments, so computed values are fields.
	data := struct {
		status.Snapshot
		Uptime        time.Duration
		ManualOpenFor time.Duration
	}{
		Snapshot:      snap,
		Uptime:        snap.Uptime(),
		ManualOpenFor: snap.ManualOpenFor(),
	}
	return indexTmpl.Execute(w, data)
}
