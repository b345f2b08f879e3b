package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/co2-monitor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
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
	},
	"ppm": func(v float64) string {
		return fmt.Sprintf("%.0f", v)
	},
	"kohm": func(v float64) string {
		return fmt.Sprintf("%.2f kΩ", v)
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>CO2 Monitor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.good { color: green; font-weight: bold; }
.fair { color: olive; font-weight: bold; }
.poor { color: orange; font-weight: bold; }
.dangerous { color: red; font-weight: bold; }
.warning { color: red; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>CO2 Monitor</h1>

<h2>Air</h2>
<table>
{{if .HaveReading}}<tr><th>CO2</th><td id="ppm">{{ppm .Reading.PPM}} ppm</td></tr>
<tr><th>Quality</th><td id="quality" class="{{if eq .Reading.Tier.String "GOOD"}}good{{else if eq .Reading.Tier.String "FAIR"}}fair{{else if eq .Reading.Tier.String "POOR"}}poor{{else}}dangerous{{end}}">{{.Reading.Tier}}</td></tr>
<tr><th>Mode</th><td id="mode"{{if eq (printf "%s" .Reading.Mode) "WARNING"}} class="warning"{{end}}>{{.Reading.Mode}}</td></tr>
<tr><th>Sensor voltage</th><td>{{printf "%.3f" .Reading.Voltage}} V</td></tr>
<tr><th>Rs</th><td>{{kohm .Reading.Resistance}}</td></tr>
<tr><th>Rs/R0</th><td>{{printf "%.3f" .Reading.Ratio}}</td></tr>
<tr><th>Digital (D0)</th><td>{{if .Reading.Digital}}high{{else}}low{{end}}</td></tr>
{{else}}<tr><th>CO2</th><td id="ppm" class="unknown">waiting for first reading</td></tr>{{end}}
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Calibration</h2>
<table>
<tr><th>State</th><td id="calibration-state">{{stateOrUnknown .Calibration.State}}</td></tr>
<tr><th>R0</th><td>{{kohm .Calibration.R0}}</td></tr>
<tr><th>Reference R0</th><td>{{kohm .Calibration.ReferenceR0}}</td></tr>
<tr><th>Calibrations</th><td>{{.Calibration.Count}}</td></tr>
<tr><th>Recalibration due</th><td>{{if .Calibration.Due}}yes{{else}}no{{end}}</td></tr>
{{if not .Calibration.LastAt.IsZero}}<tr><th>Last</th><td>{{.Calibration.LastAt.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Warnings</th><td>{{.Counts.Warnings}}</td></tr>
<tr><th>Recalibrations</th><td>{{.Counts.Recalibrations}}</td></tr>
<tr><th>Drift warnings</th><td>{{.Counts.DriftWarnings}}</td></tr>
<tr><th>Invalid samples</th><td>{{.Counts.InvalidSamples}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Sample</th><td>{{.Config.SampleMs}}ms</td></tr>
<tr><th>Decision</th><td>{{.Config.DecisionMs}}ms</td></tr>
<tr><th>Threshold</th><td>{{ppm .Config.Threshold}} ppm</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() and Ready() methods but the template needs fields.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Ready  bool
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Ready:    snap.Ready(),
	}
	return indexTmpl.Execute(w, data)
}
