package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/presence"
	"github.com/thefoeyouknow/Teams-Pod/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"label": presence.Label,
	"class": func(a string) string {
		switch a {
		case presence.Available:
			return "free"
		case presence.Busy, presence.DoNotDisturb:
			return "busy"
		case presence.Away, presence.BeRightBack:
			return "away"
		}
		return "unknown"
	},
	"ago": func(now, t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return now.Sub(t).Truncate(time.Second).String() + " ago"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>Status Pod</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.free { color: green; font-weight: bold; }
.busy { color: #c00; font-weight: bold; }
.away { color: #c80; }
.unknown { color: #888; }
.error { color: #c00; }
</style>
</head>
<body>
<h1>Status Pod</h1>

<h2>Presence</h2>
<table>
<tr><th>State</th><td>{{if .State}}{{.State}}{{else}}BOOT{{end}}</td></tr>
{{if .ErrorTitle}}<tr><th>Error</th><td class="error">{{.ErrorTitle}}: {{.ErrorDetail}}</td></tr>{{end}}
<tr><th>Availability</th><td class="{{class .Availability}}">{{label .Availability}}</td></tr>
{{if .Activity}}<tr><th>Activity</th><td>{{.Activity}}</td></tr>{{end}}
<tr><th>Last poll</th><td>{{ago .Now .LastPoll}}</td></tr>
<tr><th>Stable polls</th><td>{{.StableCount}}</td></tr>
</table>

<h2>Power</h2>
<table>
<tr><th>Battery</th><td>{{printf "%.2f" .Battery.Volts}}V ({{.Battery.Percent}}%) {{.Battery.Level}}</td></tr>
<tr><th>Boot path</th><td>{{.Path}}</td></tr>
<tr><th>Reset reason</th><td>{{.ResetReason}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td>{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Wi-Fi</th><td>{{.Network.SSID}} on {{.Network.Interface}}</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Device</th><td>{{.Config.DeviceID}}</td></tr>
<tr><th>Platform</th><td>{{.Config.Platform}}</td></tr>
<tr><th>Poll interval</th><td>{{.Config.PollInterval}}</td></tr>
<tr><th>Office hours</th><td>{{.Config.OfficeHours}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
