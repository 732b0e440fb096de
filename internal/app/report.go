package app

import (
	"log"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/battery"
	"github.com/thefoeyouknow/Teams-Pod/internal/mqtt"
	"github.com/thefoeyouknow/Teams-Pod/internal/presence"
	"github.com/thefoeyouknow/Teams-Pod/internal/status"
)

// Reporter mirrors core activity to the status page and MQTT. It never
// affects state.
type Reporter interface {
	Boot(path, resetReason string)
	State(state State, title, detail string)
	Presence(p presence.State, path string, stable int, changed bool)
	Battery(r battery.Reading)
	System(event, reason string)
}

type nopReporter struct{}

func (nopReporter) Boot(string, string)                        {}
func (nopReporter) State(State, string, string)                {}
func (nopReporter) Presence(presence.State, string, int, bool) {}
func (nopReporter) Battery(battery.Reading)                    {}
func (nopReporter) System(string, string)                      {}

// NetworkInfo reports the link for status snapshots.
type NetworkInfo interface {
	Info() status.NetworkInfo
}

// StatusReporter feeds a status tracker and an optional MQTT publisher.
type StatusReporter struct {
	Tracker   *status.Tracker
	Publisher mqtt.Publisher
	Net       NetworkInfo

	now func() time.Time
}

// NewStatusReporter returns a reporter over tracker and pub. Either may be nil.
func NewStatusReporter(tracker *status.Tracker, pub mqtt.Publisher, net NetworkInfo) *StatusReporter {
	return &StatusReporter{Tracker: tracker, Publisher: pub, Net: net, now: time.Now}
}

// Boot records how the device started.
func (r *StatusReporter) Boot(path, resetReason string) {
	if r.Tracker != nil {
		r.Tracker.SetBoot(path, resetReason)
	}
}

// State records a state transition.
func (r *StatusReporter) State(s State, title, detail string) {
	if r.Tracker == nil {
		return
	}
	r.Tracker.SetState(string(s), title, detail)
	r.refreshNetwork()
}

// Presence records a poll and publishes it when it changed.
func (r *StatusReporter) Presence(p presence.State, path string, stable int, changed bool) {
	now := r.now()
	if r.Tracker != nil {
		r.Tracker.SetPresence(p.Availability, p.Activity, now, stable)
	}
	if !changed || r.Publisher == nil {
		return
	}
	err := r.Publisher.PublishPresence(mqtt.PresenceEvent{
		Timestamp:    now,
		Availability: p.Availability,
		Activity:     p.Activity,
		Path:         path,
	})
	if err != nil {
		log.Printf("report: presence publish: %v", err)
	}
}

// Battery records a battery reading.
func (r *StatusReporter) Battery(b battery.Reading) {
	if r.Tracker != nil {
		r.Tracker.SetBattery(b)
	}
}

// System publishes a lifecycle event, with a status snapshot when a
// tracker is present.
func (r *StatusReporter) System(event, reason string) {
	if r.Publisher == nil {
		return
	}
	ev := mqtt.SystemEvent{Timestamp: r.now(), Event: event, Reason: reason, Retained: true}
	if r.Tracker != nil {
		r.refreshNetwork()
		if cs, ok := r.Publisher.(mqtt.ConnectionStatus); ok {
			r.Tracker.SetMQTTConnected(cs.IsConnected())
		}
		snap := r.Tracker.Snapshot()
		ev.Timestamp = snap.Now
		ev.RawPayload = status.FormatStatusEvent(snap, event, reason)
	}
	if err := r.Publisher.PublishSystem(ev); err != nil {
		log.Printf("report: %s publish: %v", event, err)
		return
	}
	log.Printf("report: published %s", event)
}

func (r *StatusReporter) refreshNetwork() {
	if r.Net == nil {
		return
	}
	info := r.Net.Info()
	r.Tracker.SetNetwork(&info)
}
