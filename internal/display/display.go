// Package display forwards acquisition events to live viewers over MQTT and
// websockets.
package display

import (
	"forcetrial/internal/acquisition"
)

// Message kinds.
const (
	KindProgress = "progress"
	KindWindow   = "window"
)

// Message is the JSON envelope sent to websocket clients.
type Message struct {
	Kind     string                `json:"kind"`
	Progress *acquisition.Progress `json:"progress,omitempty"`
	Window   *acquisition.Window   `json:"window,omitempty"`
}

// Fanout delivers every event to each observer in order.
type Fanout []acquisition.Observer

func (f Fanout) OnProgress(p acquisition.Progress) {
	for _, o := range f {
		o.OnProgress(p)
	}
}

func (f Fanout) OnDisplay(w acquisition.Window) {
	for _, o := range f {
		o.OnDisplay(w)
	}
}
