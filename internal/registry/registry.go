// Package registry defines the device registry the connection subsystem
// drives. The core depends only on the Registry interface; the message
// framing of the script-execution protocol lives behind it.
package registry

import (
	"context"
	"sync"
	"time"
)

// SessionType tags how a device session was established.
type SessionType string

const (
	// SessionClientOverLAN: the device dialed into the editor over the LAN.
	SessionClientOverLAN SessionType = "client-over-lan"
	// SessionServerOverLAN: the editor dialed a device listening on the LAN.
	SessionServerOverLAN SessionType = "server-over-lan"
	// SessionServerOverADB: the editor dialed a device through forwarded
	// ADB ports.
	SessionServerOverADB SessionType = "server-over-adb"
)

// Device is one attached script-execution device as the registry sees it.
type Device struct {
	ID      string
	IP      string
	Name    string
	Session SessionType
	Since   time.Time
}

// Registry is the external collaborator that owns transport sessions.
type Registry interface {
	// ConnectTo opens a session to host:port and records it under tag.
	// deviceID carries the ADB serial when the session rides a forward.
	ConnectTo(ctx context.Context, host string, port int, tag SessionType, deviceID string) error

	// SendCommand sends a named command with a flat payload to every
	// attached device.
	SendCommand(name string, payload map[string]string) error

	// Disconnect tears down all sessions.
	Disconnect() error

	// Event subscriptions. Callbacks run on the registry's own goroutines.
	OnNewDevice(fn func(Device))
	OnDetachDevice(fn func(Device))
	OnLog(fn func(deviceID, line string))
}

// Events fans registry lifecycle events out to subscribers. Embedded by
// concrete registry implementations.
type Events struct {
	mu       sync.Mutex
	onNew    []func(Device)
	onDetach []func(Device)
	onLog    []func(string, string)
}

func (e *Events) OnNewDevice(fn func(Device)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onNew = append(e.onNew, fn)
}

func (e *Events) OnDetachDevice(fn func(Device)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDetach = append(e.onDetach, fn)
}

func (e *Events) OnLog(fn func(deviceID, line string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onLog = append(e.onLog, fn)
}

// EmitNew, EmitDetach and EmitLog are for registry implementations.

func (e *Events) EmitNew(d Device) {
	e.mu.Lock()
	fns := append([]func(Device){}, e.onNew...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(d)
	}
}

func (e *Events) EmitDetach(d Device) {
	e.mu.Lock()
	fns := append([]func(Device){}, e.onDetach...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(d)
	}
}

func (e *Events) EmitLog(deviceID, line string) {
	e.mu.Lock()
	fns := append([]func(string, string){}, e.onLog...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(deviceID, line)
	}
}
