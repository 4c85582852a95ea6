// Package dispatch maps inbound command names onto editor actions.
//
// The command set is closed: names outside the allow-list produce a
// user-visible notice and execute nothing.
package dispatch

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/devlink-io/devlink/internal/logger"
)

// ErrUnknownCommand marks a command name outside the allow-list.
var ErrUnknownCommand = errors.New("unknown command")

// Command names accepted from devices.
const (
	CmdRun          = "run"
	CmdStop         = "stop"
	CmdStopAll      = "stopAll"
	CmdRerun        = "rerun"
	CmdSave         = "save"
	CmdRunProject   = "runProject"
	CmdSaveProject  = "saveProject"
	CmdRerunProject = "rerunProject"
)

// allowed is the closed set of dispatchable command names.
var allowed = map[string]struct{}{
	CmdRun:          {},
	CmdStop:         {},
	CmdStopAll:      {},
	CmdRerun:        {},
	CmdSave:         {},
	CmdRunProject:   {},
	CmdSaveProject:  {},
	CmdRerunProject: {},
}

// Handler executes one named action with the forwarded path argument.
type Handler func(path string) error

// Dispatcher validates command names against the allow-list and invokes the
// registered handler.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[string]Handler
	notify   func(msg string)
}

// New creates a dispatcher. notify surfaces the "unknown command" notice.
func New(notify func(msg string)) *Dispatcher {
	if notify == nil {
		notify = func(string) {}
	}
	return &Dispatcher{
		handlers: make(map[string]Handler),
		notify:   notify,
	}
}

// Register binds a handler to an allow-listed command name.
func (d *Dispatcher) Register(name string, h Handler) error {
	if _, ok := allowed[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
	return nil
}

// Dispatch runs the handler for cmd with path forwarded verbatim. An
// unrecognized or unregistered name produces the notice and executes nothing.
func (d *Dispatcher) Dispatch(cmd, path string) error {
	d.mu.Lock()
	h, ok := d.handlers[cmd]
	d.mu.Unlock()

	if _, known := allowed[cmd]; !known || !ok {
		d.notify(fmt.Sprintf("Unknown command %q", cmd))
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}

	logger.Component("dispatch").Debug().Str("cmd", cmd).Str("path", path).Msg("dispatching")
	return h(path)
}

// CommandSender is the registry slice the standard handler set needs.
type CommandSender interface {
	SendCommand(name string, payload map[string]string) error
}

// NewScriptDispatcher wires the standard device-command handler set: every
// action forwards to the attached devices through sender.
//
// rerunProject is special: it requests stopAll first and only issues the
// project run after rerunDelay, giving prior execution time to terminate.
func NewScriptDispatcher(sender CommandSender, notify func(msg string), rerunDelay time.Duration) *Dispatcher {
	d := New(notify)

	forward := func(name string) Handler {
		return func(path string) error {
			return sender.SendCommand(name, map[string]string{"path": path})
		}
	}

	d.Register(CmdRun, forward(CmdRun))
	d.Register(CmdStop, forward(CmdStop))
	d.Register(CmdStopAll, func(string) error {
		return sender.SendCommand(CmdStopAll, nil)
	})
	d.Register(CmdRerun, forward(CmdRerun))
	d.Register(CmdSave, forward(CmdSave))
	d.Register(CmdRunProject, forward(CmdRunProject))
	d.Register(CmdSaveProject, forward(CmdSaveProject))
	d.Register(CmdRerunProject, func(path string) error {
		if err := sender.SendCommand(CmdStopAll, nil); err != nil {
			return err
		}
		time.AfterFunc(rerunDelay, func() {
			if err := sender.SendCommand(CmdRunProject, map[string]string{"path": path}); err != nil {
				logger.Component("dispatch").Error().Err(err).Msg("delayed project run failed")
			}
		})
		return nil
	})

	return d
}
