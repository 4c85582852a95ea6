// Package controller ties the connection subsystem together behind the
// editor-facing UI collaborator.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/devlink-io/devlink/internal/adb"
	"github.com/devlink-io/devlink/internal/config"
	"github.com/devlink-io/devlink/internal/dispatch"
	"github.com/devlink-io/devlink/internal/ingest"
	"github.com/devlink-io/devlink/internal/lan"
	"github.com/devlink-io/devlink/internal/logger"
	"github.com/devlink-io/devlink/internal/registry"
	"github.com/devlink-io/devlink/internal/session"
)

// ErrCancelled marks a pipeline the user abandoned at a prompt.
var ErrCancelled = errors.New("cancelled")

// UI is the interactive collaborator: notifications, warnings and prompts.
// The picker/menu implementation is external to this subsystem.
type UI interface {
	Notify(msg string)
	Warn(msg string)
	// Confirm asks a discrete yes/no question.
	Confirm(prompt string) bool
	// Pick asks the user to choose one option; ok is false on cancel.
	Pick(prompt string, options []string) (index int, ok bool)
}

// Controller drives connection establishment and inbound command dispatch.
type Controller struct {
	cfg         *config.Config
	sessions    *session.Manager
	reg         registry.Registry
	resolver    *lan.Resolver
	establisher *adb.Establisher
	dispatcher  *dispatch.Dispatcher
	ingest      *ingest.Server
	ui          UI
}

// New wires a controller from its collaborators.
func New(cfg *config.Config, reg registry.Registry, ui UI) *Controller {
	sessions := session.NewManager(session.ManagerConfig{
		HistoryPath: cfg.HistoryPath,
		DevicePort:  cfg.DevicePort,
		LeaseWindow: cfg.LeaseWindow,
		Registry:    reg,
	})

	c := &Controller{
		cfg:      cfg,
		sessions: sessions,
		reg:      reg,
		resolver: lan.NewResolver(cfg.DevicePort),
		ui:       ui,
	}

	c.establisher = adb.NewEstablisher(adb.EstablisherConfig{
		Bridge:           adb.NewBridge(cfg.AdbPath),
		Ports:            sessions.Ports(),
		Registry:         reg,
		DevicePort:       cfg.DevicePort,
		BridgePort:       cfg.BridgePort,
		HandshakeTimeout: cfg.ConnectTimeout,
		Warn:             ui.Warn,
	})

	c.dispatcher = dispatch.NewScriptDispatcher(reg, ui.Notify, cfg.RerunDelay)

	c.ingest = ingest.NewServer(cfg.IngestPort)
	c.ingest.OnReady(func(port int) {
		logger.Component("controller").Info().Int("port", port).Msg("ingest ready")
	})
	c.ingest.OnError(func(err error) {
		ui.Notify(fmt.Sprintf("Command server failed: %v", err))
	})
	c.ingest.OnExec(c.handleExec)

	return c
}

// Init starts the owned state and the ingest listener.
func (c *Controller) Init(ctx context.Context) error {
	c.sessions.Init()
	return c.ingest.Start(ctx)
}

// Teardown stops the ingest listener and closes all sessions.
func (c *Controller) Teardown(ctx context.Context) {
	if err := c.ingest.Stop(ctx); err != nil {
		logger.Component("controller").Error().Err(err).Msg("ingest stop")
	}
	c.sessions.Teardown()
}

// Sessions exposes the shared session manager.
func (c *Controller) Sessions() *session.Manager { return c.sessions }

// ConnectLAN resolves typed or recorded text and attempts a LAN session.
// The ambiguous case re-prompts with exactly two choices and dials the
// chosen text without running the resolution again.
func (c *Controller) ConnectLAN(ctx context.Context, text string) error {
	res := c.resolver.Resolve(text, c.sessions.History().Labels())

	switch res.Outcome {
	case lan.Invalid:
		c.ui.Notify(fmt.Sprintf("%q is not a valid address", text))
		return fmt.Errorf("%w: %q", lan.ErrInvalidAddress, text)

	case lan.NeedsChoice:
		idx, ok := c.ui.Pick("Address matches a saved device. Connect to:", res.Candidates)
		if !ok {
			return ErrCancelled
		}
		// The chosen text resolves directly: the ambiguity check must not
		// run again or the raw typed candidate would re-prompt forever.
		target, err := c.resolver.Parse(res.Candidates[idx])
		if err != nil {
			c.ui.Notify(fmt.Sprintf("%q is not a valid address", res.Candidates[idx]))
			return err
		}
		return c.dialLAN(ctx, target)

	default:
		return c.dialLAN(ctx, res.Resolution)
	}
}

// dialLAN attempts one validated, unambiguous LAN session.
func (c *Controller) dialLAN(ctx context.Context, target lan.Resolution) error {
	if target.PortIgnored {
		c.ui.Warn(fmt.Sprintf("Port %d was ignored; the transport always connects on %d.",
			target.IgnoredPort, target.Port))
	}

	if err := c.reg.ConnectTo(ctx, target.IP, target.Port, registry.SessionServerOverLAN, ""); err != nil {
		c.ui.Notify(lan.Diagnostics(target.IP, target.Port))
		return err
	}

	c.ui.Notify(fmt.Sprintf("Connected to %s:%d", target.IP, target.Port))
	return nil
}

// ConnectADB enumerates bridge-visible devices, lets the user pick one and
// establishes a forwarded session.
func (c *Controller) ConnectADB(ctx context.Context) error {
	devices, err := c.establisher.Enumerate(ctx)
	if err != nil {
		if errors.Is(err, adb.ErrBridgeUnavailable) {
			// Recoverable: point at the install docs, no devices to offer.
			c.ui.Notify(err.Error())
			return nil
		}
		return err
	}

	if len(devices) == 0 {
		c.ui.Notify("No ADB devices found.")
		return nil
	}

	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	sort.Strings(names)

	idx, ok := c.ui.Pick("Connect to device:", names)
	if !ok {
		return ErrCancelled
	}

	dev := devices[names[idx]]
	if err := c.establisher.Connect(ctx, dev); err != nil {
		if errors.Is(err, adb.ErrConnectTimeout) {
			// The diagnostic already spoke; the attempt is still in flight.
			return err
		}
		c.ui.Notify(err.Error())
		return err
	}

	c.ui.Notify(fmt.Sprintf("Connected to %s", dev.Name))
	return nil
}

// ClearHistory empties the address history after a yes/no confirmation.
func (c *Controller) ClearHistory() error {
	if !c.ui.Confirm("Clear all recorded device addresses?") {
		return ErrCancelled
	}
	return c.sessions.History().Clear()
}

// handleExec receives one inbound /exec event and dispatches it against the
// command allow-list. Actions need at least one attached session.
func (c *Controller) handleExec(ev ingest.ExecEvent) {
	if err := c.sessions.RequireDevice(); err != nil {
		c.ui.Notify("No device connected.")
		return
	}

	if err := c.dispatcher.Dispatch(ev.Cmd, ev.Path); err != nil {
		logger.Component("controller").Debug().
			Err(err).
			Str("cmd", ev.Cmd).
			Msg("dispatch rejected")
	}
}
