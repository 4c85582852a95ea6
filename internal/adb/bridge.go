// Package adb establishes device sessions through the Android debug bridge.
package adb

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrBridgeUnavailable means the bridge tool could not be invoked at
	// all. Recoverable: the user is pointed at the install docs and
	// enumeration yields no devices.
	ErrBridgeUnavailable = errors.New("adb not installed or not configured")

	// ErrForwardFailed means the tool rejected a port forward. The raw tool
	// output rides along in the wrapping error.
	ErrForwardFailed = errors.New("port forward setup failed")

	// ErrConnectTimeout means the handshake did not complete in time. The
	// underlying attempt is still in flight; only the diagnostic ran.
	ErrConnectTimeout = errors.New("connection attempt timed out")
)

// InstallHelpURL is shown alongside ErrBridgeUnavailable notifications.
const InstallHelpURL = "https://developer.android.com/tools/adb"

// debugServerURI is the content provider queried when a handshake times out.
const debugServerURI = "content://io.devlink.agent.provider/debug-server"

// DeviceDescriptor is one bridge-enumerated device.
type DeviceDescriptor struct {
	ID    string
	Brand string
	Model string
	// Name is the derived display string "{brand} {model} ({id})".
	Name  string
	Props map[string]string
}

// runner executes the bridge tool and returns combined stdout+stderr.
// Injectable for tests.
type runner func(ctx context.Context, name string, args ...string) (string, error)

func execRunner(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

// Bridge wraps the bridge tool binary.
type Bridge struct {
	path string
	run  runner
}

// NewBridge wraps the tool at path ("adb" to use PATH lookup).
func NewBridge(path string) *Bridge {
	return &Bridge{path: path, run: execRunner}
}

// Devices enumerates bridge-visible devices, keyed by display name. Each
// device costs one supplementary shell call for the brand property.
func (b *Bridge) Devices(ctx context.Context) (map[string]*DeviceDescriptor, error) {
	out, err := b.run(ctx, b.path, "devices", "-l")
	if err != nil {
		if spawnFailed(err) {
			return nil, fmt.Errorf("%w (see %s)", ErrBridgeUnavailable, InstallHelpURL)
		}
		return nil, fmt.Errorf("adb devices: %w: %s", err, strings.TrimSpace(out))
	}

	devices := make(map[string]*DeviceDescriptor)
	for _, line := range strings.Split(out, "\n") {
		desc, ok := parseDeviceLine(line)
		if !ok {
			continue
		}

		brand, err := b.getprop(ctx, desc.ID, "ro.product.brand")
		if err == nil {
			desc.Brand = brand
		}
		desc.Name = displayName(desc)
		devices[desc.Name] = desc
	}

	return devices, nil
}

// getprop reads one system property from a device.
func (b *Bridge) getprop(ctx context.Context, id, prop string) (string, error) {
	out, err := b.run(ctx, b.path, "-s", id, "shell", "getprop", prop)
	if err != nil {
		return "", fmt.Errorf("getprop %s: %w", prop, err)
	}
	return strings.TrimSpace(out), nil
}

// Forward creates one TCP forward from a local port to a device port.
func (b *Bridge) Forward(ctx context.Context, id string, local, remote int) error {
	out, err := b.run(ctx, b.path, "-s", id,
		"forward", "tcp:"+strconv.Itoa(local), "tcp:"+strconv.Itoa(remote))
	if err != nil {
		return fmt.Errorf("%w: tcp:%d -> tcp:%d: %s", ErrForwardFailed, local, remote, strings.TrimSpace(out))
	}
	return nil
}

// QueryDebugServer runs the diagnostic content-provider query. The combined
// output is meaningful even when the tool exits non-zero, so it is returned
// in both cases.
func (b *Bridge) QueryDebugServer(ctx context.Context, id string) string {
	out, _ := b.run(ctx, b.path, "-s", id, "shell", "content", "query", "--uri", debugServerURI)
	return out
}

// spawnFailed distinguishes "the tool is not there" from "the tool ran and
// complained".
func spawnFailed(err error) bool {
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var execErr *exec.Error
	return errors.As(err, &execErr)
}

// propMarker locates "key:" markers inside the property list of an
// enumeration line.
var propMarker = regexp.MustCompile(`(\S+):`)

// parseDeviceLine parses one "<id> device <key:value ...>" line. Lines in any
// other shape (the header, offline or unauthorized devices, blanks) are
// skipped, not errored.
func parseDeviceLine(line string) (*DeviceDescriptor, bool) {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[1] != "device" {
		return nil, false
	}

	desc := &DeviceDescriptor{
		ID:    fields[0],
		Props: make(map[string]string),
	}

	rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
	rest = strings.TrimSpace(strings.TrimPrefix(rest, "device"))

	// Each value runs from its marker up to the next marker, trimmed back to
	// the last preceding space. Values may themselves contain colons (e.g.
	// "usb:1-1.2"), which is why the scan is marker-based rather than a
	// field-by-field split.
	markers := propMarker.FindAllStringSubmatchIndex(rest, -1)
	for i, m := range markers {
		key := rest[m[2]:m[3]]
		valStart := m[1]
		valEnd := len(rest)
		if i+1 < len(markers) {
			valEnd = markers[i+1][0]
		}
		desc.Props[key] = strings.TrimSpace(rest[valStart:valEnd])
	}

	desc.Model = desc.Props["model"]
	return desc, true
}

// displayName composes "{brand} {model} ({id})", tolerating missing parts.
func displayName(d *DeviceDescriptor) string {
	parts := []string{}
	if d.Brand != "" {
		parts = append(parts, d.Brand)
	}
	if d.Model != "" {
		parts = append(parts, d.Model)
	}
	parts = append(parts, "("+d.ID+")")
	return strings.Join(parts, " ")
}
