package adb

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"
)

func TestParseDeviceLine(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		id    string
		model string
		props map[string]string
		ok    bool
	}{
		{
			name:  "usb device",
			line:  "abc123 device usb:1-1.2 product:cheetah model:Pixel_7_Pro device:cheetah transport_id:5",
			id:    "abc123",
			model: "Pixel_7_Pro",
			props: map[string]string{
				"usb":          "1-1.2",
				"product":      "cheetah",
				"model":        "Pixel_7_Pro",
				"device":       "cheetah",
				"transport_id": "5",
			},
			ok: true,
		},
		{
			name:  "wireless device id with colon",
			line:  "192.168.1.20:5555 device product:lancelot model:M2004J19C device:lancelot transport_id:2",
			id:    "192.168.1.20:5555",
			model: "M2004J19C",
			ok:    true,
		},
		{
			name: "header line",
			line: "List of devices attached",
			ok:   false,
		},
		{
			name: "offline device",
			line: "abc123 offline usb:1-1.2",
			ok:   false,
		},
		{
			name: "unauthorized device",
			line: "abc123 unauthorized usb:1-1.2",
			ok:   false,
		},
		{
			name: "blank",
			line: "   ",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, ok := parseDeviceLine(tt.line)
			if ok != tt.ok {
				t.Fatalf("parseDeviceLine(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			}
			if !ok {
				return
			}
			if desc.ID != tt.id {
				t.Errorf("ID = %q, want %q", desc.ID, tt.id)
			}
			if desc.Model != tt.model {
				t.Errorf("Model = %q, want %q", desc.Model, tt.model)
			}
			for k, want := range tt.props {
				if got := desc.Props[k]; got != want {
					t.Errorf("Props[%q] = %q, want %q", k, got, want)
				}
			}
		})
	}
}

func TestDevicesEnumeration(t *testing.T) {
	b := NewBridge("adb")
	b.run = func(ctx context.Context, name string, args ...string) (string, error) {
		joined := strings.Join(args, " ")
		switch {
		case joined == "devices -l":
			return "List of devices attached\n" +
				"abc123 device usb:1-1.2 product:cheetah model:Pixel_7_Pro device:cheetah\n" +
				"* daemon started successfully\n" +
				"def456 unauthorized usb:1-1.3\n", nil
		case strings.Contains(joined, "getprop ro.product.brand"):
			return "google\n", nil
		}
		return "", fmt.Errorf("unexpected invocation: %s", joined)
	}

	devices, err := b.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices() error: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("Devices() returned %d devices, want 1", len(devices))
	}

	desc, ok := devices["google Pixel_7_Pro (abc123)"]
	if !ok {
		t.Fatalf("display name key missing, got keys %v", keys(devices))
	}
	if desc.Brand != "google" || desc.Model != "Pixel_7_Pro" || desc.ID != "abc123" {
		t.Errorf("descriptor = %+v", desc)
	}
}

func keys(m map[string]*DeviceDescriptor) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestDevicesBridgeUnavailable(t *testing.T) {
	b := NewBridge("adb")
	b.run = func(ctx context.Context, name string, args ...string) (string, error) {
		return "", &exec.Error{Name: "adb", Err: exec.ErrNotFound}
	}

	_, err := b.Devices(context.Background())
	if !errors.Is(err, ErrBridgeUnavailable) {
		t.Errorf("Devices() error = %v, want ErrBridgeUnavailable", err)
	}
	if !strings.Contains(err.Error(), InstallHelpURL) {
		t.Errorf("error %q missing the help link", err)
	}
}

func TestForwardFailureSurfacesRawOutput(t *testing.T) {
	b := NewBridge("adb")
	b.run = func(ctx context.Context, name string, args ...string) (string, error) {
		return "error: device 'abc123' not found", fmt.Errorf("exit status 1")
	}

	err := b.Forward(context.Background(), "abc123", 41000, 9317)
	if !errors.Is(err, ErrForwardFailed) {
		t.Fatalf("Forward() error = %v, want ErrForwardFailed", err)
	}
	if !strings.Contains(err.Error(), "device 'abc123' not found") {
		t.Errorf("error %q missing the raw tool output", err)
	}
}
