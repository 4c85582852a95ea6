package lan

import (
	"errors"
	"strings"
	"testing"
)

func TestParseValid(t *testing.T) {
	r := NewResolver(9317)

	tests := []struct {
		text string
		ip   string
	}{
		{"192.168.1.5", "192.168.1.5"},
		{"10.0.0.1", "10.0.0.1"},
		{"255.255.255.255", "255.255.255.255"},
		{"01.02.03.04", "01.02.03.04"}, // leading zeros allowed by the pattern
		{"192.168.1.5:9317", "192.168.1.5"},
		{"lan|192.168.1.5:9317", "192.168.1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res, err := r.Parse(tt.text)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.text, err)
			}
			if res.IP != tt.ip {
				t.Errorf("Parse(%q).IP = %q, want %q", tt.text, res.IP, tt.ip)
			}
			if res.Port != 9317 {
				t.Errorf("Parse(%q).Port = %d, want 9317", tt.text, res.Port)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	r := NewResolver(9317)

	for _, text := range []string{
		"300.1.1.1",
		"not-an-ip",
		"192.168.1",
		"192.168.1.5.6",
		"192.168.1.5:",
		"",
	} {
		t.Run(text, func(t *testing.T) {
			if _, err := r.Parse(text); !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("Parse(%q) error = %v, want ErrInvalidAddress", text, err)
			}
		})
	}
}

func TestParseNonDefaultPortIgnored(t *testing.T) {
	r := NewResolver(9317)

	res, err := r.Parse("192.168.1.5:9999")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if res.IP != "192.168.1.5" {
		t.Errorf("IP = %q, want 192.168.1.5", res.IP)
	}
	if res.Port != 9317 {
		t.Errorf("Port = %d, want the fixed default 9317", res.Port)
	}
	if !res.PortIgnored || res.IgnoredPort != 9999 {
		t.Errorf("IgnoredPort = %d (flagged %v), want 9999 flagged", res.IgnoredPort, res.PortIgnored)
	}
}

func TestParsePortZeroIgnored(t *testing.T) {
	r := NewResolver(9317)

	res, err := r.Parse("192.168.1.5:0")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if res.Port != 9317 {
		t.Errorf("Port = %d, want the fixed default 9317", res.Port)
	}
	if !res.PortIgnored || res.IgnoredPort != 0 {
		t.Errorf("IgnoredPort = %d (flagged %v), want 0 flagged", res.IgnoredPort, res.PortIgnored)
	}
}

func TestParseDefaultPortNotFlagged(t *testing.T) {
	r := NewResolver(9317)

	res, err := r.Parse("192.168.1.5:9317")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if res.PortIgnored {
		t.Errorf("PortIgnored = true for the default port, want false")
	}
}

func TestResolveAmbiguous(t *testing.T) {
	r := NewResolver(9317)
	labels := []string{"lan|192.168.1.5:9317"}

	res := r.Resolve("192.168.1.5", labels)
	if res.Outcome != NeedsChoice {
		t.Fatalf("Outcome = %v, want NeedsChoice", res.Outcome)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("Candidates = %v, want exactly two", res.Candidates)
	}
	if res.Candidates[0] != "lan|192.168.1.5:9317" {
		t.Errorf("Candidates[0] = %q, want the saved record", res.Candidates[0])
	}
	if res.Candidates[1] != "192.168.1.5" {
		t.Errorf("Candidates[1] = %q, want the raw typed text", res.Candidates[1])
	}
}

func TestResolveExactLabelNotAmbiguous(t *testing.T) {
	r := NewResolver(9317)
	labels := []string{"lan|192.168.1.5:9317"}

	res := r.Resolve("192.168.1.5:9317", labels)
	if res.Outcome != Resolved {
		t.Fatalf("Outcome = %v, want Resolved", res.Outcome)
	}
	if res.Resolution.IP != "192.168.1.5" {
		t.Errorf("IP = %q, want 192.168.1.5", res.Resolution.IP)
	}
}

func TestResolveNoOverlap(t *testing.T) {
	r := NewResolver(9317)
	labels := []string{"lan|10.0.0.7:9317"}

	res := r.Resolve("192.168.1.5", labels)
	if res.Outcome != Resolved {
		t.Fatalf("Outcome = %v, want Resolved", res.Outcome)
	}
}

func TestResolveInvalid(t *testing.T) {
	r := NewResolver(9317)

	if res := r.Resolve("not-an-ip", nil); res.Outcome != Invalid {
		t.Errorf("Outcome = %v, want Invalid", res.Outcome)
	}
}

func TestDiagnostics(t *testing.T) {
	msg := Diagnostics("192.168.1.5", 9317)

	for _, want := range []string{"192.168.1.5:9317", "subnet", "server mode", "firewall", "ADB"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Diagnostics() missing %q:\n%s", want, msg)
		}
	}
}
