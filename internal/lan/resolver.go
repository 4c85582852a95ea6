// Package lan validates and disambiguates LAN addresses for device sessions.
package lan

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/devlink-io/devlink/internal/history"
)

// ErrInvalidAddress marks text that does not parse as a dotted-quad address.
var ErrInvalidAddress = errors.New("invalid address")

// addressPattern accepts four dot-separated groups in 0-255, optionally
// followed by a port. Leading-zero forms like "01" pass, matching the dotted
// quad convention used by the device picker.
var addressPattern = regexp.MustCompile(`^((25[0-5]|2[0-4]\d|[01]?\d\d?)\.){3}(25[0-5]|2[0-4]\d|[01]?\d\d?)(:\d+)?$`)

// Resolution is a validated connect target. The transport always connects on
// the fixed device port; a differing typed port is recorded as ignored.
// PortIgnored distinguishes a typed port 0 from no port at all.
type Resolution struct {
	IP          string
	Port        int
	IgnoredPort int
	PortIgnored bool
}

// Outcome tags the result of a resolution pipeline step.
type Outcome int

const (
	// Resolved means the text validated and a connect attempt may proceed.
	Resolved Outcome = iota
	// Invalid means validation failed; no attempt is made.
	Invalid
	// NeedsChoice means the typed text overlaps a saved record and the user
	// must pick between exactly two candidates.
	NeedsChoice
)

// Result is the tagged output of Resolve.
type Result struct {
	Outcome    Outcome
	Resolution Resolution
	// Candidates holds the two disambiguation choices when Outcome is
	// NeedsChoice: the original saved record's label first, then a fresh
	// "optional" entry carrying the raw typed text.
	Candidates []string
}

// Resolver validates typed or recorded addresses against the known history.
type Resolver struct {
	devicePort int
}

// NewResolver creates a resolver bound to the fixed device client port.
func NewResolver(devicePort int) *Resolver {
	return &Resolver{devicePort: devicePort}
}

// Resolve validates text and checks it against knownLabels for ambiguity.
// Labels carry the display prefix; comparison strips it first.
func (r *Resolver) Resolve(text string, knownLabels []string) Result {
	text = strings.TrimSpace(text)

	if label, ok := r.matchKnown(text, knownLabels); ok {
		return Result{
			Outcome:    NeedsChoice,
			Candidates: []string{label, text},
		}
	}

	res, err := r.Parse(text)
	if err != nil {
		return Result{Outcome: Invalid}
	}
	return Result{Outcome: Resolved, Resolution: res}
}

// Parse validates text without consulting the history.
func (r *Resolver) Parse(text string) (Resolution, error) {
	text = strings.TrimPrefix(strings.TrimSpace(text), history.DisplayPrefix)

	if !addressPattern.MatchString(text) {
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidAddress, text)
	}

	res := Resolution{Port: r.devicePort}

	if i := strings.IndexByte(text, ':'); i >= 0 {
		port, err := strconv.Atoi(text[i+1:])
		if err != nil {
			return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidAddress, text)
		}
		if port != r.devicePort {
			res.IgnoredPort = port
			res.PortIgnored = true
		}
		text = text[:i]
	}

	res.IP = text
	return res, nil
}

// matchKnown reports whether text is a strict substring of a known record's
// label (prefix-stripped). An exact match is not ambiguous.
func (r *Resolver) matchKnown(text string, knownLabels []string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, label := range knownLabels {
		stripped := strings.TrimPrefix(label, history.DisplayPrefix)
		if text != stripped && strings.Contains(stripped, text) {
			return label, true
		}
	}
	return "", false
}

// Diagnostics renders the multi-point failure guidance shown when a LAN
// connect attempt fails at the transport level.
func Diagnostics(ip string, port int) string {
	return strings.Join([]string{
		fmt.Sprintf("Could not reach %s:%d. Check the following:", ip, port),
		"  1. The device and this computer are on the same subnet.",
		"  2. The device agent is running in server mode.",
		fmt.Sprintf("  3. No firewall is blocking TCP port %d.", port),
		"  4. If the device is attached over USB, try an ADB connection instead.",
	}, "\n")
}
