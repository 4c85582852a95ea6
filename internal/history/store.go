// Package history keeps the persisted list of previously-seen LAN addresses.
package history

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DisplayPrefix is prepended to records for presentation only. It is stripped
// before any equality or storage comparison.
const DisplayPrefix = "lan|"

// Record is one previously-seen device address.
type Record struct {
	IP       string
	LastSeen time.Time
}

// persistedState is the on-disk shape: an ordered list of "ip|timestampMillis"
// strings, most recent first.
type persistedState struct {
	Version   int      `json:"version"`
	Addresses []string `json:"addresses,omitempty"`
	UpdatedAt string   `json:"updated_at"`
}

// Store is the address history backed by a JSON state file. All mutation is
// serialized internally and persisted with an atomic replace-on-write.
type Store struct {
	mu         sync.Mutex
	path       string
	devicePort int
	records    []Record

	now func() time.Time
}

// NewStore opens the history at path. A missing or unreadable file starts an
// empty history. Labels render with devicePort attached.
func NewStore(path string, devicePort int) *Store {
	s := &Store{
		path:       path,
		devicePort: devicePort,
		now:        time.Now,
	}
	s.load()
	return s
}

// Records returns a copy of the history, most recent first.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// IPs returns just the address values, most recent first.
func (s *Store) IPs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.IP
	}
	return out
}

// Labels returns the display form of each record:
// DisplayPrefix + ip + ":" + devicePort.
func (s *Store) Labels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = DisplayPrefix + net.JoinHostPort(r.IP, strconv.Itoa(s.devicePort))
	}
	return out
}

// Len reports how many records are held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Replace overwrites the history with newList. Entries may be prefixed or
// bare, with or without a port or timestamp suffix. Duplicate addresses keep
// the first occurrence's position; blacklisted addresses are discarded.
func (s *Store) Replace(newList []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(newList))
	records := make([]Record, 0, len(newList))

	for _, entry := range newList {
		ip, ts := parseEntry(entry)
		if ip == "" || Blacklisted(ip) {
			continue
		}
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}

		if ts.IsZero() {
			if prev, ok := s.findLocked(ip); ok {
				ts = prev.LastSeen
			} else {
				ts = s.now()
			}
		}
		records = append(records, Record{IP: ip, LastSeen: ts})
	}

	s.records = records
	return s.saveLocked()
}

// Touch relocates ip to the front with a fresh timestamp, or prepends it when
// unseen. Blacklisted addresses are ignored. Called when a device attaches.
func (s *Store) Touch(ip string) error {
	if Blacklisted(ip) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.records {
		if r.IP == ip {
			s.records = append(s.records[:i], s.records[i+1:]...)
			break
		}
	}
	s.records = append([]Record{{IP: ip, LastSeen: s.now()}}, s.records...)
	return s.saveLocked()
}

// Clear empties the history unconditionally. The caller is responsible for
// any confirmation prompt.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	return s.saveLocked()
}

func (s *Store) findLocked(ip string) (Record, bool) {
	for _, r := range s.records {
		if r.IP == ip {
			return r, true
		}
	}
	return Record{}, false
}

// Blacklisted reports whether an address must never be recorded: loopback and
// wildcard addresses are meaningless as reconnect targets.
func Blacklisted(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip == "localhost"
	}
	return parsed.IsLoopback() || parsed.IsUnspecified()
}

// parseEntry strips the display prefix, an optional ":port" suffix and an
// optional "|timestampMillis" suffix from one list entry.
func parseEntry(entry string) (ip string, ts time.Time) {
	entry = strings.TrimPrefix(strings.TrimSpace(entry), DisplayPrefix)

	if i := strings.IndexByte(entry, '|'); i >= 0 {
		if millis, err := strconv.ParseInt(entry[i+1:], 10, 64); err == nil {
			ts = time.UnixMilli(millis)
		}
		entry = entry[:i]
	}

	if host, _, err := net.SplitHostPort(entry); err == nil {
		entry = host
	}

	return entry, ts
}

// load reads the state file. Errors leave the history empty; a missing file
// is the normal first-run case.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return
	}

	for _, raw := range state.Addresses {
		parts := strings.SplitN(raw, "|", 2)
		rec := Record{IP: parts[0]}
		if len(parts) == 2 {
			if millis, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				rec.LastSeen = time.UnixMilli(millis)
			}
		}
		if rec.IP == "" || Blacklisted(rec.IP) {
			continue
		}
		s.records = append(s.records, rec)
	}
}

// saveLocked writes the state atomically via a temp file.
func (s *Store) saveLocked() error {
	state := persistedState{
		Version:   1,
		UpdatedAt: s.now().Format(time.RFC3339),
	}
	for _, r := range s.records {
		state.Addresses = append(state.Addresses, fmt.Sprintf("%s|%d", r.IP, r.LastSeen.UnixMilli()))
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename history file: %w", err)
	}

	return nil
}
