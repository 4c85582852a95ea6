package registry

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/devlink-io/devlink/internal/logger"
)

// envelope is the top-level frame exchanged with a device agent. Anything
// beyond the hello/command/log envelope is the agent's business.
type envelope struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data,omitempty"`
}

const (
	msgHello   = "hello"
	msgDevice  = "device"
	msgLog     = "log"
	msgCommand = "command"
	msgBye     = "bye"
)

// wsSession is one connected device agent.
type wsSession struct {
	id   string // registry session key: ADB serial or generated UUID
	conn *websocket.Conn

	mu     sync.Mutex // guards device
	device Device

	sendMu sync.Mutex
}

func (s *wsSession) send(env envelope) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.conn.WriteJSON(env)
}

func (s *wsSession) snapshot() Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

func (s *wsSession) rename(name string) {
	s.mu.Lock()
	s.device.Name = name
	s.mu.Unlock()
}

// WSRegistry is a Registry that speaks JSON envelopes over WebSocket.
type WSRegistry struct {
	Events

	mu       sync.Mutex
	sessions map[string]*wsSession

	dialTimeout time.Duration
}

// NewWSRegistry creates an empty registry.
func NewWSRegistry() *WSRegistry {
	return &WSRegistry{
		sessions:    make(map[string]*wsSession),
		dialTimeout: 10 * time.Second,
	}
}

// ConnectTo dials ws://host:port/ and performs the hello exchange. The
// session is keyed by deviceID when given (ADB serial), otherwise by a
// generated UUID.
func (r *WSRegistry) ConnectTo(ctx context.Context, host string, port int, tag SessionType, deviceID string) error {
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, strconv.Itoa(port)), Path: "/"}

	dialer := websocket.Dialer{HandshakeTimeout: r.dialTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.Host, err)
	}

	if err := conn.WriteJSON(envelope{Type: msgHello, Data: map[string]string{
		"session": string(tag),
	}}); err != nil {
		conn.Close()
		return fmt.Errorf("hello to %s: %w", u.Host, err)
	}

	// The agent answers hello with its identity.
	var reply envelope
	conn.SetReadDeadline(time.Now().Add(r.dialTimeout))
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return fmt.Errorf("hello reply from %s: %w", u.Host, err)
	}
	conn.SetReadDeadline(time.Time{})

	key := deviceID
	if key == "" {
		key = uuid.NewString()
	}

	sess := &wsSession{
		id:   key,
		conn: conn,
		device: Device{
			ID:      key,
			IP:      host,
			Name:    reply.Data["name"],
			Session: tag,
			Since:   time.Now(),
		},
	}
	if sess.device.Name == "" {
		sess.device.Name = u.Host
	}

	r.mu.Lock()
	if old, ok := r.sessions[key]; ok {
		old.conn.Close()
	}
	r.sessions[key] = sess
	r.mu.Unlock()

	logger.Component("registry").Info().
		Str("device", key).
		Str("session", string(tag)).
		Str("addr", u.Host).
		Msg("device attached")

	r.EmitNew(sess.device)
	go r.readLoop(sess)

	return nil
}

// readLoop pumps frames from one device until the connection drops.
func (r *WSRegistry) readLoop(sess *wsSession) {
	defer r.detach(sess)

	for {
		var env envelope
		if err := sess.conn.ReadJSON(&env); err != nil {
			return
		}

		switch env.Type {
		case msgLog:
			r.EmitLog(sess.id, env.Data["line"])
		case msgDevice:
			// Late identity update
			if name := env.Data["name"]; name != "" {
				sess.rename(name)
			}
		case msgBye:
			return
		}
	}
}

func (r *WSRegistry) detach(sess *wsSession) {
	sess.conn.Close()

	r.mu.Lock()
	cur, ok := r.sessions[sess.id]
	if ok && cur == sess {
		delete(r.sessions, sess.id)
	}
	r.mu.Unlock()

	if ok && cur == sess {
		logger.Component("registry").Info().Str("device", sess.id).Msg("device detached")
		r.EmitDetach(sess.snapshot())
	}
}

// SendCommand sends a named command with a flat payload to every session.
func (r *WSRegistry) SendCommand(name string, payload map[string]string) error {
	r.mu.Lock()
	sessions := make([]*wsSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	data := map[string]string{"command": name}
	for k, v := range payload {
		data[k] = v
	}

	var firstErr error
	for _, s := range sessions {
		if err := s.send(envelope{Type: msgCommand, Data: data}); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("send %q to %s: %w", name, s.id, err)
		}
	}
	return firstErr
}

// Disconnect closes every session.
func (r *WSRegistry) Disconnect() error {
	r.mu.Lock()
	sessions := make([]*wsSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*wsSession)
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.send(envelope{Type: msgBye})
		s.conn.Close()
		r.EmitDetach(s.snapshot())
	}
	return nil
}

// Count reports how many sessions are attached.
func (r *WSRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

var _ Registry = (*WSRegistry)(nil)
