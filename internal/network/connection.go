// Package network accepts game client connections, runs the login handshake
// and moves frames between the socket and the world. Each connection is
// served by a reader goroutine and a writer goroutine; the world only sees
// the game.Client side of a Session.
package network

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rune-Status/aj8/internal/events"
	"github.com/Rune-Status/aj8/internal/game"
	"github.com/Rune-Status/aj8/internal/login"
	"github.com/Rune-Status/aj8/internal/message"
	"github.com/Rune-Status/aj8/internal/protocol"
)

const (
	// WriteTimeout bounds a single flush to the socket.
	WriteTimeout = 10 * time.Second

	readChunk = 4096
)

var ErrOutboundFull = errors.New("outbound queue is full")

// LoginService decides whether a decoded login is accepted. game.World
// implements it.
type LoginService interface {
	Login(ctx context.Context, req *login.Request, client game.Client) login.Response
}

// Publisher receives session events. events.EventBus implements it.
type Publisher interface {
	Emit(ctx context.Context, event events.Event)
}

// SessionConfig tunes every session accepted by a listener.
type SessionConfig struct {
	Release       int
	Registry      *message.Registry
	LoginTimeout  time.Duration
	IdleTimeout   time.Duration
	InboundQueue  int
	OutboundQueue int
	// Random supplies server seeds; crypto/rand when nil.
	Random io.Reader
}

func (c *SessionConfig) applyDefaults() {
	if c.Release == 0 {
		c.Release = 317
	}
	if c.Registry == nil {
		c.Registry = message.Release317()
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = 5 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.InboundQueue <= 0 {
		c.InboundQueue = 32
	}
	if c.OutboundQueue <= 0 {
		c.OutboundQueue = 256
	}
	if c.Random == nil {
		c.Random = rand.Reader
	}
}

// Session is one client connection. It implements game.Client: Poll and Send
// never block, and Close may be called from any goroutine.
type Session struct {
	id        string
	conn      net.Conn
	remote    string
	cfg       SessionConfig
	publisher Publisher
	logger    zerolog.Logger

	inbound  chan message.Message
	outbound chan message.Message
	done     chan struct{}

	closeOnce     sync.Once
	reason        atomic.Pointer[string]
	writerStarted atomic.Bool
	writerDone    chan struct{}

	mu          sync.Mutex
	username    string
	stage       string
	connectedAt time.Time
	lastRead    time.Time
}

// NewSession wraps an accepted connection.
func NewSession(conn net.Conn, cfg SessionConfig, publisher Publisher) *Session {
	cfg.applyDefaults()
	id := uuid.NewString()
	remote := conn.RemoteAddr().String()
	now := time.Now()
	return &Session{
		id:          id,
		conn:        conn,
		remote:      remote,
		cfg:         cfg,
		publisher:   publisher,
		logger:      log.With().Str("component", "session").Str("session", id).Str("remote", remote).Logger(),
		inbound:     make(chan message.Message, cfg.InboundQueue),
		outbound:    make(chan message.Message, cfg.OutboundQueue),
		done:        make(chan struct{}),
		writerDone:  make(chan struct{}),
		stage:       "HANDSHAKE",
		connectedAt: now,
		lastRead:    now,
	}
}

// ID returns the session's uuid.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string { return s.remote }

// Username returns the name the client logged in with, empty before login.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Poll returns the next inbound message without blocking.
func (s *Session) Poll() (message.Message, bool) {
	select {
	case m := <-s.inbound:
		return m, true
	default:
		return nil, false
	}
}

// Send queues m for the writer. Messages sent after Close are dropped.
func (s *Session) Send(m message.Message) error {
	if s.Closed() {
		return nil
	}
	select {
	case s.outbound <- m:
		return nil
	default:
		return ErrOutboundFull
	}
}

// Close stops the session. Messages already queued are flushed before the
// socket is closed.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		s.reason.Store(&reason)
		close(s.done)
		if !s.writerStarted.Load() {
			s.conn.Close()
		}
		s.logger.Debug().Str("reason", reason).Msg("closing session")
	})
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed when the session starts closing.
func (s *Session) Done() <-chan struct{} { return s.done }

// CloseReason returns the reason given to Close.
func (s *Session) CloseReason() string {
	if r := s.reason.Load(); r != nil {
		return *r
	}
	return ""
}

// Authenticate runs the login handshake and asks service to accept it. The
// response is written before any game frame. On success the returned
// buffer holds whatever the client sent after its login block.
func (s *Session) Authenticate(ctx context.Context, service LoginService) (*login.Request, *bytes.Buffer, error) {
	s.conn.SetDeadline(time.Now().Add(s.cfg.LoginTimeout))
	defer s.conn.SetDeadline(time.Time{})

	decoder := login.NewDecoder(s.cfg.Random, s.cfg.Release)
	in := new(bytes.Buffer)
	chunk := make([]byte, readChunk)

	var req *login.Request
	for req == nil {
		n, err := s.conn.Read(chunk)
		if n > 0 {
			in.Write(chunk[:n])
			s.touch()
			req, err = s.decodeLogin(decoder, in)
			if err != nil {
				s.violation(decoder.FailedStage(), err)
				s.Close("protocol violation")
				return nil, nil, err
			}
			continue
		}
		if err != nil {
			s.Close(closeReason(err))
			return nil, nil, fmt.Errorf("failed to read login: %w", err)
		}
	}

	s.mu.Lock()
	s.username = req.Credentials.Username
	s.stage = "LOGIN"
	s.mu.Unlock()

	s.logger.Debug().
		Str("player", req.Credentials.Username).
		Int("uid", req.Credentials.UID).
		Int("username_hash", req.Credentials.UsernameHash).
		Bool("reconnecting", req.Reconnecting).
		Bool("low_memory", req.LowMemory).
		Msg("login decoded")

	resp := service.Login(ctx, req, s)
	if _, err := s.conn.Write(resp.Bytes()); err != nil {
		s.Close(closeReason(err))
		return nil, nil, fmt.Errorf("failed to write login response: %w", err)
	}
	if !resp.Status.Successful() {
		s.Close("login rejected: " + resp.Status.String())
		return nil, nil, fmt.Errorf("login rejected with status %s", resp.Status)
	}

	s.mu.Lock()
	s.stage = "GAME"
	s.mu.Unlock()
	return req, in, nil
}

func (s *Session) decodeLogin(decoder *login.Decoder, in *bytes.Buffer) (*login.Request, error) {
	req, err := decoder.Decode(in, s.conn)
	s.mu.Lock()
	s.stage = decoder.Stage()
	s.mu.Unlock()
	return req, err
}

// Serve moves frames until the session closes. It must follow a successful
// Authenticate; in holds the bytes left over from login.
func (s *Session) Serve(ctx context.Context, req *login.Request, in *bytes.Buffer) {
	s.writerStarted.Store(true)
	if s.Closed() {
		// Close may have seen the writer as started and left the socket open.
		s.conn.Close()
		close(s.writerDone)
		return
	}
	go s.writeLoop(protocol.NewFrameEncoder(req.Ciphers.Encode))

	stop := context.AfterFunc(ctx, func() { s.Close("server shutting down") })
	defer stop()

	s.readLoop(protocol.NewFrameDecoder(req.Ciphers.Decode, s.cfg.Registry.Lengths()), in)
	<-s.writerDone
}

func (s *Session) readLoop(decoder *protocol.FrameDecoder, in *bytes.Buffer) {
	chunk := make([]byte, readChunk)
	for {
		for {
			packet, err := decoder.Decode(in)
			if err != nil {
				s.violation("GAME", err)
				s.Close("protocol violation")
				return
			}
			if packet == nil {
				break
			}
			if !s.dispatch(packet) {
				return
			}
		}

		s.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		n, err := s.conn.Read(chunk)
		if n > 0 {
			in.Write(chunk[:n])
			s.touch()
		}
		if err != nil {
			s.Close(closeReason(err))
			return
		}
	}
}

// dispatch decodes one packet and hands it to the world. It returns false
// once the session should stop reading.
func (s *Session) dispatch(packet *protocol.GamePacket) bool {
	m, err := s.cfg.Registry.Decode(packet)
	switch {
	case errors.Is(err, message.ErrUnknownOpcode):
		s.logger.Debug().Int("opcode", packet.Opcode).Int("length", packet.Length()).Msg("ignoring unknown opcode")
		return true
	case err != nil:
		s.violation("GAME", err)
		s.Close("protocol violation")
		return false
	}

	select {
	case s.inbound <- m:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) writeLoop(encoder *protocol.FrameEncoder) {
	defer close(s.writerDone)
	defer s.conn.Close()

	var buf bytes.Buffer
	for {
		select {
		case m := <-s.outbound:
			if err := s.encode(encoder, m, &buf); err != nil {
				s.Close("encode failure")
				return
			}
			s.drain(encoder, &buf)
			if err := s.flush(&buf); err != nil {
				s.Close(closeReason(err))
				return
			}
		case <-s.done:
			s.drain(encoder, &buf)
			if err := s.flush(&buf); err != nil {
				s.logger.Debug().Err(err).Msg("failed to flush on close")
			}
			return
		}
	}
}

// drain encodes every message already queued so they go out in one write.
func (s *Session) drain(encoder *protocol.FrameEncoder, buf *bytes.Buffer) {
	for {
		select {
		case m := <-s.outbound:
			if err := s.encode(encoder, m, buf); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) encode(encoder *protocol.FrameEncoder, m message.Message, buf *bytes.Buffer) error {
	if err := encoder.Encode(s.cfg.Registry.Encode(m), buf); err != nil {
		s.logger.Error().Err(err).Str("message", m.Type().String()).Msg("failed to encode message")
		return err
	}
	return nil
}

func (s *Session) flush(buf *bytes.Buffer) error {
	if buf.Len() == 0 {
		return nil
	}
	s.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	_, err := s.conn.Write(buf.Bytes())
	buf.Reset()
	return err
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastRead = time.Now()
	s.mu.Unlock()
}

func (s *Session) violation(stage string, err error) {
	s.logger.Warn().Err(err).Str("stage", stage).Msg("protocol violation")
	if s.publisher != nil {
		s.publisher.Emit(context.Background(), events.New(events.EventProtocolViolation, "network", events.ProtocolViolationPayload{
			SessionID: s.id,
			Remote:    s.remote,
			Stage:     stage,
			Error:     err.Error(),
		}))
	}
}

func closeReason(err error) string {
	switch {
	case errors.Is(err, io.EOF):
		return "connection closed"
	case errors.Is(err, os.ErrDeadlineExceeded):
		return "timed out"
	case errors.Is(err, net.ErrClosed):
		return "connection closed"
	default:
		return "i/o error: " + err.Error()
	}
}

// SessionInfo describes a session for the operator surfaces.
type SessionInfo struct {
	ID          string    `json:"id"`
	Remote      string    `json:"remote"`
	Username    string    `json:"username,omitempty"`
	Stage       string    `json:"stage"`
	ConnectedAt time.Time `json:"connected_at"`
	LastRead    time.Time `json:"last_read"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:          s.id,
		Remote:      s.remote,
		Username:    s.username,
		Stage:       s.stage,
		ConnectedAt: s.connectedAt,
		LastRead:    s.lastRead,
	}
}

// SessionRegistry tracks live sessions.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Register adds a session.
func (r *SessionRegistry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
	log.Debug().Str("session", s.id).Msg("session registered")
}

// Unregister removes a session and closes it.
func (r *SessionRegistry) Unregister(s *Session) {
	r.mu.Lock()
	delete(r.sessions, s.id)
	r.mu.Unlock()
	s.Close("unregistered")
	log.Debug().Str("session", s.id).Msg("session unregistered")
}

// Get returns the session with id.
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns a snapshot of every live session.
func (r *SessionRegistry) Sessions() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// CloseAll closes every session.
func (r *SessionRegistry) CloseAll(reason string) {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	for _, s := range all {
		s.Close(reason)
	}
	log.Info().Int("sessions", len(all)).Msg("all sessions closed")
}
