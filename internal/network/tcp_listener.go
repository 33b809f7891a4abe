package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/Rune-Status/aj8/internal/events"
)

// limiterIdle is how long a per-IP limiter survives without connections.
const limiterIdle = 3 * time.Minute

// ListenerConfig configures the game port.
type ListenerConfig struct {
	Address string
	// MaxPendingLogins caps connections that have not finished logging in.
	MaxPendingLogins int64
	// ConnectionsPerSecond is the sustained rate of new connections accepted
	// from one IP.
	ConnectionsPerSecond float64
	Session              SessionConfig
}

// Listener accepts game clients. Every connection gets its own goroutine
// that logs in and then serves the session.
type Listener struct {
	cfg       ListenerConfig
	service   LoginService
	registry  *SessionRegistry
	publisher Publisher
	logger    zerolog.Logger

	pending *semaphore.Weighted

	mu       sync.Mutex
	limiters map[string]*ipLimiter
	listener net.Listener
	ready    chan struct{}

	wg sync.WaitGroup
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewListener creates a listener. Nothing is bound until Start.
func NewListener(cfg ListenerConfig, service LoginService, registry *SessionRegistry, publisher Publisher) *Listener {
	if cfg.MaxPendingLogins <= 0 {
		cfg.MaxPendingLogins = 64
	}
	if cfg.ConnectionsPerSecond <= 0 {
		cfg.ConnectionsPerSecond = 2
	}
	cfg.Session.applyDefaults()
	return &Listener{
		cfg:       cfg,
		service:   service,
		registry:  registry,
		publisher: publisher,
		logger:    log.With().Str("component", "listener").Logger(),
		pending:   semaphore.NewWeighted(cfg.MaxPendingLogins),
		limiters:  make(map[string]*ipLimiter),
		ready:     make(chan struct{}),
	}
}

// Start binds the game port and accepts connections until ctx is cancelled.
// It returns after every connection goroutine has finished.
func (l *Listener) Start(ctx context.Context) error {
	// SO_REUSEADDR allows immediate rebinding after a restart
	lc := ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to start game listener on %s: %w", l.cfg.Address, err)
	}
	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()
	close(l.ready)

	l.logger.Info().Str("addr", ln.Addr().String()).Msg("game listener started")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go l.pruneLimiters(ctx)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.logger.Info().Msg("game listener stopping")
				l.wg.Wait()
				return nil
			}
			l.logger.Error().Err(err).Msg("failed to accept connection")
			continue
		}

		if !l.admit(conn) {
			conn.Close()
			continue
		}

		l.wg.Add(1)
		go l.handleConnection(ctx, conn)
	}
}

// Addr returns the bound address once Start has bound it.
func (l *Listener) Addr() net.Addr {
	<-l.ready
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listener.Addr()
}

// Stop closes the listening socket.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}

// admit applies the per-IP rate and the pending login cap.
func (l *Listener) admit(conn net.Conn) bool {
	ip := hostOf(conn.RemoteAddr())
	if !l.limiter(ip).Allow() {
		l.logger.Warn().Str("ip", ip).Msg("connection rate exceeded, dropping connection")
		return false
	}
	if !l.pending.TryAcquire(1) {
		l.logger.Warn().
			Str("ip", ip).
			Int64("max_pending", l.cfg.MaxPendingLogins).
			Msg("too many pending logins, dropping connection")
		return false
	}
	return true
}

func (l *Listener) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.limiters[ip]
	if !ok {
		burst := max(1, int(l.cfg.ConnectionsPerSecond))
		entry = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(l.cfg.ConnectionsPerSecond), burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (l *Listener) pruneLimiters(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-limiterIdle)
			l.mu.Lock()
			for ip, entry := range l.limiters {
				if entry.lastSeen.Before(cutoff) {
					delete(l.limiters, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

// handleConnection logs the client in and serves it until it disconnects.
func (l *Listener) handleConnection(ctx context.Context, conn net.Conn) {
	defer l.wg.Done()

	s := NewSession(conn, l.cfg.Session, l.publisher)
	l.registry.Register(s)
	defer l.registry.Unregister(s)

	l.emit(events.EventSessionOpened, events.SessionPayload{SessionID: s.ID(), Remote: s.RemoteAddr()})
	defer func() {
		l.emit(events.EventSessionClosed, events.SessionPayload{
			SessionID: s.ID(),
			Remote:    s.RemoteAddr(),
			Username:  s.Username(),
			Reason:    s.CloseReason(),
		})
	}()

	req, in, err := s.Authenticate(ctx, l.service)
	l.pending.Release(1)
	if err != nil {
		l.logger.Debug().Err(err).Str("session", s.ID()).Msg("login failed")
		return
	}

	s.Serve(ctx, req, in)
}

func (l *Listener) emit(eventType events.EventType, payload events.SessionPayload) {
	if l.publisher != nil {
		l.publisher.Emit(context.Background(), events.New(eventType, "network", payload))
	}
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
