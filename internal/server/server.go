// Package server implements the connection dispatcher: backslash system
// commands and bare SQL are parsed off the wire, routed to the
// catalog/translate/plan/planner/iterator pipeline, and the result is
// framed back as a wire.Response. It also owns the TCP accept loop and
// the periodic maintenance schedule.
//
// Grounded on teacher cmd/server/main.go's accept-loop shape (one
// goroutine per connection, log.Printf on listener/connection errors)
// and original server/src/handler.rs / server/src/server.rs for the
// per-command dispatch and quiet-mode response collapsing this package
// implements over internal/wire's framing instead of that reference's
// HTTP/gRPC transport.
package server

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/crustylabs/crustydb/internal/bufferpool"
	"github.com/crustylabs/crustydb/internal/catalog"
	"github.com/crustylabs/crustydb/internal/config"
	"github.com/crustylabs/crustydb/internal/logging"
	"github.com/crustylabs/crustydb/internal/wire"
)

// Session holds per-connection state: a stable id (for logging) and the
// quiet-mode flag a "\quiet" command toggles for the remainder of the
// connection.
type Session struct {
	ID    uuid.UUID
	Quiet bool
}

// NewSession creates a session with a fresh connection id.
func NewSession() *Session {
	return &Session{ID: uuid.New()}
}

// Server bundles the process-lifetime catalog manager, configuration,
// logger, registered-query table, and maintenance scheduler a running
// instance needs.
type Server struct {
	Pool *bufferpool.Pool
	Mgr  *catalog.Manager
	Cfg  config.Config
	Log  *logging.Logger

	queriesMu sync.RWMutex
	queries   map[string]string

	cron *cron.Cron

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New assembles a Server over an existing buffer pool and manager
// bundle.
func New(pool *bufferpool.Pool, mgr *catalog.Manager, cfg config.Config, log *logging.Logger) *Server {
	return &Server{
		Pool:       pool,
		Mgr:        mgr,
		Cfg:        cfg,
		Log:        log,
		queries:    make(map[string]string),
		shutdownCh: make(chan struct{}),
	}
}

// StartMaintenance registers the periodic checkpoint/reservoir-persist
// job from s.Cfg.Maintenance.CronSpec. An empty spec disables scheduled
// maintenance entirely, matching the teacher storage.Scheduler's
// enabled-jobs-only registration.
func (s *Server) StartMaintenance() error {
	if s.Cfg.Maintenance.CronSpec == "" {
		return nil
	}
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.Cfg.Maintenance.CronSpec, func() {
		if err := s.Pool.FlushAll(); err != nil {
			s.Log.Printf("maintenance: flush buffer pool: %v", err)
		}
		if s.Cfg.Maintenance.StatsFile != "" {
			if err := s.Mgr.Stats.SaveToFile(s.Cfg.Maintenance.StatsFile); err != nil {
				s.Log.Printf("maintenance: persist stats: %v", err)
			}
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// StopMaintenance halts the scheduler, if running.
func (s *Server) StopMaintenance() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
}

// Serve accepts connections on ln until the listener is closed or
// Shutdown is called, handling each on its own goroutine.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdownCh:
				return nil
			default:
			}
			s.Log.Printf("accept error: %v", err)
			continue
		}
		go s.handleConn(conn)
	}
}

// Shutdown signals Serve to stop accepting and closes ln.
func (s *Server) Shutdown(ln net.Listener) {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
	ln.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	session := NewSession()
	connLog := s.Log.With(session.ID.String())
	connLog.Printf("connection opened")
	defer connLog.Printf("connection closed")

	for {
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		cmd, err := wire.DecodeCommand(payload)
		if err != nil {
			resp := wire.SystemErr("malformed command: " + err.Error())
			s.respond(conn, session, resp)
			continue
		}

		resp := s.Dispatch(context.Background(), session, cmd)
		if !s.respond(conn, session, resp) {
			return
		}
		if resp.Kind == wire.KindShutdown {
			return
		}
	}
}

func (s *Server) respond(conn net.Conn, session *Session, resp wire.Response) bool {
	if session.Quiet {
		resp = wire.CollapseQuiet(resp)
	}
	out, err := wire.EncodeResponse(resp)
	if err != nil {
		return false
	}
	return wire.WriteFrame(conn, out) == nil
}
