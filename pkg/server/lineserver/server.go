// Package lineserver serves the interpreter on a raw TCP socket: the client
// writes statements and reads results on the same connection.
package lineserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/nova-lang/nova/pkg/config"
	"github.com/nova-lang/nova/pkg/evaluator"
	"github.com/nova-lang/nova/pkg/history"
	"github.com/nova-lang/nova/pkg/logger"
	"github.com/nova-lang/nova/pkg/pipeline"
	"github.com/nova-lang/nova/pkg/server"
	"go.uber.org/zap"
)

const limitedReply = "error: request too frequently\n"

type Server struct {
	lis     net.Listener
	guard   *server.Guard
	pcfg    pipeline.Config
	history *history.History
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New listens on address. hist may be nil.
func New(address string, cfg *config.CfgInfo, hist *history.History) (*Server, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", address, err)
	}
	return NewWithListener(lis, cfg, hist), nil
}

func NewWithListener(lis net.Listener, cfg *config.CfgInfo, hist *history.History) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		lis:   lis,
		guard: server.NewGuard(cfg.Server.RateLimit, cfg.Server.Burst, cfg.Server.WhiteList),
		pcfg: pipeline.Config{
			BufferSize: cfg.Pipeline.BufferSize,
			Format:     cfg.Output.Format,
			Logger:     logger.Named("pipeline"),
		},
		history: hist,
		log:     logger.Named("lineserver"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Server) Addr() net.Addr {
	return s.lis.Addr()
}

// Run accepts connections until Stop is called.
func (s *Server) Run() error {
	s.log.Info("line server listening", zap.Stringer("address", s.lis.Addr()))
	for {
		conn, err := s.lis.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error("accept failed", zap.Error(err))
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
		}()
	}
}

// Stop closes the listener, aborts open sessions and waits for them.
func (s *Server) Stop() {
	s.cancel()
	s.lis.Close()
	s.wg.Wait()
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()
	log := s.log.With(zap.Stringer("remote", conn.RemoteAddr()))

	if !s.guard.AllowAddr(conn.RemoteAddr()) {
		conn.Write([]byte(limitedReply))
		return
	}

	// Reads on conn do not observe ctx; closing the socket unblocks them.
	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()

	id, err := uuid.NewV4()
	if err != nil {
		log.Error("session id", zap.Error(err))
		return
	}
	cfg := s.pcfg
	cfg.ID = id
	if s.history != nil {
		j, err := s.history.Begin(id, "tcp "+conn.RemoteAddr().String())
		if err != nil {
			log.Error("history unavailable", zap.Error(err))
		} else {
			cfg.Handlers = []evaluator.Handler{j}
		}
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		log.Error("pipeline construction failed", zap.Error(err))
		return
	}

	log.Debug("session opened", zap.Stringer("session", p.ID()))
	if err := p.Run(s.ctx, conn, conn); err != nil {
		log.Warn("session aborted", zap.Stringer("session", p.ID()), zap.Error(err))
		return
	}
	log.Debug("session closed", zap.Stringer("session", p.ID()), zap.Any("stats", p.Stats()))
}
