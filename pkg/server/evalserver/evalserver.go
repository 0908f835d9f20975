// Package evalserver exposes the interpreter over HTTP. Every request runs
// on a freshly built pipeline, so requests share no interpreter state.
package evalserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"time"

	"github.com/buaazp/fasthttprouter"
	"github.com/gofrs/uuid"
	"github.com/nova-lang/nova/pkg/config"
	"github.com/nova-lang/nova/pkg/evaluator"
	"github.com/nova-lang/nova/pkg/history"
	"github.com/nova-lang/nova/pkg/logger"
	"github.com/nova-lang/nova/pkg/pipeline"
	"github.com/nova-lang/nova/pkg/server"
	"github.com/nova-lang/nova/pkg/stream"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const evalTimeout = 10 * time.Second

type Server struct {
	address string
	r       *fasthttprouter.Router
	srv     *fasthttp.Server
	guard   *server.Guard
	pcfg    pipeline.Config
	history *history.History
	log     *zap.Logger

	requests   uint64
	rejected   uint64
	statements uint64
	failures   uint64
}

// NewServer builds the HTTP front end. hist may be nil.
func NewServer(cfg *config.CfgInfo, hist *history.History) *Server {
	s := &Server{
		address: cfg.Server.Address,
		r:       fasthttprouter.New(),
		guard:   server.NewGuard(cfg.Server.RateLimit, cfg.Server.Burst, cfg.Server.WhiteList),
		pcfg: pipeline.Config{
			BufferSize: cfg.Pipeline.BufferSize,
			Format:     stream.FormatJSON,
			Logger:     logger.Named("pipeline"),
		},
		history: hist,
		log:     logger.Named("evalserver"),
	}

	s.r.POST("/eval", s.EvalHandler)
	s.r.GET("/stats", s.StatsHandler)
	s.r.GET("/health", s.HealthHandler)

	s.srv = &fasthttp.Server{
		Handler:            s.guard.Intercept(s.r.Handler),
		Name:               pipeline.Banner(),
		MaxRequestBodySize: cfg.Server.MaxBody,
		Logger:             logger.NewStdLog("fasthttp"),
	}
	return s
}

func (s *Server) RunServer() error {
	s.log.Info("http server listening", zap.String("address", s.address))
	if err := s.srv.ListenAndServe(s.address); err != nil {
		s.log.Error("failed to listen port", zap.Error(err), zap.String("address", s.address))
		return err
	}
	return nil
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown() error {
	return s.srv.Shutdown()
}

func writeJSON(ctx *fasthttp.RequestCtx, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		body = []byte(`{"code":-41201,"message":"encode response"}`)
	}
	ctx.SetContentType("application/json")
	ctx.Write(body)
}

// program extracts the source text: either a JSON object {"program": "..."}
// or the raw body.
func program(ctx *fasthttp.RequestCtx) (string, int, error) {
	body := ctx.PostBody()
	if !bytes.HasPrefix(ctx.Request.Header.ContentType(), []byte("application/json")) {
		return string(body), Success, nil
	}

	reqData := make(map[string]interface{})
	if err := json.Unmarshal(body, &reqData); err != nil {
		return "", ErrJSON, err
	}
	p, err := getString(reqData, "program")
	if err != nil {
		return "", ErrData, err
	}
	return p, Success, nil
}

// EvalHandler runs the posted program and returns every result.
func (s *Server) EvalHandler(ctx *fasthttp.RequestCtx) {
	var errorCode int
	var errMessage string
	defer func() {
		if errorCode != Success {
			atomic.AddUint64(&s.rejected, 1)
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			writeJSON(ctx, &resultInfo{ErrorCode: errorCode, ErrorMsg: errMessage})
		}
	}()
	atomic.AddUint64(&s.requests, 1)

	id, err := uuid.NewV4()
	if err != nil {
		errorCode, errMessage = ErrEval, err.Error()
		return
	}
	log := s.log.With(zap.Stringer("request", id), zap.String("ip", ctx.RemoteIP().String()))

	text, code, err := program(ctx)
	if err != nil {
		errorCode, errMessage = code, err.Error()
		return
	}

	cfg := s.pcfg
	cfg.ID = id
	if s.history != nil {
		j, err := s.history.Begin(id, "http "+ctx.RemoteIP().String())
		if err != nil {
			log.Error("history unavailable", zap.Error(err))
		} else {
			cfg.Handlers = []evaluator.Handler{j}
		}
	}

	evalCtx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()
	results, err := pipeline.Eval(evalCtx, cfg, text)
	if err != nil {
		log.Warn("eval failed", zap.Error(err))
		errorCode, errMessage = ErrEval, err.Error()
		return
	}

	res := evalResult{ID: id.String(), Results: make([]stream.Record, 0, len(results))}
	for _, r := range results {
		res.Results = append(res.Results, stream.NewRecord(r))
		if !r.OK() {
			res.Failures++
		}
	}
	atomic.AddUint64(&s.statements, uint64(len(results)))
	atomic.AddUint64(&s.failures, uint64(res.Failures))
	log.Debug("eval done", zap.Int("statements", len(results)), zap.Int("failures", res.Failures))

	writeJSON(ctx, &resultInfo{ErrorCode: Success, ErrorMsg: "ok", Result: res})
}

func (s *Server) StatsHandler(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, &resultInfo{ErrorCode: Success, ErrorMsg: "ok", Result: statsResult{
		Requests:   atomic.LoadUint64(&s.requests),
		Rejected:   atomic.LoadUint64(&s.rejected),
		Statements: atomic.LoadUint64(&s.statements),
		Failures:   atomic.LoadUint64(&s.failures),
	}})
}

func (s *Server) HealthHandler(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, &resultInfo{ErrorCode: Success, ErrorMsg: "ok", Result: pipeline.Banner()})
}
