package server

import (
	"net"

	"github.com/nova-lang/nova/pkg/logger"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Guard rejects clients that exceed their request rate. Whitelisted IPs are
// never limited.
type Guard struct {
	limiter   *ipRateLimiter
	whiteList map[string]struct{}
}

// NewGuard allows each IP r requests per second with bursts of b. A zero
// rate disables limiting.
func NewGuard(r float64, b int, whiteList []string) *Guard {
	g := &Guard{whiteList: make(map[string]struct{})}
	for _, ip := range whiteList {
		g.whiteList[ip] = struct{}{}
	}
	if r > 0 {
		g.limiter = newIPRateLimiter(rate.Limit(r), b)
	}
	return g
}

// Allow reports whether ip may proceed, consuming one token if so.
func (g *Guard) Allow(ip string) bool {
	if g == nil || g.limiter == nil {
		return true
	}
	if _, ok := g.whiteList[ip]; ok {
		return true
	}
	if !g.limiter.getLimiter(ip).Allow() {
		logger.Debug("ip limited", zap.String("ip", ip))
		return false
	}
	return true
}

// AllowAddr is Allow for a connection's remote address.
func (g *Guard) AllowAddr(addr net.Addr) bool {
	ip := addr.String()
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return g.Allow(ip)
}

// Intercept wraps an HTTP handler with the rate check.
func (g *Guard) Intercept(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !g.Allow(ctx.RemoteIP().String()) {
			ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"code":-42901,"message":"request too frequently"}`)
			return
		}
		next(ctx)
	}
}
