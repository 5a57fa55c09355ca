package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	logx "researchd/pkg/logx"
)

// requestLogger logs one line per request in the service's structured style.
func requestLogger(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Int("bytes", ww.BytesWritten()),
				logx.Duration("took", time.Since(start)),
				logx.String("remote", r.RemoteAddr),
				logx.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// limiterPool hands out one token bucket per client IP. Entries idle past
// ttl are dropped on the next sweep so the map stays bounded.
type limiterPool struct {
	mu      sync.Mutex
	perMin  int
	ttl     time.Duration
	lastGC  time.Time
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

func newLimiterPool(perMin int) *limiterPool {
	return &limiterPool{
		perMin:  perMin,
		ttl:     10 * time.Minute,
		lastGC:  time.Now(),
		clients: make(map[string]*clientLimiter),
	}
}

func (p *limiterPool) allow(ip string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if now.Sub(p.lastGC) > p.ttl {
		for k, c := range p.clients {
			if now.Sub(c.seen) > p.ttl {
				delete(p.clients, k)
			}
		}
		p.lastGC = now
	}
	c, ok := p.clients[ip]
	if !ok {
		c = &clientLimiter{lim: rate.NewLimiter(rate.Limit(float64(p.perMin)/60.0), p.perMin)}
		p.clients[ip] = c
	}
	c.seen = now
	return c.lim.Allow()
}

// rateLimit rejects over-limit clients with a 429 envelope. perMin <= 0
// disables the limit (used by tests and trusted deployments).
func rateLimit(pool *limiterPool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if pool == nil || pool.perMin <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !pool.allow(ip) {
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	// middleware.RealIP has already folded X-Forwarded-For into RemoteAddr.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
