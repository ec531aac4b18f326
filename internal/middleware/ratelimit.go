package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterIdleTTL drops a caller's bucket after this long without calls. It is
// longer than a full refill, so eviction never grants extra tokens.
const limiterIdleTTL = 10 * time.Minute

// AcceptLimiter throttles accept and propose calls per authenticated caller.
// It keeps a pro from hammering the arbiter; it does not decide races.
type AcceptLimiter struct {
	mu       sync.Mutex
	limiters *cache.Cache
	idle     time.Duration
	limit    rate.Limit
	burst    int
	logger   *slog.Logger
}

// NewAcceptLimiter allows perMinute calls per caller with a burst of the same
// size. perMinute <= 0 disables limiting.
func NewAcceptLimiter(perMinute int, logger *slog.Logger) *AcceptLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	l := &AcceptLimiter{
		limiters: cache.New(limiterIdleTTL, limiterIdleTTL),
		idle:     limiterIdleTTL,
		limit:    rate.Inf,
		logger:   logger,
	}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
		l.burst = perMinute
	}
	return l
}

// get returns the caller's bucket and pushes its idle deadline forward.
func (l *AcceptLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	var lim *rate.Limiter
	if v, ok := l.limiters.Get(key); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(l.limit, l.burst)
	}
	l.limiters.Set(key, lim, l.idle)
	return lim
}

// Middleware must run after Authenticate.
func (l *AcceptLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromCtx(r.Context())
		if !ok {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if !l.get(id.ID.String()).Allow() {
			l.logger.Warn("Rate limit exceeded", "pro_id", id.ID, "path", r.URL.Path)
			http.Error(w, `{"error":"rate limit exceeded, try again later"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
