package server

import (
	"net"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

const limiterPruneInterval = time.Minute

// limiter keeps one token bucket per client IP.
type limiter struct {
	limit   rate.Limit
	burst   int
	buckets *xsync.MapOf[string, *rate.Limiter]
}

// newLimiter returns nil when perSecond disables rate limiting.
func newLimiter(perSecond float64) *limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &limiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: xsync.NewMapOf[string, *rate.Limiter](),
	}
}

// Allow reports whether one more command from ip fits its budget. A nil
// limiter allows everything.
func (l *limiter) Allow(ip string) bool {
	if l == nil {
		return true
	}
	bucket, _ := l.buckets.LoadOrCompute(ip, func() *rate.Limiter {
		return rate.NewLimiter(l.limit, l.burst)
	})
	return bucket.Allow()
}

// prune drops the buckets of clients that have been quiet long enough to
// refill completely. Such a bucket behaves exactly like a new one.
func (l *limiter) prune() int {
	return l.pruneAt(time.Now())
}

func (l *limiter) pruneAt(now time.Time) int {
	if l == nil {
		return 0
	}
	n := 0
	l.buckets.Range(func(ip string, b *rate.Limiter) bool {
		if b.TokensAt(now) >= float64(l.burst) {
			l.buckets.Delete(ip)
			n++
		}
		return true
	})
	return n
}

func remoteIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
