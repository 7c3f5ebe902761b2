package ratelimit

import (
	"sync"
	"time"
)

// idleTTL is how long an unused bucket is kept.
const idleTTL = time.Hour

// Config configures a Limiter.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Rules           []Rule
}

// Info describes the limit applied to one request.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

type bucketKey struct {
	client string
	method string
	route  string
}

type entry struct {
	b        *bucket
	lastUsed time.Time
}

// Limiter keeps one bucket per client and route.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[bucketKey]*entry

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter returns a Limiter. A background sweep drops idle buckets until Stop.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = &Config{Enabled: true, DefaultLimit: 600, DefaultWindow: time.Minute}
	}
	l := &Limiter{
		cfg:     *cfg,
		now:     time.Now,
		buckets: make(map[bucketKey]*entry),
		stop:    make(chan struct{}),
	}
	if cfg.Enabled && cfg.CleanupInterval > 0 {
		go l.sweepLoop(cfg.CleanupInterval)
	}
	return l
}

// Allow consumes a token for client on the route of method and path.
func (l *Limiter) Allow(client, method, path string) Info {
	if !l.cfg.Enabled || l.cfg.Whitelist[client] {
		return Info{Allowed: true}
	}

	rule := match(method, path, l.cfg.Rules)
	route := "*"
	if rule == nil {
		rule = &Rule{Limit: l.cfg.DefaultLimit, Window: l.cfg.DefaultWindow, Burst: l.cfg.DefaultLimit}
	} else {
		route = rule.Path
	}
	if rule.Limit <= 0 || rule.Window <= 0 {
		return Info{Allowed: true}
	}

	now := l.now()
	b := l.bucket(bucketKey{client: client, method: method, route: route}, rule, now)
	ok, remaining, full := b.take(now)
	info := Info{Allowed: ok, Limit: rule.Limit, Remaining: remaining, ResetTime: full}
	if !ok {
		info.RetryAfter = b.nextToken(now)
	}
	return info
}

func (l *Limiter) bucket(key bucketKey, rule *Rule, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.buckets[key]
	if !ok {
		burst := rule.Burst
		if burst <= 0 {
			burst = rule.Limit
		}
		e = &entry{b: newBucket(burst, float64(rule.Limit)/rule.Window.Seconds(), now)}
		l.buckets[key] = e
	}
	e.lastUsed = now
	return e.b
}

func (l *Limiter) sweepLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep drops buckets unused for longer than idleTTL.
func (l *Limiter) sweep() {
	cutoff := l.now().Add(-idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.buckets {
		if e.lastUsed.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}

// Stop ends the background sweep.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
