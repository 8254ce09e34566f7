// Package geoip implements C5: a rate-limited, non-blocking country-code
// resolver. The caller-facing contract never blocks — CountryOf always
// returns immediately — while a single background worker drains a pending
// queue at the upstream rate limit, the same asynchronous-enrichment shape
// as the teacher's LogsCollector rate-limiting its own journalctl queries
// (collector/logs.go's lastQuery timestamp gate), generalized here to a
// full pending/resolved state machine plus golang.org/x/time/rate instead
// of a bare timestamp comparison.
package geoip

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/saqw3r/InetMonitor/model"
	"golang.org/x/time/rate"
)

const (
	// pendingSentinel is returned while a lookup is in flight or queued.
	pendingSentinel = ".."
	// failedSentinel marks an IP whose lookup errored.
	failedSentinel = "??"
	localSentinel  = "Local"
)

// Resolver is C5. Safe for concurrent use. Call Close to stop the
// background worker; Close waits for the worker to exit, so a lookup
// already in flight runs to completion, and queued lookups are abandoned.
type Resolver struct {
	endpoint string
	limiter  *rate.Limiter
	client   *http.Client
	logger   model.Logger

	mu        sync.Mutex
	resolved  map[string]string // ip -> country code (resolved or "??")
	requested map[string]bool   // ip -> already enqueued, per original GeoIpResolver's m_requested
	pending   []string

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// New creates a Resolver that queries endpoint (a %s-templated URL
// expecting the target IP) no more often than one request per throttle,
// clamped to a 1.5s floor per §6's 45 req/min budget.
func New(endpoint string, throttle time.Duration, logger model.Logger) *Resolver {
	if throttle < 1500*time.Millisecond {
		throttle = 1500 * time.Millisecond
	}
	if logger == nil {
		logger = model.NopLogger{}
	}
	r := &Resolver{
		endpoint:  endpoint,
		limiter:   rate.NewLimiter(rate.Every(throttle), 1),
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
		resolved:  make(map[string]string),
		requested: make(map[string]bool),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

// CountryOf is C5's non-blocking contract. On unknown it enqueues a lookup
// and returns the pending sentinel; on pending it returns the same
// sentinel; on resolved/failed it returns the stored code. Local addresses
// short-circuit to "Local" without ever touching the queue.
func (r *Resolver) CountryOf(ip string) string {
	if isLocal(ip) {
		return localSentinel
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if code, ok := r.resolved[ip]; ok {
		return code
	}
	if !r.requested[ip] {
		r.requested[ip] = true
		r.pending = append(r.pending, ip)
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
	return pendingSentinel
}

// Close stops the background worker. Idempotent.
func (r *Resolver) Close() {
	r.once.Do(func() {
		close(r.stop)
		<-r.done
	})
}

func (r *Resolver) run() {
	defer close(r.done)
	for {
		ip, ok := r.dequeue()
		if !ok {
			select {
			case <-r.stop:
				return
			case <-r.wake:
				continue
			}
		}

		if err := r.limiter.Wait(r.waitContext()); err != nil {
			return
		}

		code, err := r.query(ip)
		if err != nil {
			code = failedSentinel
			r.logger.Warnw("geoip: lookup failed", "ip", ip, "error", err)
		}

		r.mu.Lock()
		r.resolved[ip] = code
		r.mu.Unlock()
	}
}

// waitContext ties the limiter's Wait to the resolver's stop signal so
// shutdown is prompt even mid-throttle-wait.
func (r *Resolver) waitContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-r.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}

func (r *Resolver) dequeue() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return "", false
	}
	ip := r.pending[0]
	r.pending = r.pending[1:]
	return ip, true
}

// query performs the plaintext HTTP GET §6 describes: a short plain-text
// body containing a two-letter country code, trailing newline stripped.
func (r *Resolver) query(ip string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, fmtEndpoint(r.endpoint, ip), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "InetMonitor/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return "", err
	}
	code := strings.TrimSpace(string(body))
	if len(code) != 2 {
		return failedSentinel, nil
	}
	return strings.ToUpper(code), nil
}

func fmtEndpoint(endpoint, ip string) string {
	if strings.Contains(endpoint, "%s") {
		return strings.Replace(endpoint, "%s", ip, 1)
	}
	return endpoint + ip
}

// isLocal implements §4.5's local-address short-circuit list.
func isLocal(ip string) bool {
	switch {
	case ip == "127.0.0.1", ip == "::1":
		return true
	case strings.HasPrefix(ip, "192.168."):
		return true
	case strings.HasPrefix(ip, "10."):
		return true
	}
	if strings.HasPrefix(ip, "172.") {
		parts := strings.SplitN(ip, ".", 3)
		if len(parts) >= 2 {
			if second := parseOctet(parts[1]); second >= 16 && second <= 31 {
				return true
			}
		}
	}
	return false
}

func parseOctet(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	return n
}
