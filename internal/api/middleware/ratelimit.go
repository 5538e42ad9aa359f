// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/epheterson/zimi/internal/domain"
)

// window is the sliding window over which requests/IP are counted (spec.md
// §6 "rate_limit": "Requests/min/IP").
const window = time.Minute

// bucket tracks one IP's request timestamps within the trailing window.
type bucket struct {
	mu    sync.Mutex
	times []time.Time
}

// prune drops timestamps older than window, relative to now.
func (b *bucket) prune(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(b.times) && b.times[i].Before(cutoff) {
		i++
	}
	b.times = b.times[i:]
}

// RateLimiter enforces a per-IP sliding-window request cap (spec.md §4.6,
// §8 property 4). A limit of 0 disables enforcement entirely.
type RateLimiter struct {
	limit int

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter builds a RateLimiter allowing up to limit requests/minute
// per IP.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		buckets: make(map[string]*bucket),
	}
}

func (rl *RateLimiter) bucketFor(ip string) *bucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{}
		rl.buckets[ip] = b
	}
	return b
}

// allow records one request from ip and reports whether it fits within the
// current window, along with how long the caller should wait if not.
func (rl *RateLimiter) allow(ip string) (ok bool, retryAfter time.Duration) {
	if rl.limit <= 0 {
		return true, 0
	}

	b := rl.bucketFor(ip)
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(now)
	if len(b.times) >= rl.limit {
		oldest := b.times[0]
		return false, window - now.Sub(oldest)
	}
	b.times = append(b.times, now)
	return true, 0
}

// Middleware wraps next with rate limiting, bypassing /manage/* and /health
// per spec.md §6 ("Management routes and /health bypass the limit").
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/manage/") || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		ok, retryAfter := rl.allow(ip)
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			writeError(w, http.StatusTooManyRequests, domain.ErrRateLimited, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
