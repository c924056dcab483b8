package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Per-client request quotas. Caregiver apps, clinic portals, and integration
// partners get different plans; each plan caps requests over minute, hour, and
// day windows plus the number of in-flight requests.

// RatePlan is a quota tier for an API client.
type RatePlan struct {
	Name               string `json:"name"`
	RequestsPerMinute  int    `json:"requests_per_minute"`
	RequestsPerHour    int    `json:"requests_per_hour"`
	RequestsPerDay     int    `json:"requests_per_day"`
	ConcurrentRequests int    `json:"concurrent_requests"`
}

func (p *RatePlan) windowLimits() [3]int {
	return [3]int{p.RequestsPerMinute, p.RequestsPerHour, p.RequestsPerDay}
}

// RateLimitInfo carries the outcome of a quota check.
type RateLimitInfo struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter int
	ResetAt    time.Time
	Plan       string
}

// ClientUsage is a snapshot of a client's counters for the admin API.
type ClientUsage struct {
	ClientID        string `json:"client_id"`
	Plan            string `json:"plan"`
	MinuteUsed      int    `json:"minute_used"`
	MinuteLimit     int    `json:"minute_limit"`
	HourUsed        int    `json:"hour_used"`
	HourLimit       int    `json:"hour_limit"`
	DayUsed         int    `json:"day_used"`
	DayLimit        int    `json:"day_limit"`
	ConcurrentUsed  int    `json:"concurrent_used"`
	ConcurrentLimit int    `json:"concurrent_limit"`
}

// windowSpans indexes the minute, hour, and day windows.
var windowSpans = [3]time.Duration{time.Minute, time.Hour, 24 * time.Hour}

type usageWindow struct {
	count int
	reset time.Time
}

type clientCounter struct {
	mu       sync.Mutex
	windows  [3]usageWindow
	inFlight int
}

// rollWindows restarts any window whose reset time has passed. Caller holds
// c.mu.
func (c *clientCounter) rollWindows(now time.Time) {
	for i, span := range windowSpans {
		if now.After(c.windows[i].reset) {
			c.windows[i] = usageWindow{reset: now.Add(span)}
		}
	}
}

// ClientRateLimiter enforces per-client quotas across multiple time windows.
type ClientRateLimiter struct {
	mu          sync.RWMutex
	plans       map[string]*RatePlan
	clientPlans map[string]string
	counters    map[string]*clientCounter
}

// DefaultRatePlans returns the built-in quota tiers. "caregiver" is the
// fallback for unassigned clients.
func DefaultRatePlans() []RatePlan {
	return []RatePlan{
		{
			Name:               "caregiver",
			RequestsPerMinute:  120,
			RequestsPerHour:    2000,
			RequestsPerDay:     20000,
			ConcurrentRequests: 10,
		},
		{
			Name:               "clinic",
			RequestsPerMinute:  600,
			RequestsPerHour:    20000,
			RequestsPerDay:     200000,
			ConcurrentRequests: 40,
		},
		{
			Name:               "partner",
			RequestsPerMinute:  3000,
			RequestsPerHour:    100000,
			RequestsPerDay:     1000000,
			ConcurrentRequests: 150,
		},
	}
}

// NewClientRateLimiter creates a limiter pre-loaded with the default plans.
func NewClientRateLimiter() *ClientRateLimiter {
	rl := &ClientRateLimiter{
		plans:       make(map[string]*RatePlan),
		clientPlans: make(map[string]string),
		counters:    make(map[string]*clientCounter),
	}
	for _, p := range DefaultRatePlans() {
		plan := p
		rl.plans[plan.Name] = &plan
	}
	return rl
}

// RegisterPlan adds or replaces a quota tier by name.
func (rl *ClientRateLimiter) RegisterPlan(plan RatePlan) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	p := plan
	rl.plans[p.Name] = &p
}

// AssignPlan puts clientID on the named plan.
func (rl *ClientRateLimiter) AssignPlan(clientID, planName string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.plans[planName]; !ok {
		return fmt.Errorf("rate plan %q not found", planName)
	}
	rl.clientPlans[clientID] = planName
	return nil
}

// GetPlan returns the plan assigned to clientID, falling back to "caregiver".
func (rl *ClientRateLimiter) GetPlan(clientID string) *RatePlan {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	name, ok := rl.clientPlans[clientID]
	if !ok {
		name = "caregiver"
	}
	plan, ok := rl.plans[name]
	if !ok {
		plan = rl.plans["caregiver"]
	}
	return plan
}

func (rl *ClientRateLimiter) counter(clientID string) *clientCounter {
	rl.mu.RLock()
	c, ok := rl.counters[clientID]
	rl.mu.RUnlock()
	if ok {
		return c
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if c, ok := rl.counters[clientID]; ok {
		return c
	}
	c = &clientCounter{}
	now := time.Now()
	for i, span := range windowSpans {
		c.windows[i] = usageWindow{reset: now.Add(span)}
	}
	rl.counters[clientID] = c
	return c
}

// Allow checks whether clientID may issue a request. On success every window
// counter and the in-flight gauge are incremented; the caller must invoke
// Release when the request finishes.
func (rl *ClientRateLimiter) Allow(clientID string) (bool, *RateLimitInfo) {
	plan := rl.GetPlan(clientID)
	limits := plan.windowLimits()
	ctr := rl.counter(clientID)

	ctr.mu.Lock()
	defer ctr.mu.Unlock()

	ctr.rollWindows(time.Now())
	info := &RateLimitInfo{
		Plan:    plan.Name,
		Limit:   plan.RequestsPerMinute,
		ResetAt: ctr.windows[0].reset,
	}

	if plan.ConcurrentRequests > 0 && ctr.inFlight >= plan.ConcurrentRequests {
		info.RetryAfter = 1
		return false, info
	}
	for i, w := range ctr.windows {
		if w.count >= limits[i] {
			info.RetryAfter = secondsUntil(w.reset)
			return false, info
		}
	}

	for i := range ctr.windows {
		ctr.windows[i].count++
	}
	ctr.inFlight++

	info.Allowed = true
	info.Remaining = limits[0] - ctr.windows[0].count
	if info.Remaining < 0 {
		info.Remaining = 0
	}
	return true, info
}

// Release frees the in-flight slot taken by Allow. Safe to call without a
// matching Allow; the gauge never goes below zero.
func (rl *ClientRateLimiter) Release(clientID string) {
	ctr := rl.counter(clientID)
	ctr.mu.Lock()
	if ctr.inFlight > 0 {
		ctr.inFlight--
	}
	ctr.mu.Unlock()
}

// GetUsage returns a snapshot of the current counters for clientID.
func (rl *ClientRateLimiter) GetUsage(clientID string) *ClientUsage {
	plan := rl.GetPlan(clientID)
	ctr := rl.counter(clientID)

	ctr.mu.Lock()
	defer ctr.mu.Unlock()
	ctr.rollWindows(time.Now())

	return &ClientUsage{
		ClientID:        clientID,
		Plan:            plan.Name,
		MinuteUsed:      ctr.windows[0].count,
		MinuteLimit:     plan.RequestsPerMinute,
		HourUsed:        ctr.windows[1].count,
		HourLimit:       plan.RequestsPerHour,
		DayUsed:         ctr.windows[2].count,
		DayLimit:        plan.RequestsPerDay,
		ConcurrentUsed:  ctr.inFlight,
		ConcurrentLimit: plan.ConcurrentRequests,
	}
}

// ResetCounters zeroes all counters for clientID and restarts the windows.
func (rl *ClientRateLimiter) ResetCounters(clientID string) {
	ctr := rl.counter(clientID)
	ctr.mu.Lock()
	defer ctr.mu.Unlock()

	now := time.Now()
	for i, span := range windowSpans {
		ctr.windows[i] = usageWindow{reset: now.Add(span)}
	}
	ctr.inFlight = 0
}

// StartCleanup drops counters for clients idle past their day window. It
// blocks until ctx is cancelled, so call it in a goroutine.
func (rl *ClientRateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			rl.mu.Lock()
			for id, ctr := range rl.counters {
				ctr.mu.Lock()
				idle := now.After(ctr.windows[2].reset) && ctr.inFlight == 0
				for _, w := range ctr.windows {
					if w.count != 0 {
						idle = false
					}
				}
				if idle {
					delete(rl.counters, id)
				}
				ctr.mu.Unlock()
			}
			rl.mu.Unlock()
		}
	}
}

// ClientRateLimitMiddleware enforces per-client quotas on every request and
// reports the quota state in X-RateLimit-* headers.
func ClientRateLimitMiddleware(limiter *ClientRateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			clientID := extractClientID(c)
			allowed, info := limiter.Allow(clientID)

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

			if !allowed {
				h.Set("Retry-After", strconv.Itoa(info.RetryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			err := next(c)
			limiter.Release(clientID)
			return err
		}
	}
}

// extractClientID resolves the client identity: the "client_id" context value
// set by auth, then the X-Client-ID header, then the caller's IP.
func extractClientID(c echo.Context) string {
	if v := c.Get("client_id"); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if h := c.Request().Header.Get("X-Client-ID"); h != "" {
		return h
	}
	return c.RealIP()
}

// RateLimitHandler exposes the admin quota endpoints. The plan set is fixed at
// boot; admins can inspect usage, move clients between plans, and reset
// counters.
type RateLimitHandler struct {
	limiter *ClientRateLimiter
}

func NewRateLimitHandler(limiter *ClientRateLimiter) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter}
}

func (h *RateLimitHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/rate-limits/plans", h.ListPlans)
	g.GET("/rate-limits/clients/:id", h.GetClientUsage)
	g.PUT("/rate-limits/clients/:id/plan", h.AssignClientPlan)
	g.POST("/rate-limits/clients/:id/reset", h.ResetClientCounters)
}

// ListPlans returns all quota tiers.
func (h *RateLimitHandler) ListPlans(c echo.Context) error {
	h.limiter.mu.RLock()
	plans := make([]RatePlan, 0, len(h.limiter.plans))
	for _, p := range h.limiter.plans {
		plans = append(plans, *p)
	}
	h.limiter.mu.RUnlock()
	return c.JSON(http.StatusOK, plans)
}

// GetClientUsage returns current usage for one client.
func (h *RateLimitHandler) GetClientUsage(c echo.Context) error {
	return c.JSON(http.StatusOK, h.limiter.GetUsage(c.Param("id")))
}

// AssignClientPlan moves a client onto a different quota tier.
func (h *RateLimitHandler) AssignClientPlan(c echo.Context) error {
	clientID := c.Param("id")
	var body struct {
		Plan string `json:"plan"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body: "+err.Error())
	}
	if err := h.limiter.AssignPlan(clientID, body.Plan); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{
		"client_id": clientID,
		"plan":      body.Plan,
	})
}

// ResetClientCounters zeroes all counters for a client.
func (h *RateLimitHandler) ResetClientCounters(c echo.Context) error {
	clientID := c.Param("id")
	h.limiter.ResetCounters(clientID)
	return c.JSON(http.StatusOK, map[string]string{
		"client_id": clientID,
		"status":    "reset",
	})
}

// secondsUntil returns the whole seconds from now until t, minimum 1.
func secondsUntil(t time.Time) int {
	s := int(time.Until(t).Seconds())
	if s < 1 {
		return 1
	}
	return s
}
