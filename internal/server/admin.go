package server

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"relaygate/internal/pool"
	"relaygate/internal/upstream"
	store "relaygate/internal/storage"

	"github.com/gin-gonic/gin"
)

// enrichmentCacheTTL is how long the admin list's upstream-enriched
// snapshot is memoized process-wide before a plain request recomputes it.
const enrichmentCacheTTL = 5 * time.Minute

// enrichConcurrency bounds how many per-credential upstream utilization
// calls run in parallel while building an enriched list snapshot.
const enrichConcurrency = 5

// Admin implements the credential pool's admin surface (C7): list with
// cached upstream enrichment, submit, delete, token check, and version.
type Admin struct {
	pool    *pool.Handle
	up      *upstream.Client
	backend store.Backend
	version string

	mu        sync.Mutex
	cached    *enrichedSnapshot
	cachedAt  time.Time
}

type enrichedSnapshot struct {
	Valid     []enrichedCredential `json:"valid"`
	Exhausted []enrichedCredential `json:"exhausted"`
	Invalid   []enrichedCredential `json:"invalid"`
}

type enrichedCredential struct {
	Token       string                  `json:"token"`
	Tier        pool.SubscriptionTier   `json:"subscription_tier,omitempty"`
	Session     pool.UsageWindow        `json:"session,omitempty"`
	Weekly      pool.UsageWindow        `json:"weekly,omitempty"`
	WeeklyOpus  pool.UsageWindow        `json:"weekly_opus,omitempty"`
	WeeklySonnet pool.UsageWindow       `json:"weekly_sonnet,omitempty"`
	CoolingUntil *time.Time             `json:"cooling_until,omitempty"`
	Reason      pool.DeadReason         `json:"reason,omitempty"`
	Utilization *upstream.Utilization   `json:"utilization,omitempty"`
}

// NewAdmin constructs the admin surface. backend may be nil if no durable
// persistence is configured, in which case the health gate always passes.
func NewAdmin(h *pool.Handle, up *upstream.Client, backend store.Backend, version string) *Admin {
	return &Admin{pool: h, up: up, backend: backend, version: version}
}

// List serves GET /api/cookies.
func (a *Admin) List(c *gin.Context) {
	refresh := c.Query("refresh") == "true" || c.Query("refresh") == "1"

	snapshot, cachedAt, hit := a.snapshot(c.Request.Context(), refresh)

	c.Header("X-Cache-Status", cacheStatus(hit))
	c.Header("X-Cache-Timestamp", strconv.FormatInt(cachedAt.Unix(), 10))
	c.JSON(http.StatusOK, snapshot)
}

func cacheStatus(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

func (a *Admin) snapshot(ctx context.Context, refresh bool) (*enrichedSnapshot, time.Time, bool) {
	a.mu.Lock()
	if !refresh && a.cached != nil && time.Since(a.cachedAt) < enrichmentCacheTTL {
		snap, at := a.cached, a.cachedAt
		a.mu.Unlock()
		return snap, at, true
	}
	a.mu.Unlock()

	status, err := a.pool.Status(ctx)
	if err != nil {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.cached != nil {
			return a.cached, a.cachedAt, true
		}
		return &enrichedSnapshot{}, time.Now(), false
	}

	snap := &enrichedSnapshot{
		Valid:     a.enrichMany(ctx, status.Valid),
		Exhausted: a.enrichMany(ctx, status.Cooling),
		Invalid:   enrichDead(status.Dead),
	}

	a.mu.Lock()
	a.cached = snap
	a.cachedAt = time.Now()
	at := a.cachedAt
	a.mu.Unlock()

	return snap, at, false
}

func (a *Admin) enrichMany(ctx context.Context, creds []*pool.Credential) []enrichedCredential {
	out := make([]enrichedCredential, len(creds))
	sem := make(chan struct{}, enrichConcurrency)
	var wg sync.WaitGroup
	for i, cred := range creds {
		i, cred := i, cred
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = a.enrichOne(ctx, cred)
		}()
	}
	wg.Wait()
	return out
}

func (a *Admin) enrichOne(ctx context.Context, cred *pool.Credential) enrichedCredential {
	ec := enrichedCredential{
		Token:        cred.Token,
		Tier:         cred.SubscriptionTier,
		Session:      cred.Session,
		Weekly:       cred.Weekly,
		WeeklyOpus:   cred.WeeklyOpus,
		WeeklySonnet: cred.WeeklySonnet,
		CoolingUntil: cred.CoolingUntil,
	}
	if a.up != nil {
		if util, err := a.up.FetchUtilization(ctx, cred); err == nil {
			ec.Utilization = &util
		}
	}
	return ec
}

func enrichDead(dead []pool.DeadCredential) []enrichedCredential {
	out := make([]enrichedCredential, 0, len(dead))
	for _, d := range dead {
		out = append(out, enrichedCredential{Token: d.Token, Reason: d.Reason})
	}
	return out
}

// submitRequest is the JSON body accepted by POST /api/cookie.
type submitRequest struct {
	Token            string `json:"token"`
	SubscriptionTier string `json:"subscription_tier"`
}

// Submit serves POST /api/cookie.
func (a *Admin) Submit(c *gin.Context) {
	if !a.healthGate(c) {
		return
	}
	var req submitRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Token == "" {
		respondError(c, http.StatusBadRequest, "token is required", nil)
		return
	}
	tier := pool.TierUnknown
	switch req.SubscriptionTier {
	case string(pool.TierFree):
		tier = pool.TierFree
	case string(pool.TierPro):
		tier = pool.TierPro
	}
	cred := &pool.Credential{Token: req.Token, SubscriptionTier: tier}
	if err := a.pool.Submit(c.Request.Context(), cred); err != nil {
		respondError(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// deleteRequest is the JSON body accepted by DELETE /api/cookie.
type deleteRequest struct {
	Token string `json:"token"`
}

// Delete serves DELETE /api/cookie.
func (a *Admin) Delete(c *gin.Context) {
	if !a.healthGate(c) {
		return
	}
	var req deleteRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := a.pool.Delete(c.Request.Context(), req.Token); err != nil {
		respondError(c, http.StatusInternalServerError, "not found", nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// Auth serves GET /api/auth: the bearer-token check middleware already ran,
// so reaching the handler means the token was valid.
func (a *Admin) Auth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Version serves GET /api/version.
func (a *Admin) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": a.version})
}

// healthGate blocks mutating operations with 503 when the persistence
// backend is configured and reports unhealthy, so the in-memory pool
// never diverges from persisted state.
func (a *Admin) healthGate(c *gin.Context) bool {
	if a.backend == nil {
		return true
	}
	if err := a.backend.Health(c.Request.Context()); err != nil {
		respondError(c, http.StatusServiceUnavailable, "persistence backend unavailable", nil)
		return false
	}
	return true
}
