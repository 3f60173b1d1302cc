package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"relaygate/internal/pool"
)

// upstreamUsage is the per-window utilization payload the upstream API is
// expected to report on a successful call, keyed the same way as
// pool.Credential's rolling windows.
type upstreamUsage struct {
	SubscriptionTier string `json:"subscription_tier"`
	Session          *upstreamWindow `json:"session"`
	Weekly           *upstreamWindow `json:"weekly"`
	WeeklyOpus       *upstreamWindow `json:"weekly_opus"`
	WeeklySonnet     *upstreamWindow `json:"weekly_sonnet"`
}

type upstreamWindow struct {
	Utilization int   `json:"utilization"`
	ResetsAt    int64 `json:"resets_at"`
	HasReset    bool  `json:"has_reset"`
}

// applyUsage overlays parsed upstream usage metrics onto a clone of cred,
// returning the refreshed credential for a normal_pro Return call.
func applyUsage(cred *pool.Credential, body []byte) *pool.Credential {
	next := cred.Clone()
	var usage struct {
		Usage *upstreamUsage `json:"usage"`
	}
	if err := json.Unmarshal(body, &usage); err != nil || usage.Usage == nil {
		return next
	}
	u := usage.Usage
	if u.SubscriptionTier != "" {
		next.SubscriptionTier = pool.SubscriptionTier(u.SubscriptionTier)
	}
	applyWindow(&next.Session, u.Session)
	applyWindow(&next.Weekly, u.Weekly)
	applyWindow(&next.WeeklyOpus, u.WeeklyOpus)
	applyWindow(&next.WeeklySonnet, u.WeeklySonnet)
	return next
}

func applyWindow(dst *pool.UsageWindow, src *upstreamWindow) {
	if src == nil {
		return
	}
	dst.Usage = src.Utilization
	dst.HasReset = src.HasReset
	if src.ResetsAt > 0 {
		dst.ResetsAt = time.Unix(src.ResetsAt, 0).UTC()
	}
}

// classifyResponse turns an upstream HTTP response into the Reason that
// drives the pool's Return classification, per the pipeline's status-code
// contract: 2xx with usage -> normal_pro, 429 -> rate_limited, 403/restriction
// -> restricted (if a resumption time was given) or permanent-invalid
// otherwise, 401/unknown fatal -> permanent-invalid.
func classifyResponse(resp *http.Response, body []byte, cred *pool.Credential) (*pool.Credential, *pool.Reason) {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return applyUsage(cred, body), &pool.Reason{Outcome: pool.OutcomeNormalPro}

	case resp.StatusCode == http.StatusTooManyRequests:
		resetAt := parseResetAt(resp, body)
		return cred, &pool.Reason{Outcome: pool.OutcomeRateLimited, ResetAt: resetAt}

	case resp.StatusCode == http.StatusForbidden:
		if resetAt := parseResetAt(resp, body); !resetAt.IsZero() {
			return cred, &pool.Reason{Outcome: pool.OutcomeRestricted, ResetAt: resetAt}
		}
		return cred, &pool.Reason{Outcome: pool.OutcomePermanentInvalid, DeadKind: pool.DeadInvalid}

	case resp.StatusCode == http.StatusUnauthorized:
		return cred, &pool.Reason{Outcome: pool.OutcomePermanentInvalid, DeadKind: pool.DeadUnauthorized}

	default:
		// Unknown fatal: anything else (including upstream 5xx) is treated
		// as a permanently broken credential rather than risk silently
		// rotating through a pool that never recovers.
		return cred, &pool.Reason{Outcome: pool.OutcomePermanentInvalid, DeadKind: pool.DeadInvalid}
	}
}

// parseResetAt looks for a reset timestamp first in a Retry-After /
// X-RateLimit-Reset header, then in the response body's usage payload.
func parseResetAt(resp *http.Response, body []byte) time.Time {
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(sec, 0).UTC()
		}
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Now().Add(time.Duration(secs) * time.Second).UTC()
		}
	}
	var usage struct {
		Usage *upstreamUsage `json:"usage"`
	}
	if json.Unmarshal(body, &usage) == nil && usage.Usage != nil {
		for _, w := range []*upstreamWindow{usage.Usage.Session, usage.Usage.Weekly, usage.Usage.WeeklyOpus, usage.Usage.WeeklySonnet} {
			if w != nil && w.ResetsAt > 0 {
				return time.Unix(w.ResetsAt, 0).UTC()
			}
		}
	}
	return time.Time{}
}
