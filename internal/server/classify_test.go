package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"relaygate/internal/pool"
)

func newResp(status int, headers map[string]string) *http.Response {
	rec := httptest.NewRecorder()
	for k, v := range headers {
		rec.Header().Set(k, v)
	}
	rec.Code = status
	return rec.Result()
}

func TestClassifyResponseSuccess(t *testing.T) {
	cred := &pool.Credential{Token: "tok"}
	body := []byte(`{"usage":{"subscription_tier":"pro","session":{"utilization":42,"resets_at":1000,"has_reset":true}}}`)
	resp := newResp(http.StatusOK, nil)

	refreshed, reason := classifyResponse(resp, body, cred)
	if reason.Outcome != pool.OutcomeNormalPro {
		t.Fatalf("Outcome = %v, want OutcomeNormalPro", reason.Outcome)
	}
	if refreshed.SubscriptionTier != pool.TierPro {
		t.Errorf("SubscriptionTier = %v, want pro", refreshed.SubscriptionTier)
	}
	if refreshed.Session.Usage != 42 {
		t.Errorf("Session.Usage = %d, want 42", refreshed.Session.Usage)
	}
	if !refreshed.Session.HasReset {
		t.Error("Session.HasReset = false, want true")
	}
}

func TestClassifyResponseRateLimited(t *testing.T) {
	cred := &pool.Credential{Token: "tok"}
	resp := newResp(http.StatusTooManyRequests, map[string]string{"Retry-After": "30"})

	refreshed, reason := classifyResponse(resp, nil, cred)
	if reason.Outcome != pool.OutcomeRateLimited {
		t.Fatalf("Outcome = %v, want OutcomeRateLimited", reason.Outcome)
	}
	if refreshed.Token != "tok" {
		t.Errorf("credential identity changed unexpectedly")
	}
	if reason.ResetAt.Before(time.Now().Add(29 * time.Second)) {
		t.Errorf("ResetAt = %v, want ~30s from now", reason.ResetAt)
	}
}

func TestClassifyResponseForbiddenWithReset(t *testing.T) {
	cred := &pool.Credential{Token: "tok"}
	resp := newResp(http.StatusForbidden, map[string]string{"X-RateLimit-Reset": "9999999999"})

	_, reason := classifyResponse(resp, nil, cred)
	if reason.Outcome != pool.OutcomeRestricted {
		t.Fatalf("Outcome = %v, want OutcomeRestricted", reason.Outcome)
	}
	if reason.ResetAt.IsZero() {
		t.Error("ResetAt should not be zero when a reset header is present")
	}
}

func TestClassifyResponseForbiddenWithoutReset(t *testing.T) {
	cred := &pool.Credential{Token: "tok"}
	resp := newResp(http.StatusForbidden, nil)

	_, reason := classifyResponse(resp, nil, cred)
	if reason.Outcome != pool.OutcomePermanentInvalid {
		t.Fatalf("Outcome = %v, want OutcomePermanentInvalid", reason.Outcome)
	}
	if reason.DeadKind != pool.DeadInvalid {
		t.Errorf("DeadKind = %v, want DeadInvalid", reason.DeadKind)
	}
}

func TestClassifyResponseUnauthorized(t *testing.T) {
	cred := &pool.Credential{Token: "tok"}
	resp := newResp(http.StatusUnauthorized, nil)

	_, reason := classifyResponse(resp, nil, cred)
	if reason.Outcome != pool.OutcomePermanentInvalid {
		t.Fatalf("Outcome = %v, want OutcomePermanentInvalid", reason.Outcome)
	}
	if reason.DeadKind != pool.DeadUnauthorized {
		t.Errorf("DeadKind = %v, want DeadUnauthorized", reason.DeadKind)
	}
}

func TestClassifyResponseUnknownFatal(t *testing.T) {
	cred := &pool.Credential{Token: "tok"}
	resp := newResp(http.StatusInternalServerError, nil)

	_, reason := classifyResponse(resp, nil, cred)
	if reason.Outcome != pool.OutcomePermanentInvalid {
		t.Fatalf("Outcome = %v, want OutcomePermanentInvalid", reason.Outcome)
	}
}
