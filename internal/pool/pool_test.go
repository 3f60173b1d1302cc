package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandle(t *testing.T, active, cooling []*Credential, dead []DeadCredential) (*Handle, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewActor(nil, nil).Start(ctx, active, cooling, dead)
	return h, cancel
}

func cred(token string) *Credential {
	return &Credential{
		Token:            token,
		SubscriptionTier: TierPro,
		Session:          UsageWindow{ResetsAt: time.Now().Add(SessionWindow), HasReset: true},
		Weekly:           UsageWindow{ResetsAt: time.Now().Add(WeeklyWindow), HasReset: true},
		WeeklyOpus:       UsageWindow{ResetsAt: time.Now().Add(WeeklyOpusWindow), HasReset: true},
		WeeklySonnet:     UsageWindow{ResetsAt: time.Now().Add(WeeklySonnetWindow), HasReset: true},
	}
}

func TestAcquireRoundRobin(t *testing.T) {
	h, cancel := newTestHandle(t, []*Credential{cred("a"), cred("b"), cred("c")}, nil, nil)
	defer cancel()
	ctx := context.Background()

	var seen []string
	for i := 0; i < 6; i++ {
		c, err := h.Acquire(ctx, nil)
		require.NoError(t, err)
		seen = append(seen, c.Token)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, seen)
}

func TestAcquireNoCredentialAvailable(t *testing.T) {
	h, cancel := newTestHandle(t, nil, nil, nil)
	defer cancel()
	_, err := h.Acquire(context.Background(), nil)
	require.Error(t, err)
	assert.IsType(t, ErrNoCredentialAvailable{}, err)
}

func TestReturnRateLimitedMovesToCoolingThenPromotes(t *testing.T) {
	h, cancel := newTestHandle(t, []*Credential{cred("a"), cred("b")}, nil, nil)
	defer cancel()
	ctx := context.Background()

	c, err := h.Acquire(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, "a", c.Token)

	err = h.Return(ctx, c, &Reason{Outcome: OutcomeRateLimited, ResetAt: time.Now().Add(50 * time.Millisecond)})
	require.NoError(t, err)

	status, err := h.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, status.Valid, 1)
	assert.Len(t, status.Cooling, 1)
	assert.Equal(t, "a", status.Cooling[0].Token)

	time.Sleep(100 * time.Millisecond)
	status, err = h.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, status.Cooling, 0)
	assert.Len(t, status.Valid, 2)
}

func TestReturnRateLimitedCoalescesWhenAlreadyCooling(t *testing.T) {
	h, cancel := newTestHandle(t, []*Credential{cred("a"), cred("b")}, nil, nil)
	defer cancel()
	ctx := context.Background()

	c, err := h.Acquire(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, "a", c.Token)

	first := time.Now().Add(time.Hour)
	require.NoError(t, h.Return(ctx, c, &Reason{Outcome: OutcomeRateLimited, ResetAt: first}))

	status, err := h.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status.Cooling, 1)
	assert.WithinDuration(t, first, *status.Cooling[0].CoolingUntil, time.Second)

	// A second rate-limit signal for the same, already-cooling token must
	// overwrite cooling_until with the latest reset time rather than being
	// silently dropped.
	later := time.Now().Add(2 * time.Hour)
	stale := cred("a")
	require.NoError(t, h.Return(ctx, stale, &Reason{Outcome: OutcomeRateLimited, ResetAt: later}))

	status, err = h.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status.Cooling, 1)
	assert.WithinDuration(t, later, *status.Cooling[0].CoolingUntil, time.Second)
}

func TestReturnPermanentInvalidRejectsCredential(t *testing.T) {
	h, cancel := newTestHandle(t, []*Credential{cred("a"), cred("b")}, nil, nil)
	defer cancel()
	ctx := context.Background()

	c, err := h.Acquire(ctx, nil)
	require.NoError(t, err)

	err = h.Return(ctx, c, &Reason{Outcome: OutcomeFreeTierRejected})
	require.NoError(t, err)

	status, err := h.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, status.Valid, 1)
	require.Len(t, status.Dead, 1)
	assert.Equal(t, DeadFreeTierRejected, status.Dead[0].Reason)
}

func TestAffinityStickinessAcrossMultipleFingerprints(t *testing.T) {
	h, cancel := newTestHandle(t, []*Credential{cred("a"), cred("b"), cred("c")}, nil, nil)
	defer cancel()
	ctx := context.Background()

	fp1 := uint64(111)
	fp2 := uint64(222)

	first1, err := h.Acquire(ctx, &fp1)
	require.NoError(t, err)
	first2, err := h.Acquire(ctx, &fp2)
	require.NoError(t, err)
	require.NotEqual(t, first1.Token, first2.Token)

	for i := 0; i < 3; i++ {
		again1, err := h.Acquire(ctx, &fp1)
		require.NoError(t, err)
		assert.Equal(t, first1.Token, again1.Token)

		again2, err := h.Acquire(ctx, &fp2)
		require.NoError(t, err)
		assert.Equal(t, first2.Token, again2.Token)
	}
}

func TestSubmitDuplicateCoalesces(t *testing.T) {
	h, cancel := newTestHandle(t, []*Credential{cred("a")}, nil, nil)
	defer cancel()
	ctx := context.Background()

	require.NoError(t, h.Submit(ctx, cred("a")))
	require.NoError(t, h.Submit(ctx, cred("b")))

	status, err := h.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, status.Valid, 2)
}

func TestDeleteNotFound(t *testing.T) {
	h, cancel := newTestHandle(t, []*Credential{cred("a")}, nil, nil)
	defer cancel()
	ctx := context.Background()

	err := h.Delete(ctx, "missing")
	require.Error(t, err)
	assert.IsType(t, ErrNotFound{}, err)

	require.NoError(t, h.Delete(ctx, "a"))
	status, err := h.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, status.Valid, 0)
}

func TestRollingWindowResetViaStatusMaintenance(t *testing.T) {
	stale := cred("a")
	stale.Session.Usage = 80
	stale.Session.ResetsAt = time.Now().Add(-time.Minute)
	stale.Session.HasReset = true

	h, cancel := newTestHandle(t, []*Credential{stale}, nil, nil)
	defer cancel()

	status, err := h.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status.Valid, 1)
	assert.Equal(t, 0, status.Valid[0].Session.Usage)
	assert.True(t, status.Valid[0].Session.ResetsAt.After(time.Now()))
}

func TestReturnNoneOverwritesUsageInPlace(t *testing.T) {
	h, cancel := newTestHandle(t, []*Credential{cred("a")}, nil, nil)
	defer cancel()
	ctx := context.Background()

	c, err := h.Acquire(ctx, nil)
	require.NoError(t, err)
	c.Session.Usage = 42

	require.NoError(t, h.Return(ctx, c, &Reason{Outcome: OutcomeNone}))

	status, err := h.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status.Valid, 1)
	assert.Equal(t, 42, status.Valid[0].Session.Usage)
}
