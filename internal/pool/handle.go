package pool

import (
	"context"
	"fmt"
)

// ErrActorUnavailable is returned when a request cannot be delivered to
// the actor's mailbox, e.g. because ctx was cancelled while waiting.
type ErrActorUnavailable struct{ Cause error }

func (e ErrActorUnavailable) Error() string {
	return fmt.Sprintf("pool actor unavailable: %v", e.Cause)
}

// Handle is the public, concurrency-safe entry point into a running pool
// actor. Every method sends a message to the actor's mailbox and, for
// request/reply operations, waits for the matching reply.
type Handle struct {
	actor *Actor
}

// Acquire selects a credential for a new request, honoring client
// affinity when fingerprint is non-nil. Returns ErrNoCredentialAvailable
// if every credential is currently cooling or dead.
func (h *Handle) Acquire(ctx context.Context, fingerprint *uint64) (*Credential, error) {
	reply := make(chan any, 1)
	msg := message{kind: msgAcquire, fingerprint: fingerprint, reply: reply}
	if err := h.send(ctx, msg); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ErrActorUnavailable{Cause: ctx.Err()}
	case v := <-reply:
		res := v.(acquireResult)
		return res.credential, res.err
	}
}

// Return reports the outcome of a request made with cred. reason may be
// nil, which is treated as OutcomeNone (refresh usage counters only).
func (h *Handle) Return(ctx context.Context, cred *Credential, reason *Reason) error {
	if cred == nil {
		return nil
	}
	return h.send(ctx, message{kind: msgReturn, credential: cred, reason: reason})
}

// Submit adds a new credential to the active pool. Duplicate tokens are
// silently ignored (logged at warn level inside the actor).
func (h *Handle) Submit(ctx context.Context, cred *Credential) error {
	if cred == nil {
		return nil
	}
	return h.send(ctx, message{kind: msgSubmit, credential: cred})
}

// Delete removes token from whichever collection currently holds it.
// Returns ErrNotFound if the token is not present anywhere.
func (h *Handle) Delete(ctx context.Context, token string) error {
	reply := make(chan any, 1)
	if err := h.send(ctx, message{kind: msgDelete, token: token, reply: reply}); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ErrActorUnavailable{Cause: ctx.Err()}
	case v := <-reply:
		return v.(deleteResult).err
	}
}

// Status returns a point-in-time snapshot of all three collections,
// running maintenance (window expiry and cooldown promotion) first.
func (h *Handle) Status(ctx context.Context) (StatusInfo, error) {
	reply := make(chan any, 1)
	if err := h.send(ctx, message{kind: msgStatus, reply: reply}); err != nil {
		return StatusInfo{}, err
	}
	select {
	case <-ctx.Done():
		return StatusInfo{}, ErrActorUnavailable{Cause: ctx.Err()}
	case v := <-reply:
		return v.(StatusInfo), nil
	}
}

func (h *Handle) send(ctx context.Context, msg message) error {
	select {
	case h.actor.mailbox <- msg:
		return nil
	case <-ctx.Done():
		return ErrActorUnavailable{Cause: ctx.Err()}
	}
}
