package pool

import (
	"context"
	"time"

	monenh "relaygate/internal/monitoring"

	log "github.com/sirupsen/logrus"
)

// ErrNoCredentialAvailable is returned by Acquire when every credential is
// cooling or dead.
type ErrNoCredentialAvailable struct{}

func (ErrNoCredentialAvailable) Error() string { return "no credential available" }

// ErrNotFound is returned by Delete when the requested token is not held
// in any collection.
type ErrNotFound struct{ Token string }

func (e ErrNotFound) Error() string { return "credential not found: " + e.Token }

// Persister is the narrow slice of the storage backend the actor needs to
// durably record pool membership. Implementations must not block the
// actor goroutine for long; save below runs them off to the side.
type Persister interface {
	SaveCredentials(ctx context.Context, active, cooling []*Credential) error
	SaveDead(ctx context.Context, dead []DeadCredential) error
}

// message is the actor's single mailbox item type. Every field the actor
// can be asked to do is represented here; messages are drained strictly
// in arrival order, which is what lets the rest of the pool logic run
// without any locking.
type message struct {
	kind replyKind

	fingerprint *uint64
	credential  *Credential
	reason      *Reason
	token       string

	reply chan any
}

type replyKind int

const (
	msgAcquire replyKind = iota
	msgReturn
	msgSubmit
	msgDelete
	msgStatus
	msgTick
)

// acquireResult is sent back on an Acquire reply channel.
type acquireResult struct {
	credential *Credential
	err        error
}

// deleteResult is sent back on a Delete reply channel.
type deleteResult struct {
	err error
}

// Actor owns the pool's in-memory state and processes every request
// through a single mailbox goroutine, so no mutex is needed to guard the
// active/cooling/dead collections or the affinity cache.
type Actor struct {
	mailbox chan message
	done    chan struct{}

	persist Persister
	cfg     Config
}

// NewActor constructs a pool actor. persist may be nil, in which case
// membership changes are never written to durable storage (useful in
// tests). cfg may be nil, in which case the pool's built-in defaults
// apply; any zero-valued field of a non-nil cfg also falls back to its
// default.
func NewActor(persist Persister, cfg *Config) *Actor {
	a := &Actor{
		mailbox: make(chan message, 64),
		done:    make(chan struct{}),
		persist: persist,
		cfg:     cfg.withDefaults(),
	}
	return a
}

// Start rehydrates the actor from a previously persisted snapshot (active
// and dead may be nil) and launches the mailbox loop plus the periodic
// maintenance ticker. It returns a Handle for interacting with the actor.
func (a *Actor) Start(ctx context.Context, active, cooling []*Credential, dead []DeadCredential) *Handle {
	st := newState(a.cfg)
	st.active = append(st.active, active...)
	for _, c := range cooling {
		st.cooling[c.Token] = c
	}
	for _, d := range dead {
		st.dead[d.Token] = d.Reason
	}

	go a.run(ctx, st)
	go a.spawnTicker(ctx)

	return &Handle{actor: a}
}

func (a *Actor) run(ctx context.Context, st *state) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.mailbox:
			a.handle(ctx, st, msg)
		}
	}
}

// spawnTicker sends a Tick message every TickInterval until ctx is
// cancelled, driving the pool's periodic maintenance pass.
func (a *Actor) spawnTicker(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case a.mailbox <- message{kind: msgTick}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (a *Actor) handle(ctx context.Context, st *state, msg message) {
	switch msg.kind {
	case msgAcquire:
		cred, err := a.dispatch(ctx, st, msg.fingerprint)
		msg.reply <- acquireResult{credential: cred, err: err}
	case msgReturn:
		a.collect(ctx, st, msg.credential, msg.reason)
	case msgSubmit:
		a.accept(ctx, st, msg.credential)
	case msgDelete:
		err := a.delete(ctx, st, msg.token)
		msg.reply <- deleteResult{err: err}
	case msgStatus:
		a.runMaintenance(ctx, st, time.Now())
		msg.reply <- st.snapshot()
	case msgTick:
		a.runMaintenance(ctx, st, time.Now())
	}
}

// dispatch implements the Acquire dispatch policy: run maintenance
// (cooldown promotion only), then try the affinity cache before falling
// back to round-robin.
func (a *Actor) dispatch(ctx context.Context, st *state, fingerprint *uint64) (*Credential, error) {
	now := time.Now()
	a.promoteCooled(st, now)

	if fingerprint != nil {
		if token, ok := st.affinity.get(*fingerprint, now); ok {
			if cred, found := st.findActive(token); found {
				return cred.Clone(), nil
			}
		}
	}

	cred := st.popFront()
	if cred == nil {
		return nil, ErrNoCredentialAvailable{}
	}
	st.pushBack(cred)
	if m := monenh.DefaultMetrics(); m != nil {
		m.RecordCredentialRotation()
	}

	if fingerprint != nil {
		st.affinity.put(*fingerprint, cred.Token, now)
	}
	return cred.Clone(), nil
}

// collect implements the Return classification policy described for each
// outcome: overwrite-in-place, no-op, move-to-cooling, or move-to-dead.
func (a *Actor) collect(ctx context.Context, st *state, cred *Credential, reason *Reason) {
	if cred == nil {
		return
	}
	if reason == nil {
		reason = &Reason{Outcome: OutcomeNone}
	}

	metrics := monenh.DefaultMetrics()

	switch reason.Outcome {
	case OutcomeNone:
		if existing, ok := st.findActive(cred.Token); ok {
			*existing = *cred
			existing.CoolingUntil = nil
			a.save(ctx, st)
		}
	case OutcomeNormalPro:
		if existing, ok := st.findActive(cred.Token); ok {
			*existing = *cred
			existing.CoolingUntil = nil
			a.save(ctx, st)
		}
		if metrics != nil {
			metrics.UpdateCredentialHealth(suffix(cred.Token), 1.0)
		}
	case OutcomeRateLimited, OutcomeRestricted:
		until := reason.ResetAt
		if until.IsZero() {
			until = time.Now().Add(a.cfg.CoolDown)
		}
		if _, ok := st.removeActive(cred.Token); ok {
			cred.CoolingUntil = &until
			cred.Session.Usage = 0
			cred.Weekly.Usage = 0
			cred.WeeklyOpus.Usage = 0
			cred.WeeklySonnet.Usage = 0
			st.cooling[cred.Token] = cred
			a.log(st)
			a.save(ctx, st)
		} else if existing, ok := st.cooling[cred.Token]; ok {
			// Already cooling: a second rate-limit/restriction signal for
			// the same token coalesces onto the existing entry, with the
			// latest reset timestamp winning rather than the update being
			// silently dropped.
			existing.CoolingUntil = &until
			a.save(ctx, st)
		}
		if metrics != nil {
			metrics.RecordCredentialFailure(suffix(cred.Token))
			metrics.UpdateCredentialHealth(suffix(cred.Token), 0.5)
		}
	case OutcomeFreeTierRejected, OutcomePermanentInvalid:
		if metrics != nil {
			metrics.RecordCredentialFailure(suffix(cred.Token))
			metrics.UpdateCredentialHealth(suffix(cred.Token), 0.0)
		}
		if _, ok := st.removeActive(cred.Token); ok {
			kind := reason.DeadKind
			if kind == "" {
				if reason.Outcome == OutcomeFreeTierRejected {
					kind = DeadFreeTierRejected
				} else {
					kind = DeadInvalid
				}
			}
			st.dead[cred.Token] = kind
			a.log(st)
			a.save(ctx, st)
		}
	}
}

// accept implements Submit: reject a duplicate token silently (logged at
// warn level), otherwise push the new credential to the back of active.
func (a *Actor) accept(ctx context.Context, st *state, cred *Credential) {
	if cred == nil || cred.Token == "" {
		return
	}
	inActive, inCooling, inDead := st.location(cred.Token)
	if inActive || inCooling || inDead {
		log.WithField("token_suffix", suffix(cred.Token)).Warn("pool: ignoring duplicate credential submission")
		return
	}
	st.pushBack(cred)
	a.log(st)
	a.save(ctx, st)
}

// delete implements Delete: remove the token from whichever collection
// holds it, or report ErrNotFound.
func (a *Actor) delete(ctx context.Context, st *state, token string) error {
	if _, ok := st.removeActive(token); ok {
		a.log(st)
		a.save(ctx, st)
		return nil
	}
	if _, ok := st.cooling[token]; ok {
		delete(st.cooling, token)
		a.log(st)
		a.save(ctx, st)
		return nil
	}
	if _, ok := st.dead[token]; ok {
		delete(st.dead, token)
		a.log(st)
		a.save(ctx, st)
		return nil
	}
	return ErrNotFound{Token: token}
}

// promoteCooled moves every cooling credential whose cooldown has
// elapsed back onto the tail of active.
func (a *Actor) promoteCooled(st *state, now time.Time) {
	for token, cred := range st.cooling {
		if cred.CoolingUntil != nil && !now.Before(*cred.CoolingUntil) {
			cred.CoolingUntil = nil
			delete(st.cooling, token)
			st.pushBack(cred)
		}
	}
}

// runMaintenance performs the full periodic pass: rolling-window expiry
// across active and cooling, followed by cooldown promotion.
func (a *Actor) runMaintenance(ctx context.Context, st *state, now time.Time) {
	changed := false
	for _, c := range st.active {
		if refreshWindows(c, now, a.cfg) {
			changed = true
		}
	}
	for _, c := range st.cooling {
		if refreshWindows(c, now, a.cfg) {
			changed = true
		}
	}
	a.promoteCooled(st, now)
	if changed {
		a.save(ctx, st)
	}
}

// log emits the active/cooling/dead triple the way every membership
// change does, so pool size trends are visible in the logs without
// needing a separate metrics scrape.
func (a *Actor) log(st *state) {
	log.WithFields(log.Fields{
		"active":  len(st.active),
		"cooling": len(st.cooling),
		"dead":    len(st.dead),
	}).Info("pool: membership changed")
}

// save fires off an asynchronous persistence write of the current
// snapshot. Persistence errors are logged but never propagated back to
// the message that triggered them: in-memory state is authoritative and
// durable storage is best-effort.
func (a *Actor) save(ctx context.Context, st *state) {
	if a.persist == nil {
		return
	}
	activeCopy := make([]*Credential, len(st.active))
	for i, c := range st.active {
		activeCopy[i] = c.Clone()
	}
	coolingCopy := make([]*Credential, 0, len(st.cooling))
	for _, c := range st.cooling {
		coolingCopy = append(coolingCopy, c.Clone())
	}
	deadCopy := make([]DeadCredential, 0, len(st.dead))
	for token, reason := range st.dead {
		deadCopy = append(deadCopy, DeadCredential{Token: token, Reason: reason})
	}

	go func() {
		saveCtx := context.Background()
		if err := a.persist.SaveCredentials(saveCtx, activeCopy, coolingCopy); err != nil {
			log.WithError(err).Warn("pool: failed to persist credential snapshot")
		}
		if err := a.persist.SaveDead(saveCtx, deadCopy); err != nil {
			log.WithError(err).Warn("pool: failed to persist dead credential snapshot")
		}
	}()
}

func suffix(token string) string {
	if len(token) <= 6 {
		return token
	}
	return token[len(token)-6:]
}
