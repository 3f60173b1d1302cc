package pool

import (
	"context"
	"encoding/json"
	"fmt"
)

// configStore is the narrow slice of storage.Backend the pool needs:
// two documents, one for the live (active+cooling) credentials and one
// for permanently retired ones. It is defined locally so this package
// does not import internal/storage directly; callers wire a concrete
// backend in at construction time via NewStoragePersister.
type configStore interface {
	GetConfig(ctx context.Context, key string) (interface{}, error)
	SetConfig(ctx context.Context, key string, value interface{}) error
}

const (
	// CredentialArrayKey is the config document holding every active and
	// cooling credential, keyed the same way the upstream account export
	// does: a cooling_until timestamp marks a cooling entry.
	CredentialArrayKey = "credential_array"
	// WastedCredentialsKey is the config document holding permanently
	// retired (token, reason) pairs.
	WastedCredentialsKey = "wasted_credentials"
)

// StoragePersister adapts a generic config-document store to the
// Persister interface the actor uses for fire-and-forget snapshots.
type StoragePersister struct {
	store configStore
}

// NewStoragePersister wraps any backend exposing GetConfig/SetConfig.
func NewStoragePersister(store configStore) *StoragePersister {
	return &StoragePersister{store: store}
}

// SaveCredentials persists the active and cooling collections together,
// matching the on-disk credential_array shape: a cooling entry carries a
// non-null cooling_until, an active entry carries a null one.
func (p *StoragePersister) SaveCredentials(ctx context.Context, active, cooling []*Credential) error {
	combined := make([]*Credential, 0, len(active)+len(cooling))
	combined = append(combined, active...)
	combined = append(combined, cooling...)
	return p.store.SetConfig(ctx, CredentialArrayKey, combined)
}

// SaveDead persists the dead collection to the wasted_credentials
// document.
func (p *StoragePersister) SaveDead(ctx context.Context, dead []DeadCredential) error {
	return p.store.SetConfig(ctx, WastedCredentialsKey, dead)
}

// Rehydrate loads the two persisted documents and partitions the
// credential_array entries into active and cooling based on whether each
// carries a cooling_until, matching the actor's pre_start behavior.
func Rehydrate(ctx context.Context, store configStore) (active, cooling []*Credential, dead []DeadCredential, err error) {
	rawArray, err := store.GetConfig(ctx, CredentialArrayKey)
	if err != nil {
		return nil, nil, nil, nil // no prior snapshot is not an error
	}
	var all []*Credential
	if err := decodeInto(rawArray, &all); err != nil {
		return nil, nil, nil, fmt.Errorf("decode credential_array: %w", err)
	}
	for _, c := range all {
		if c.CoolingUntil != nil {
			cooling = append(cooling, c)
		} else {
			active = append(active, c)
		}
	}

	rawDead, err := store.GetConfig(ctx, WastedCredentialsKey)
	if err == nil {
		if derr := decodeInto(rawDead, &dead); derr != nil {
			return nil, nil, nil, fmt.Errorf("decode wasted_credentials: %w", derr)
		}
	}
	return active, cooling, dead, nil
}

// decodeInto round-trips v (typically a map[string]interface{} or
// []interface{} as returned by a generic config store) through JSON into
// out, since backends hand back untyped documents.
func decodeInto(v interface{}, out interface{}) error {
	if v == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, out)
}
