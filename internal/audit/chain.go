// Package audit maintains the tamper-evident, hash-chained governance log
// every adapter-registration, decision, resolution, and ingest event is
// recorded to (spec §4.5, §8 P3).
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/clasper-run/clasper/internal/model"
	"github.com/clasper-run/clasper/internal/storage"
)

// genesisHash precedes the first entry in a tenant's chain, making the
// genesis condition explicit and detectable during verification.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Store is the persistence surface the chain needs.
type Store interface {
	NextAuditSeq(tenantID string) (int64, error)
	LastAuditEntry(tenantID string) (model.AuditEntry, error)
	AppendAuditEntry(model.AuditEntry) error
	ListAuditChain(tenantID string) ([]model.AuditEntry, error)
}

// Chain appends entries to a tenant's hash chain, serializing writers per
// tenant so seq/prev-hash linkage never races.
type Chain struct {
	store Store

	mu        sync.Mutex
	lastHash  map[string]string
	loadedTip map[string]bool
}

// NewChain builds a [Chain] backed by store.
func NewChain(store Store) *Chain {
	return &Chain{
		store:     store,
		lastHash:  make(map[string]string),
		loadedTip: make(map[string]bool),
	}
}

// Append records a new event in tenantID's chain, linking it to the
// previous entry's hash.
func (c *Chain) Append(tenantID, eventType string, eventData map[string]interface{}, linkage model.AuditLinkage) (model.AuditEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevHash, err := c.tipLocked(tenantID)
	if err != nil {
		return model.AuditEntry{}, err
	}

	seq, err := c.store.NextAuditSeq(tenantID)
	if err != nil {
		return model.AuditEntry{}, fmt.Errorf("next audit seq: %w", err)
	}

	entry := model.AuditEntry{
		TenantID:      tenantID,
		Seq:           seq,
		EventType:     eventType,
		EventData:     eventData,
		PrevEventHash: prevHash,
		CreatedAt:     time.Now().UTC(),
		Linkage:       linkage,
	}
	entry.EventHash, err = computeHash(entry)
	if err != nil {
		return model.AuditEntry{}, err
	}

	if err := c.store.AppendAuditEntry(entry); err != nil {
		return model.AuditEntry{}, fmt.Errorf("append audit entry: %w", err)
	}

	c.lastHash[tenantID] = entry.EventHash
	return entry, nil
}

// tipLocked returns the current chain tip for tenantID, loading it from the
// store the first time a tenant is touched. Caller must hold c.mu.
func (c *Chain) tipLocked(tenantID string) (string, error) {
	if c.loadedTip[tenantID] {
		return c.lastHash[tenantID], nil
	}

	last, err := c.store.LastAuditEntry(tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.loadedTip[tenantID] = true
			c.lastHash[tenantID] = genesisHash
			return genesisHash, nil
		}
		return "", fmt.Errorf("load chain tip: %w", err)
	}

	c.loadedTip[tenantID] = true
	c.lastHash[tenantID] = last.EventHash
	return last.EventHash, nil
}

// hashable is the canonical representation hashed into each entry: the
// hash is sha256 over one JSON object holding tenant_id, seq, event_type,
// event_data and prev_event_hash, not over a byte concatenation of those
// fields. created_at is deliberately excluded. canonicalJSON sorts keys
// alphabetically at every level, top-level fields included, so the struct's
// declaration order does not affect the hash and the same logical entry
// always hashes identically.
type hashable struct {
	TenantID      string                 `json:"tenant_id"`
	Seq           int64                  `json:"seq"`
	EventType     string                 `json:"event_type"`
	EventData     map[string]interface{} `json:"event_data"`
	PrevEventHash string                 `json:"prev_event_hash"`
}

func computeHash(e model.AuditEntry) (string, error) {
	payload := hashable{
		TenantID:      e.TenantID,
		Seq:           e.Seq,
		EventType:     e.EventType,
		EventData:     e.EventData,
		PrevEventHash: e.PrevEventHash,
	}

	data, err := canonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize audit entry: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON marshals v deterministically: v is marshaled, decoded into a
// generic interface{}, and marshaled again, so struct fields and map keys
// alike come out sorted alphabetically at every level. Re-marshaling through a
// generic interface{} round-trip guards against callers handing EventData
// maps whose nested values are themselves non-map types with nondeterministic
// field order (e.g. a *struct with unexported-field quirks) by forcing
// everything through the same map/slice/scalar shape before hashing.
func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(sortedGeneric(generic))
}

// sortedGeneric is a no-op for the types json.Unmarshal produces
// (map[string]interface{}, []interface{}, scalars): it rebuilds each map
// after visiting its keys in sorted order, but a Go map keeps no order, so
// the key order of the hashed JSON still comes from encoding/json sorting
// map keys on Marshal.
func sortedGeneric(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(t))
		for _, k := range keys {
			out[k] = sortedGeneric(t[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = sortedGeneric(e)
		}
		return out
	default:
		return v
	}
}

// Verify walks a tenant's full chain and confirms every entry's stored hash
// matches its recomputed hash and links to the previous entry.
// [model.IntegrityCompromised] is returned (with a descriptive error) at the
// first break found.
func Verify(store Store, tenantID string) (model.IntegrityStatus, error) {
	entries, err := store.ListAuditChain(tenantID)
	if err != nil {
		return model.IntegrityUnverified, fmt.Errorf("list audit chain: %w", err)
	}
	if len(entries) == 0 {
		return model.IntegrityUnsigned, nil
	}

	prev := genesisHash
	for _, e := range entries {
		if e.PrevEventHash != prev {
			return model.IntegrityCompromised, fmt.Errorf("entry seq=%d: prev_event_hash mismatch", e.Seq)
		}
		recomputed, err := computeHash(e)
		if err != nil {
			return model.IntegrityUnverified, err
		}
		if recomputed != e.EventHash {
			return model.IntegrityCompromised, fmt.Errorf("entry seq=%d: hash mismatch", e.Seq)
		}
		prev = e.EventHash
	}

	return model.IntegrityVerified, nil
}
