package identity

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
)

// DefaultCacheSize is the number of key to identifier mappings kept in
// memory when no size is configured.
const DefaultCacheSize = 4096

// Namespace is the UUID namespace derived identifiers are generated in.
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte(ir.DomainIdentity))

// Assigner maps identity keys to stable identifiers.
//
// Identifiers are name-based UUIDs (version 5) of the key's canonical JSON,
// so equal keys get equal identifiers in every round and every process. An
// identifier seen with one key is never handed out for another; the
// assigner reports a CollisionError instead.
//
// The live table records which identifiers the committed derived view
// supports. It changes only through Retain, called when a round commits.
//
// Thread-safety: Assign may be called concurrently.
type Assigner struct {
	namespace uuid.UUID
	cache     *lru.Cache[string, ir.EntityID]

	mu   sync.Mutex
	keys map[ir.EntityID]Key
	live map[ir.EntityID]struct{}
}

type config struct {
	cacheSize int
	namespace uuid.UUID
}

// Option configures an Assigner.
type Option func(*config)

// WithCacheSize sets the size of the key cache.
func WithCacheSize(n int) Option {
	return func(c *config) {
		c.cacheSize = n
	}
}

// WithNamespace sets the UUID namespace. Identifiers from assigners with
// different namespaces never coincide.
func WithNamespace(ns uuid.UUID) Option {
	return func(c *config) {
		c.namespace = ns
	}
}

// New creates an Assigner.
func New(opts ...Option) (*Assigner, error) {
	cfg := config{cacheSize: DefaultCacheSize, namespace: Namespace}
	for _, opt := range opts {
		opt(&cfg)
	}
	cache, err := lru.New[string, ir.EntityID](cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("identity cache: %w", err)
	}
	return &Assigner{
		namespace: cfg.namespace,
		cache:     cache,
		keys:      make(map[ir.EntityID]Key),
		live:      make(map[ir.EntityID]struct{}),
	}, nil
}

// Assign returns the identifier for k.
func (a *Assigner) Assign(k Key) (ir.EntityID, error) {
	fp := k.fingerprint()
	if id, ok := a.cache.Get(fp); ok {
		return id, a.remember(id, k, fp)
	}

	data, err := k.canonical()
	if err != nil {
		return "", fmt.Errorf("identity key %s: %w", k, err)
	}
	id := ir.EntityID(uuid.NewSHA1(a.namespace, data).String())
	if err := a.remember(id, k, fp); err != nil {
		return "", err
	}
	a.cache.Add(fp, id)
	return id, nil
}

func (a *Assigner) remember(id ir.EntityID, k Key, fp string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.keys[id]; ok {
		if existing.fingerprint() != fp {
			return &CollisionError{ID: id, Existing: existing.String(), Incoming: k.String()}
		}
		return nil
	}
	a.keys[id] = k
	return nil
}

// Lookup returns the key id was assigned for. Keys are remembered while the
// identifier is live and for one commit after it stops being live.
func (a *Assigner) Lookup(id ir.EntityID) (Key, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k, ok := a.keys[id]
	return k, ok
}

// Describe renders id by its key, or returns the bare identifier if the key
// is not known.
func (a *Assigner) Describe(id ir.EntityID) string {
	if k, ok := a.Lookup(id); ok {
		return k.String()
	}
	return string(id)
}

// Live reports whether id is supported by the committed derived view.
func (a *Assigner) Live(id ir.EntityID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.live[id]
	return ok
}

// LiveCount returns the number of live identifiers.
func (a *Assigner) LiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// Retain replaces the live table with ids. Keys of identifiers that were
// live before are kept one more commit so the round that retracted them
// can still describe them. Keys assigned by rounds that never committed
// are dropped.
func (a *Assigner) Retain(ids []ir.EntityID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	live := make(map[ir.EntityID]struct{}, len(ids))
	keys := make(map[ir.EntityID]Key, len(ids)+len(a.live))
	for _, id := range ids {
		live[id] = struct{}{}
		if k, ok := a.keys[id]; ok {
			keys[id] = k
		}
	}
	for id := range a.live {
		if k, ok := a.keys[id]; ok {
			keys[id] = k
		}
	}
	a.live = live
	a.keys = keys
}
