package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/colorfulnotion/icagent/common"
	"github.com/colorfulnotion/icagent/log"
	"github.com/fxamacker/cbor/v2"
)

var delegationPrefix = []byte("delegation/")

type cachedDelegation struct {
	SubnetKey []byte `cbor:"1,keyasint"`
	StoredAt  int64  `cbor:"2,keyasint"`
}

// DelegationCache keeps subnet keys of verified delegations in memory and in
// the backing store, so they survive restarts when the store is on disk.
// Entries older than the TTL are treated as missing; a zero TTL never expires.
type DelegationCache struct {
	store *PersistenceStore
	ttl   time.Duration
	now   func() time.Time

	mu  sync.RWMutex
	hot map[common.Hash]cachedDelegation
}

func NewDelegationCache(store *PersistenceStore, ttl time.Duration) *DelegationCache {
	return &DelegationCache{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		hot:   make(map[common.Hash]cachedDelegation),
	}
}

func delegationKey(key common.Hash) []byte {
	return append(append([]byte{}, delegationPrefix...), key.Bytes()...)
}

func (c *DelegationCache) expired(e cachedDelegation) bool {
	return c.ttl > 0 && c.now().Sub(time.Unix(0, e.StoredAt)) > c.ttl
}

// Get returns the subnet key stored under key.
func (c *DelegationCache) Get(key common.Hash) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.hot[key]
	c.mu.RUnlock()
	if !ok {
		raw, found, err := c.store.Get(delegationKey(key))
		if err != nil {
			log.Warn(log.StorageModule, "delegation cache read failed", "key", key.String_short(), "err", err)
			return nil, false
		}
		if !found {
			return nil, false
		}
		if err := cbor.Unmarshal(raw, &e); err != nil {
			log.Warn(log.StorageModule, "dropping undecodable delegation entry", "key", key.String_short(), "err", err)
			return nil, false
		}
		c.mu.Lock()
		c.hot[key] = e
		c.mu.Unlock()
	}
	if c.expired(e) {
		c.evict(key)
		return nil, false
	}
	return e.SubnetKey, true
}

func (c *DelegationCache) Put(key common.Hash, subnetKey []byte) error {
	e := cachedDelegation{SubnetKey: subnetKey, StoredAt: c.now().UnixNano()}
	raw, err := cbor.Marshal(e)
	if err != nil {
		return err
	}
	if err := c.store.Put(delegationKey(key), raw); err != nil {
		return fmt.Errorf("storing delegation %s: %w", key.String_short(), err)
	}
	c.mu.Lock()
	c.hot[key] = e
	c.mu.Unlock()
	log.Debug(log.StorageModule, "delegation cached", "key", key.String_short())
	return nil
}

func (c *DelegationCache) evict(key common.Hash) {
	c.mu.Lock()
	delete(c.hot, key)
	c.mu.Unlock()
	if err := c.store.Delete(delegationKey(key)); err != nil {
		log.Warn(log.StorageModule, "evicting delegation failed", "key", key.String_short(), "err", err)
	}
}

// Len returns the number of persisted entries, expired or not.
func (c *DelegationCache) Len() (int, error) {
	entries, err := c.store.GetWithPrefix(delegationPrefix)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Purge removes every entry.
func (c *DelegationCache) Purge() error {
	c.mu.Lock()
	c.hot = make(map[common.Hash]cachedDelegation)
	c.mu.Unlock()
	n, err := c.store.DeleteWithPrefix(delegationPrefix)
	if err != nil {
		return err
	}
	log.Debug(log.StorageModule, "delegation cache purged", "entries", n)
	return nil
}
