package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	x402 "github.com/skillpay/x402-skills"
)

// DefaultSettlementTTL is how long a successful settlement is remembered
const DefaultSettlementTTL = 5 * time.Minute

// settlementCache collapses repeated settlement of the same proof. A proof
// being settled is in flight; later callers wait for it. A successful
// result is replayed until it expires. Failures are not cached.
type settlementCache struct {
	mu       sync.Mutex
	results  map[string]cachedSettlement
	inFlight map[string]chan struct{}
	ttl      time.Duration
	now      func() time.Time
}

type cachedSettlement struct {
	response *x402.SettleResponse
	expires  time.Time
}

func newSettlementCache(ttl time.Duration) *settlementCache {
	return &settlementCache{
		results:  make(map[string]cachedSettlement),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
		now:      time.Now,
	}
}

// settlementKey identifies a proof by the hash of its raw payload, which
// covers the signature and nonce
func settlementKey(payload []byte) string {
	hash := sha256.Sum256(payload)
	return hex.EncodeToString(hash[:])
}

// settle returns the cached result for key, waits for an in-flight settle of
// the same key, or runs fn. The bool reports whether fn was skipped.
func (c *settlementCache) settle(ctx context.Context, key string, fn func() (*x402.SettleResponse, error)) (*x402.SettleResponse, bool, error) {
	for {
		c.mu.Lock()
		if cached, ok := c.results[key]; ok {
			if c.now().Before(cached.expires) {
				c.mu.Unlock()
				return cached.response, true, nil
			}
			delete(c.results, key)
		}

		done, busy := c.inFlight[key]
		if !busy {
			done = make(chan struct{})
			c.inFlight[key] = done
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()

		select {
		case <-done:
			// the other settle finished; loop to pick up its result or retry
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	response, err := fn()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil && response != nil && response.Success {
		c.results[key] = cachedSettlement{response: response, expires: c.now().Add(c.ttl)}
	}
	close(c.inFlight[key])
	delete(c.inFlight, key)
	c.evictExpiredLocked()
	return response, false, err
}

func (c *settlementCache) evictExpiredLocked() {
	now := c.now()
	for key, cached := range c.results {
		if !now.Before(cached.expires) {
			delete(c.results, key)
		}
	}
}
