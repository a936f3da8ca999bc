package gate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/thedataengineer/mahabharatha/internal/models"
)

// Fingerprint computes the cache key over (tree hash, gate command, gate
// config version), per §4.10. configVersion lets an operator invalidate
// every cached result for a gate by bumping it (e.g. after editing the
// gate's own script), without touching the tree.
func Fingerprint(treeHash, command, configVersion string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("tree:%s|cmd:%s|cfgver:%s", treeHash, command, configVersion)))
	return hex.EncodeToString(h[:16])
}

// Cache is a fingerprint-keyed, single-writer/many-reader store of
// GateResult entries. Entries are immutable once written (§4.10); a
// second Set for an existing key is a programming error the caller
// should never trigger in practice (the coordinator serializes per
// fingerprint), but is tolerated as a last-write-wins overwrite rather
// than a panic.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]models.GateResult
	window  time.Duration
}

// NewCache creates a Cache whose entries are considered fresh for window.
func NewCache(window time.Duration) *Cache {
	return &Cache{entries: make(map[string]models.GateResult), window: window}
}

// Get returns the cached result for fingerprint if present and still
// within the freshness window as of now.
func (c *Cache) Get(fingerprint string, now time.Time) (models.GateResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[fingerprint]
	if !ok || !r.Fresh(now, c.window) {
		return models.GateResult{}, false
	}
	return r, true
}

// Set records a result, keyed by its own Fingerprint field.
func (c *Cache) Set(r models.GateResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[r.Fingerprint] = r
}

// Size reports the number of cached entries, for diagnostics.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
