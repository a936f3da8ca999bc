package gate

import (
	"testing"
	"time"

	"github.com/thedataengineer/mahabharatha/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestFingerprint_StableForSameInputs(t *testing.T) {
	a := Fingerprint("tree1", "go test ./...", "v1")
	b := Fingerprint("tree1", "go test ./...", "v1")
	assert.Equal(t, a, b)
}

func TestFingerprint_ChangesWithAnyInput(t *testing.T) {
	base := Fingerprint("tree1", "go test ./...", "v1")
	assert.NotEqual(t, base, Fingerprint("tree2", "go test ./...", "v1"))
	assert.NotEqual(t, base, Fingerprint("tree1", "go vet ./...", "v1"))
	assert.NotEqual(t, base, Fingerprint("tree1", "go test ./...", "v2"))
}

func TestCache_GetMissThenSetThenHit(t *testing.T) {
	c := NewCache(time.Minute)
	now := time.Now()

	_, ok := c.Get("fp1", now)
	assert.False(t, ok)

	c.Set(models.GateResult{Fingerprint: "fp1", Outcome: models.GatePass, Timestamp: now})
	got, ok := c.Get("fp1", now)
	assert.True(t, ok)
	assert.Equal(t, models.GatePass, got.Outcome)
}

func TestCache_ExpiresOutsideFreshnessWindow(t *testing.T) {
	c := NewCache(time.Minute)
	past := time.Now().Add(-2 * time.Minute)
	c.Set(models.GateResult{Fingerprint: "fp1", Outcome: models.GatePass, Timestamp: past})

	_, ok := c.Get("fp1", time.Now())
	assert.False(t, ok)
}

func TestCache_Size(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set(models.GateResult{Fingerprint: "a", Timestamp: time.Now()})
	c.Set(models.GateResult{Fingerprint: "b", Timestamp: time.Now()})
	assert.Equal(t, 2, c.Size())
}
