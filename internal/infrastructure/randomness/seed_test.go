package randomness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixed(t *testing.T) {
	var src Source = Fixed(42)
	assert.Equal(t, uint64(42), src.Seed("alice", 0))
	assert.Equal(t, uint64(42), src.Seed("bob", 9))
}

func TestSequence_RepeatsLast(t *testing.T) {
	src := NewSequence(3, 7)
	assert.Equal(t, uint64(3), src.Seed("", 0))
	assert.Equal(t, uint64(7), src.Seed("", 0))
	assert.Equal(t, uint64(7), src.Seed("", 0))
	assert.Equal(t, uint64(0), NewSequence().Seed("", 0))
}

func TestRecentIDSource_VariesByCall(t *testing.T) {
	src := NewRecentIDSource()
	seen := make(map[uint64]bool)
	for i := 0; i < 50; i++ {
		seen[src.Seed("alice", 1)] = true
	}
	assert.Greater(t, len(seen), 1)
}
