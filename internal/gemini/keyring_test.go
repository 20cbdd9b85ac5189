package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyRingRotation(t *testing.T) {
	r := newKeyRing([]string{"a", "b", "c"})

	assert.Equal(t, "a", r.Next())
	assert.Equal(t, "b", r.Next())
	assert.Equal(t, "c", r.Next())
	assert.Equal(t, "a", r.Next(), "wraps around")
}

func TestKeyRingSingleKey(t *testing.T) {
	r := newKeyRing([]string{"only"})
	assert.Equal(t, "only", r.Next())
	assert.Equal(t, "only", r.Next())
}

func TestKeyRingEmpty(t *testing.T) {
	r := newKeyRing(nil)
	assert.Empty(t, r.Next())
	assert.Zero(t, r.Len())
}
