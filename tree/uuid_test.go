package tree_test

import (
	"testing"

	"github.com/srg/bletree/tree"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalExpandsShortForms(t *testing.T) {
	assert.Equal(t, "0000180d-0000-1000-8000-00805f9b34fb", tree.Canonical("180d"))
	assert.Equal(t, "0000180d-0000-1000-8000-00805f9b34fb", tree.Canonical("180D"))
	assert.Equal(t, "00002a37-0000-1000-8000-00805f9b34fb", tree.Canonical("2a37"))
}

func TestCanonicalPassesThrough128Bit(t *testing.T) {
	assert.Equal(t, "6e400001-b5a3-f393-e0a9-e50e24dcca9e", tree.Canonical("6E400001-B5A3-F393-E0A9-E50E24DCCA9E"))
	assert.Equal(t, "6e400001-b5a3-f393-e0a9-e50e24dcca9e", tree.Canonical("6e400001b5a3f393e0a9e50e24dcca9e"))
}

func TestCanonicalIsIdempotent(t *testing.T) {
	once := tree.Canonical("180d")
	twice := tree.Canonical(once)
	assert.Equal(t, once, twice)
}
