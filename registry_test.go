package mediacache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryMintsUniqueHandles(t *testing.T) {
	r := newRegistry(DefaultOrigin)
	seen := map[string]bool{}
	for range 100 {
		h := r.mint()
		require.True(t, strings.HasPrefix(h, "blob:null/"))
		require.False(t, seen[h])
		seen[h] = true
	}
}

func TestRegistryDrain(t *testing.T) {
	r := newRegistry(DefaultOrigin)
	r.add(entry{handle: "blob:null/a", cacheKey: "k1"}, entry{handle: "blob:null/b", cacheKey: "k2"})
	require.Equal(t, 2, r.len())
	assert.Equal(t, []string{"blob:null/a", "blob:null/b"}, r.handles())
	assert.True(t, r.IsLiveHandle(" blob:null/a "))

	var during int
	n := r.drain(func() { during = len(r.entries) })
	assert.Equal(t, 2, n)
	assert.Zero(t, during)
	assert.False(t, r.IsLiveHandle("blob:null/a"))
	assert.Empty(t, r.handles())
}
