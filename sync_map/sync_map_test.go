package sync_map

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	var m Map[string, int]

	_, ok := m.Load("a")
	assert.False(t, ok)

	m.Store("a", 1)
	v, ok := m.Load("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, loaded := m.LoadOrStore("a", 2)
	assert.True(t, loaded)
	assert.Equal(t, 1, v)

	v, loaded = m.LoadOrStore("b", 2)
	assert.False(t, loaded)
	assert.Equal(t, 2, v)

	seen := map[string]int{}
	m.Range(func(k string, v int) bool {
		seen[k] = v
		return true
	})
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, seen)

	v, ok = m.LoadAndDelete("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	m.Delete("b")
	_, ok = m.Load("b")
	assert.False(t, ok)
}
