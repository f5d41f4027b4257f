package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBindLookupUnbind(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup("c1")
	assert.False(t, ok)

	r.Bind("c1", "Alice")
	name, ok := r.Lookup("c1")
	assert.True(t, ok)
	assert.Equal(t, "Alice", name)
	assert.Equal(t, 1, r.Count())

	r.Unbind("c1")
	_, ok = r.Lookup("c1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())

	r.Bind("c1", "Bob")
	name, ok = r.Lookup("c1")
	assert.True(t, ok)
	assert.Equal(t, "Bob", name)
}

func TestUnbindUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Bind("c1", "Alice")

	r.Unbind("never-bound")

	name, ok := r.Lookup("c1")
	assert.True(t, ok)
	assert.Equal(t, "Alice", name)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			r.Bind(id, "user")
			name, ok := r.Lookup(id)
			assert.True(t, ok)
			assert.Equal(t, "user", name)
			r.Unbind(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Count())
}
