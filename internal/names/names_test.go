package names

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSkipsBlankLines(t *testing.T) {
	pool, err := Parse("Alice\r\n\n  Bob  \n\t\nCarol\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, pool.names)
	assert.Equal(t, 3, pool.Len())
}

func TestParseEmptyPool(t *testing.T) {
	_, err := Parse("\n   \n")
	assert.ErrorIs(t, err, ErrEmptyPool)

	_, err = New(nil)
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestNewRejectsLongNames(t *testing.T) {
	_, err := New([]string{"Alice", strings.Repeat("x", 65)})
	assert.Error(t, err)

	pool, err := New([]string{strings.Repeat("名", 64)})
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Len())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.txt")
	require.NoError(t, os.WriteFile(path, []byte("Alice\nBob\n"), 0o644))

	pool, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, []string{"Alice", "Bob"}, pool.Assign())
}

func TestAssignUsesIndex(t *testing.T) {
	pool, err := New([]string{"Alice", "Bob", "Carol"})
	require.NoError(t, err)

	pool.intn = func(n int) int { return n - 1 }
	assert.Equal(t, "Carol", pool.Assign())

	pool.intn = func(int) int { return 0 }
	assert.Equal(t, "Alice", pool.Assign())
}

func TestAssignCoversPool(t *testing.T) {
	pool, err := New([]string{"Alice", "Bob"})
	require.NoError(t, err)

	seen := map[string]int{}
	for i := 0; i < 500; i++ {
		seen[pool.Assign()]++
	}
	assert.Len(t, seen, 2)
}
