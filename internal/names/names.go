// Package names assigns random display names from a fixed pool.
package names

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/CNMengHan/CialloSecurityChat/internal/domain"
)

// ErrEmptyPool is returned when the pool holds no usable name.
var ErrEmptyPool = errors.New("name pool is empty")

var validate = validator.New()

// Pool is an immutable list of candidate display names.
type Pool struct {
	names []string
	intn  func(n int) int
}

// Load reads one name per line from path. Blank lines are skipped and surrounding
// whitespace is trimmed.
func Load(path string) (*Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read name pool %s: %w", path, err)
	}
	return Parse(string(data))
}

// Parse builds a pool from newline separated names.
func Parse(text string) (*Pool, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	candidates := lo.FilterMap(lines, func(line string, _ int) (string, bool) {
		name := strings.TrimSpace(line)
		return name, name != ""
	})
	return New(candidates)
}

// New builds a pool from the given names. Every name must be 1 to
// domain.MaxUsernameLength characters long.
func New(candidates []string) (*Pool, error) {
	if len(candidates) == 0 {
		return nil, ErrEmptyPool
	}
	for _, name := range candidates {
		if err := validate.Var(name, fmt.Sprintf("min=1,max=%d", domain.MaxUsernameLength)); err != nil {
			return nil, fmt.Errorf("invalid name %q: %w", name, err)
		}
	}

	return &Pool{
		names: append([]string(nil), candidates...),
		intn:  rand.IntN,
	}, nil
}

// Assign picks a name uniformly at random. Safe for concurrent use.
func (p *Pool) Assign() string {
	return p.names[p.intn(len(p.names))]
}

// Len returns the pool size.
func (p *Pool) Len() int {
	return len(p.names)
}
