package dialogue

import (
	"testing"
)

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	return c
}

// fixedRandom always returns the same index modulo n.
type fixedRandom int

func (f fixedRandom) IntN(n int) int { return int(f) % n }
