package ristretto

import (
	"testing"

	"github.com/curatd/curatd/internal/port/cache/cachetest"
)

func TestCache_Compliance(t *testing.T) {
	c, err := New(16 << 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	// Ristretto admits entries asynchronously; Wait flushes the buffers so
	// the compliance suite observes its own writes.
	cachetest.RunComplianceTests(t, c, func() { c.c.Wait() })
}
