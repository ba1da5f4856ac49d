package redisx

import (
	"testing"
	"time"
)

func TestNewAppliesTimeout(t *testing.T) {
	c := New("localhost:6379")

	opts := c.Options()
	if opts.ReadTimeout != 2*time.Second {
		t.Errorf("Expected 2s read timeout, got %s", opts.ReadTimeout)
	}
	if opts.WriteTimeout != 2*time.Second {
		t.Errorf("Expected 2s write timeout, got %s", opts.WriteTimeout)
	}
}
