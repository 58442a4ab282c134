package common

import (
	"errors"
	"testing"
)

func TestGuard(t *testing.T) {
	pauses := StaticPauses{"staking": true}

	if err := Guard(pauses, "staking"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "lending"); err != nil {
		t.Fatalf("unexpected error for unpaused module: %v", err)
	}
	if err := Guard(nil, "staking"); err != nil {
		t.Fatalf("nil pause view must not block: %v", err)
	}
	if err := Guard(pauses, ""); err != nil {
		t.Fatalf("empty module must not block: %v", err)
	}
	var empty StaticPauses
	if empty.IsPaused("staking") {
		t.Fatalf("nil table reports paused")
	}
}
