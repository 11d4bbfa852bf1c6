package cache

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCooldownRemaining_UnknownChat(t *testing.T) {
	table := NewCooldownTable(120*time.Second, zerolog.Nop())

	if got := table.Remaining(42); got != 0 {
		t.Errorf("Remaining for unknown chat = %v, want 0", got)
	}
}

func TestCooldownRemaining_WithinWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	table := NewCooldownTable(120*time.Second, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	table.MarkSent(42)

	now = now.Add(50 * time.Second)
	if got := table.Remaining(42); got != 70*time.Second {
		t.Errorf("Remaining = %v, want 70s", got)
	}
}

func TestCooldownRemaining_WindowElapsed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	table := NewCooldownTable(120*time.Second, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	table.MarkSent(42)

	now = now.Add(120 * time.Second)
	if got := table.Remaining(42); got != 0 {
		t.Errorf("Remaining after window = %v, want 0", got)
	}
}

func TestCooldownMarkSent_RefreshesWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	table := NewCooldownTable(120*time.Second, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	table.MarkSent(42)
	now = now.Add(100 * time.Second)
	table.MarkSent(42)

	if got := table.Remaining(42); got != 120*time.Second {
		t.Errorf("Remaining after refresh = %v, want 120s", got)
	}
}

func TestCooldown_IndependentChats(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	table := NewCooldownTable(120*time.Second, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	table.MarkSent(1)

	if got := table.Remaining(2); got != 0 {
		t.Errorf("Remaining for untouched chat = %v, want 0", got)
	}
}
