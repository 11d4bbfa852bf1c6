package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CooldownTable tracks the last send time per chat so the dispatcher can
// enforce the minimum gap between two sends to the same chat. One table
// is shared across all operators: a busy chat targeted by two different
// operators shares one cooldown slot, which is a deliberate
// cross-operator politeness guarantee. State lives in process memory
// only and resets on restart.
type CooldownTable struct {
	window   time.Duration
	lastSent map[int64]time.Time
	mu       sync.Mutex
	now      func() time.Time
	logger   zerolog.Logger
}

// NewCooldownTable creates a cooldown table with the given window.
func NewCooldownTable(window time.Duration, logger zerolog.Logger) *CooldownTable {
	return &CooldownTable{
		window:   window,
		lastSent: make(map[int64]time.Time),
		now:      time.Now,
		logger:   logger.With().Str("component", "cooldown_table").Logger(),
	}
}

// Remaining returns how long the caller must still wait before sending
// to the chat. Zero means the chat is clear.
func (t *CooldownTable) Remaining(chatID int64) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, exists := t.lastSent[chatID]
	if !exists {
		return 0
	}

	elapsed := t.now().Sub(last)
	if elapsed >= t.window {
		return 0
	}
	return t.window - elapsed
}

// MarkSent records a send attempt for the chat. Called regardless of the
// attempt's outcome: a failed send still consumes the window so failures
// cannot be hammered.
func (t *CooldownTable) MarkSent(chatID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastSent[chatID] = t.now()
	t.logger.Debug().
		Int64("chat_id", chatID).
		Msg("cooldown window started")
}

// Window returns the configured cooldown window.
func (t *CooldownTable) Window() time.Duration {
	return t.window
}

// WithClock overrides the time source. Test hook.
func (t *CooldownTable) WithClock(now func() time.Time) *CooldownTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
	return t
}
