package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vkondratev/userbot-relay/config"
	"github.com/vkondratev/userbot-relay/internal/domain"
	"github.com/vkondratev/userbot-relay/internal/infrastructure/cache"
	"github.com/vkondratev/userbot-relay/internal/infrastructure/metrics"
)

var prefixEmojis = []string{"🔥", "✨", "⚡", "📌", "🎯", "💬", "🚀", "👀"}

var prefixWords = []string{"Fresh", "Update", "Heads up", "New", "Promo", "Top pick", "Check this", "Trending"}

// varyText prepends a random emoji and word so repeated dependency posts
// do not look byte-identical to spam filters.
func varyText(text string) string {
	emoji := prefixEmojis[rand.Intn(len(prefixEmojis))]
	word := prefixWords[rand.Intn(len(prefixWords))]
	return fmt.Sprintf("%s %s! %s", emoji, word, text)
}

type dispatcher struct {
	registry  domain.ChatRegistry
	cooldowns *cache.CooldownTable
	cfg       config.DispatchConfig
	logger    zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	vary  func(text string) string
}

// NewDispatcher creates a dispatcher enforcing pacing delays, flood-wait
// backoff and per-chat cooldown windows around userbot operations.
func NewDispatcher(
	cfg *config.DispatchConfig,
	registry domain.ChatRegistry,
	cooldowns *cache.CooldownTable,
	logger zerolog.Logger,
) domain.Dispatcher {
	return &dispatcher{
		registry:  registry,
		cooldowns: cooldowns,
		cfg:       *cfg,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		sleep:     sleepCtx,
		vary:      varyText,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute runs op after a fixed pacing delay, waiting out every flood-wait
// signal with the configured margin and retrying until op settles or ctx is
// cancelled. Each signal triggers exactly one immediate retry after the wait.
func (d *dispatcher) execute(ctx context.Context, pacing time.Duration, onWait domain.WaitFunc, op func(context.Context) error) error {
	if err := d.sleep(ctx, pacing); err != nil {
		return err
	}

	var waited time.Duration
	warned := false
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}

		suggested, ok := domain.AsFloodWait(err)
		if !ok {
			return err
		}

		wait := suggested + d.cfg.FloodMargin
		d.logger.Warn().
			Dur("wait", wait).
			Msg("flood wait signalled, backing off before retry")
		if onWait != nil {
			onWait("rate limited by telegram", wait)
		}
		metrics.DefaultMetrics.RecordFloodWait(wait)

		waited += wait
		if !warned && waited >= d.cfg.FloodWarnAfter {
			warned = true
			d.logger.Warn().
				Dur("total_waited", waited).
				Msg("cumulative flood backoff passed warning threshold, still retrying")
		}

		if err := d.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (d *dispatcher) Send(ctx context.Context, client domain.UserbotClient, peer string, text string, onWait domain.WaitFunc) domain.Outcome {
	start := time.Now()
	err := d.execute(ctx, d.cfg.SendPacing, onWait, func(ctx context.Context) error {
		return client.SendMessage(ctx, peer, text)
	})
	metrics.DefaultMetrics.RecordSend(err == nil, time.Since(start))

	if err != nil {
		d.logger.Error().Err(err).Str("peer", peer).Msg("send failed")
		return domain.Outcome{OK: false, Detail: fmt.Sprintf("failed to send to %s: %v", peer, err)}
	}
	d.logger.Info().Str("peer", peer).Msg("message sent")
	return domain.Outcome{OK: true, Detail: fmt.Sprintf("message sent to %s", peer)}
}

func (d *dispatcher) Join(ctx context.Context, client domain.UserbotClient, target string, onWait domain.WaitFunc) domain.Outcome {
	err := d.execute(ctx, d.cfg.JoinPacing, onWait, func(ctx context.Context) error {
		return client.JoinChat(ctx, target)
	})

	switch {
	case err == nil:
		metrics.DefaultMetrics.RecordJoin(true)
		d.logger.Info().Str("target", target).Msg("joined chat")
		return domain.Outcome{OK: true, Detail: fmt.Sprintf("joined %s", target)}
	case errors.Is(err, domain.ErrAlreadyParticipant):
		metrics.DefaultMetrics.RecordJoin(true)
		return domain.Outcome{OK: true, Detail: fmt.Sprintf("already a member of %s", target)}
	case errors.Is(err, domain.ErrInvalidInvite):
		metrics.DefaultMetrics.RecordJoin(false)
		return domain.Outcome{OK: false, Detail: fmt.Sprintf("invite link is invalid or expired: %s", target)}
	default:
		metrics.DefaultMetrics.RecordJoin(false)
		d.logger.Error().Err(err).Str("target", target).Msg("join failed")
		return domain.Outcome{OK: false, Detail: fmt.Sprintf("failed to join %s: %v", target, err)}
	}
}

// SendWithDependency delivers text to chatID, preceded by a send to the
// chat's registered dependency when one exists. The dependency delivery
// fully completes, including all waits, before the target delivery starts.
// Cooldown entries are recorded for every attempted chat regardless of
// whether the send succeeded.
func (d *dispatcher) SendWithDependency(ctx context.Context, client domain.UserbotClient, chatID int64, text string, onWait domain.WaitFunc) domain.Outcome {
	dep, err := d.registry.GetDependency(ctx, chatID)
	if err != nil {
		d.logger.Error().Err(err).Int64("chat_id", chatID).Msg("dependency lookup failed")
		return domain.Outcome{OK: false, Detail: fmt.Sprintf("failed to resolve dependency for chat %d: %v", chatID, err)}
	}

	var parts []string
	allOK := true

	if dep != nil {
		if err := d.waitCooldown(ctx, *dep, "dependency chat cooling down", onWait); err != nil {
			return domain.Outcome{OK: false, Detail: "cancelled while waiting for dependency chat cooldown", DependencyChatID: dep}
		}
		out := d.Send(ctx, client, formatChatID(*dep), d.vary(text), onWait)
		d.cooldowns.MarkSent(*dep)
		if !out.OK {
			allOK = false
		}
		parts = append(parts, fmt.Sprintf("dependency %d: %s", *dep, out.Detail))
	}

	if err := d.waitCooldown(ctx, chatID, "target chat cooling down", onWait); err != nil {
		parts = append(parts, "cancelled while waiting for target chat cooldown")
		return domain.Outcome{OK: false, Detail: strings.Join(parts, "; "), DependencyChatID: dep}
	}
	out := d.Send(ctx, client, formatChatID(chatID), text, onWait)
	d.cooldowns.MarkSent(chatID)
	if !out.OK {
		allOK = false
	}
	parts = append(parts, fmt.Sprintf("target %d: %s", chatID, out.Detail))

	return domain.Outcome{OK: allOK, Detail: strings.Join(parts, "; "), DependencyChatID: dep}
}

// waitCooldown announces the remaining cooldown via onWait before sleeping
// it out, so callers can surface the delay while it is still in progress.
func (d *dispatcher) waitCooldown(ctx context.Context, chatID int64, reason string, onWait domain.WaitFunc) error {
	remaining := d.cooldowns.Remaining(chatID)
	if remaining <= 0 {
		return nil
	}

	d.logger.Info().
		Int64("chat_id", chatID).
		Dur("remaining", remaining).
		Msg("waiting out chat cooldown")
	if onWait != nil {
		onWait(reason, remaining)
	}
	metrics.DefaultMetrics.RecordCooldownWait(remaining)

	return d.sleep(ctx, remaining)
}

func formatChatID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
