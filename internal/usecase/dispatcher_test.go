package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vkondratev/userbot-relay/config"
	"github.com/vkondratev/userbot-relay/internal/domain"
	"github.com/vkondratev/userbot-relay/internal/infrastructure/cache"
)

// mockUserbotClient is a mock implementation of domain.UserbotClient
type mockUserbotClient struct {
	sendMessageFunc func(ctx context.Context, peer, text string) error
	joinChatFunc    func(ctx context.Context, link string) error

	sentPeers []string
	sentTexts []string
	joinCalls int
}

func (m *mockUserbotClient) Connect(ctx context.Context) error { return nil }
func (m *mockUserbotClient) Close(ctx context.Context) error { return nil }
func (m *mockUserbotClient) IsConnected() bool { return true }
func (m *mockUserbotClient) IsAuthorized(ctx context.Context) (bool, error) {
	return true, nil
}
func (m *mockUserbotClient) RequestLoginCode(ctx context.Context, phone string) (string, error) {
	return "", nil
}
func (m *mockUserbotClient) SignInWithCode(ctx context.Context, phone, code, codeHash string) error {
	return nil
}
func (m *mockUserbotClient) SignInWithPassword(ctx context.Context, password string) error {
	return nil
}
func (m *mockUserbotClient) ExportSessionToken(ctx context.Context) (string, error) {
	return "", nil
}
func (m *mockUserbotClient) Me(ctx context.Context) (*domain.UserInfo, error) {
	return &domain.UserInfo{ID: 1}, nil
}

func (m *mockUserbotClient) SendMessage(ctx context.Context, peer, text string) error {
	m.sentPeers = append(m.sentPeers, peer)
	m.sentTexts = append(m.sentTexts, text)
	if m.sendMessageFunc != nil {
		return m.sendMessageFunc(ctx, peer, text)
	}
	return nil
}

func (m *mockUserbotClient) JoinChat(ctx context.Context, link string) error {
	m.joinCalls++
	if m.joinChatFunc != nil {
		return m.joinChatFunc(ctx, link)
	}
	return nil
}

func (m *mockUserbotClient) ListDialogs(ctx context.Context, limit int) ([]domain.ChatInfo, error) {
	return nil, nil
}

// mockChatRegistry is a mock implementation of domain.ChatRegistry
type mockChatRegistry struct {
	getDependencyFunc func(ctx context.Context, chatID int64) (*int64, error)

	added []domain.ChatRecord
}

func (m *mockChatRegistry) GetDependency(ctx context.Context, chatID int64) (*int64, error) {
	if m.getDependencyFunc != nil {
		return m.getDependencyFunc(ctx, chatID)
	}
	return nil, nil
}

func (m *mockChatRegistry) SetDependency(ctx context.Context, chatID, dependencyChatID int64) error {
	return nil
}

func (m *mockChatRegistry) ListChats(ctx context.Context) ([]domain.ChatRecord, error) {
	return nil, nil
}

func (m *mockChatRegistry) AddChat(ctx context.Context, chatID int64, title string) (*domain.ChatRecord, error) {
	rec := domain.ChatRecord{ChatID: chatID, Title: title}
	m.added = append(m.added, rec)
	return &rec, nil
}

func testDispatchConfig() *config.DispatchConfig {
	return &config.DispatchConfig{
		CooldownWindow: 120 * time.Second,
		SendPacing:     3 * time.Second,
		JoinPacing:     5 * time.Second,
		FloodMargin:    5 * time.Second,
		FloodWarnAfter: 15 * time.Minute,
	}
}

// newTestDispatcher builds a dispatcher whose sleeps are recorded instead
// of executed.
func newTestDispatcher(registry domain.ChatRegistry, cooldowns *cache.CooldownTable) (*dispatcher, *[]time.Duration) {
	sleeps := &[]time.Duration{}
	d := NewDispatcher(testDispatchConfig(), registry, cooldowns, zerolog.Nop()).(*dispatcher)
	d.sleep = func(ctx context.Context, wait time.Duration) error {
		*sleeps = append(*sleeps, wait)
		return ctx.Err()
	}
	d.vary = func(text string) string { return "warmup: " + text }
	return d, sleeps
}

func TestDispatcher_Send_Success(t *testing.T) {
	client := &mockUserbotClient{}
	cooldowns := cache.NewCooldownTable(120*time.Second, zerolog.Nop())
	d, sleeps := newTestDispatcher(&mockChatRegistry{}, cooldowns)

	out := d.Send(context.Background(), client, "@target", "hello", nil)

	if !out.OK {
		t.Fatalf("expected success, got %q", out.Detail)
	}
	if len(client.sentPeers) != 1 || client.sentPeers[0] != "@target" {
		t.Errorf("unexpected peers: %v", client.sentPeers)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 3*time.Second {
		t.Errorf("expected one pacing sleep of 3s, got %v", *sleeps)
	}
}

func TestDispatcher_Send_FloodWaitRetriesOnce(t *testing.T) {
	attempts := 0
	client := &mockUserbotClient{
		sendMessageFunc: func(ctx context.Context, peer, text string) error {
			attempts++
			if attempts == 1 {
				return domain.NewFloodWait(5 * time.Second)
			}
			return nil
		},
	}
	cooldowns := cache.NewCooldownTable(120*time.Second, zerolog.Nop())
	d, sleeps := newTestDispatcher(&mockChatRegistry{}, cooldowns)

	var announced []time.Duration
	onWait := func(reason string, wait time.Duration) {
		announced = append(announced, wait)
	}

	out := d.Send(context.Background(), client, "@target", "hello", onWait)

	if !out.OK {
		t.Fatalf("expected success after retry, got %q", out.Detail)
	}
	if attempts != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", attempts)
	}
	// pacing sleep plus the flood wait with margin
	if len(*sleeps) != 2 || (*sleeps)[1] != 10*time.Second {
		t.Errorf("expected flood sleep of 10s (5s signal + 5s margin), got %v", *sleeps)
	}
	if len(announced) != 1 || announced[0] != 10*time.Second {
		t.Errorf("expected wait announcement of 10s, got %v", announced)
	}
}

func TestDispatcher_Send_TerminalErrorNoRetry(t *testing.T) {
	attempts := 0
	client := &mockUserbotClient{
		sendMessageFunc: func(ctx context.Context, peer, text string) error {
			attempts++
			return errors.New("peer id invalid")
		},
	}
	cooldowns := cache.NewCooldownTable(120*time.Second, zerolog.Nop())
	d, _ := newTestDispatcher(&mockChatRegistry{}, cooldowns)

	out := d.Send(context.Background(), client, "@target", "hello", nil)

	if out.OK {
		t.Fatal("expected failure outcome")
	}
	if attempts != 1 {
		t.Errorf("expected no retry on terminal error, got %d attempts", attempts)
	}
	if !strings.Contains(out.Detail, "@target") {
		t.Errorf("expected detail to name the peer, got %q", out.Detail)
	}
}

func TestDispatcher_Join_AlreadyParticipant(t *testing.T) {
	client := &mockUserbotClient{
		joinChatFunc: func(ctx context.Context, link string) error {
			return domain.ErrAlreadyParticipant
		},
	}
	cooldowns := cache.NewCooldownTable(120*time.Second, zerolog.Nop())
	d, _ := newTestDispatcher(&mockChatRegistry{}, cooldowns)

	out := d.Join(context.Background(), client, "https://t.me/somechat", nil)

	if !out.OK {
		t.Fatalf("already participant should be reported as success, got %q", out.Detail)
	}
}

func TestDispatcher_Join_InvalidInviteNoRetry(t *testing.T) {
	client := &mockUserbotClient{
		joinChatFunc: func(ctx context.Context, link string) error {
			return domain.ErrInvalidInvite
		},
	}
	cooldowns := cache.NewCooldownTable(120*time.Second, zerolog.Nop())
	d, _ := newTestDispatcher(&mockChatRegistry{}, cooldowns)

	out := d.Join(context.Background(), client, "https://t.me/+broken", nil)

	if out.OK {
		t.Fatal("expected failure for invalid invite")
	}
	if client.joinCalls != 1 {
		t.Errorf("expected single join attempt, got %d", client.joinCalls)
	}
}

func TestDispatcher_SendWithDependency_DependencyFirst(t *testing.T) {
	dep := int64(111)
	registry := &mockChatRegistry{
		getDependencyFunc: func(ctx context.Context, chatID int64) (*int64, error) {
			if chatID == 222 {
				return &dep, nil
			}
			return nil, nil
		},
	}
	client := &mockUserbotClient{}
	cooldowns := cache.NewCooldownTable(120*time.Second, zerolog.Nop())
	d, _ := newTestDispatcher(registry, cooldowns)

	out := d.SendWithDependency(context.Background(), client, 222, "promo text", nil)

	if !out.OK {
		t.Fatalf("expected success, got %q", out.Detail)
	}
	if len(client.sentPeers) != 2 {
		t.Fatalf("expected 2 sends, got %v", client.sentPeers)
	}
	if client.sentPeers[0] != "111" || client.sentPeers[1] != "222" {
		t.Errorf("dependency must be delivered first, got order %v", client.sentPeers)
	}
	if client.sentTexts[0] != "warmup: promo text" {
		t.Errorf("dependency send must use the varied text, got %q", client.sentTexts[0])
	}
	if client.sentTexts[1] != "promo text" {
		t.Errorf("target send must use the original text, got %q", client.sentTexts[1])
	}
	if cooldowns.Remaining(111) == 0 || cooldowns.Remaining(222) == 0 {
		t.Error("both chats must be inside their cooldown window after delivery")
	}
	if out.DependencyChatID == nil || *out.DependencyChatID != 111 {
		t.Errorf("outcome must report the warm-up chat it delivered to, got %v", out.DependencyChatID)
	}
}

func TestDispatcher_SendWithDependency_WaitsOutCooldown(t *testing.T) {
	now := time.Unix(1000, 0)
	cooldowns := cache.NewCooldownTable(120*time.Second, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	// 50 seconds into the target chat's window
	cooldowns.MarkSent(222)
	now = now.Add(50 * time.Second)

	client := &mockUserbotClient{}
	d, sleeps := newTestDispatcher(&mockChatRegistry{}, cooldowns)

	var announced []string
	onWait := func(reason string, wait time.Duration) {
		announced = append(announced, reason)
		if wait != 70*time.Second {
			t.Errorf("expected announced wait of 70s, got %v", wait)
		}
	}

	out := d.SendWithDependency(context.Background(), client, 222, "text", onWait)

	if !out.OK {
		t.Fatalf("expected success, got %q", out.Detail)
	}
	if len(announced) != 1 {
		t.Fatalf("expected one wait announcement, got %v", announced)
	}
	found := false
	for _, s := range *sleeps {
		if s == 70*time.Second {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a 70s cooldown sleep, got %v", *sleeps)
	}
}

func TestDispatcher_SendWithDependency_DependencyFailureStillDeliversTarget(t *testing.T) {
	dep := int64(111)
	registry := &mockChatRegistry{
		getDependencyFunc: func(ctx context.Context, chatID int64) (*int64, error) {
			return &dep, nil
		},
	}
	client := &mockUserbotClient{
		sendMessageFunc: func(ctx context.Context, peer, text string) error {
			if peer == "111" {
				return errors.New("chat write forbidden")
			}
			return nil
		},
	}
	cooldowns := cache.NewCooldownTable(120*time.Second, zerolog.Nop())
	d, _ := newTestDispatcher(registry, cooldowns)

	out := d.SendWithDependency(context.Background(), client, 222, "text", nil)

	if out.OK {
		t.Fatal("combined outcome must not be OK when the dependency send failed")
	}
	if len(client.sentPeers) != 2 {
		t.Fatalf("target send must still happen after dependency failure, got %v", client.sentPeers)
	}
	if cooldowns.Remaining(111) == 0 {
		t.Error("failed dependency send must still consume the cooldown window")
	}
	if !strings.Contains(out.Detail, "dependency 111") || !strings.Contains(out.Detail, "target 222") {
		t.Errorf("detail must describe both deliveries, got %q", out.Detail)
	}
}

func TestDispatcher_SendWithDependency_NoDependency(t *testing.T) {
	client := &mockUserbotClient{}
	cooldowns := cache.NewCooldownTable(120*time.Second, zerolog.Nop())
	d, _ := newTestDispatcher(&mockChatRegistry{}, cooldowns)

	out := d.SendWithDependency(context.Background(), client, 333, "text", nil)

	if !out.OK {
		t.Fatalf("expected success, got %q", out.Detail)
	}
	if len(client.sentPeers) != 1 || client.sentPeers[0] != "333" {
		t.Errorf("expected single target send, got %v", client.sentPeers)
	}
	if out.DependencyChatID != nil {
		t.Errorf("an unlinked chat must not report a warm-up chat, got %d", *out.DependencyChatID)
	}
}
