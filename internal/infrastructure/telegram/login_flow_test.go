package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vkondratev/userbot-relay/internal/domain"
)

// scriptedClient is a domain.UserbotClient whose sign-in behavior is
// controlled per test
type scriptedClient struct {
	mu sync.Mutex

	requestLoginCodeFunc func(ctx context.Context, phone string) (string, error)
	signInWithCodeFunc   func(ctx context.Context, phone, code, codeHash string) error
	signInWithPwdFunc    func(ctx context.Context, password string) error

	connected  bool
	closeCalls int
}

func (s *scriptedClient) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *scriptedClient) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	s.connected = false
	return nil
}

func (s *scriptedClient) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *scriptedClient) IsAuthorized(ctx context.Context) (bool, error) { return false, nil }

func (s *scriptedClient) RequestLoginCode(ctx context.Context, phone string) (string, error) {
	if s.requestLoginCodeFunc != nil {
		return s.requestLoginCodeFunc(ctx, phone)
	}
	return "code-hash", nil
}

func (s *scriptedClient) SignInWithCode(ctx context.Context, phone, code, codeHash string) error {
	if s.signInWithCodeFunc != nil {
		return s.signInWithCodeFunc(ctx, phone, code, codeHash)
	}
	return nil
}

func (s *scriptedClient) SignInWithPassword(ctx context.Context, password string) error {
	if s.signInWithPwdFunc != nil {
		return s.signInWithPwdFunc(ctx, password)
	}
	return nil
}

func (s *scriptedClient) ExportSessionToken(ctx context.Context) (string, error) {
	return "exported-session-token", nil
}

func (s *scriptedClient) Me(ctx context.Context) (*domain.UserInfo, error) {
	return &domain.UserInfo{ID: 9}, nil
}
func (s *scriptedClient) SendMessage(ctx context.Context, peer, text string) error { return nil }
func (s *scriptedClient) JoinChat(ctx context.Context, link string) error { return nil }
func (s *scriptedClient) ListDialogs(ctx context.Context, limit int) ([]domain.ChatInfo, error) {
	return nil, nil
}

// mockCredentialStore is a mock implementation of domain.CredentialStore
type mockCredentialStore struct {
	mu    sync.Mutex
	creds map[int64]domain.Credential
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{creds: make(map[int64]domain.Credential)}
}

func (m *mockCredentialStore) GetCredential(ctx context.Context, operatorID int64) (*domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[operatorID]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	return &c, nil
}

func (m *mockCredentialStore) PutCredential(ctx context.Context, cred domain.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[cred.OperatorID] = cred
	return nil
}

func (m *mockCredentialStore) DeleteCredential(ctx context.Context, operatorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, operatorID)
	return nil
}

// mockConnectionCache records evictions
type mockConnectionCache struct {
	mu          sync.Mutex
	evictedIDs  []int64
	acquireFunc func(ctx context.Context, cred domain.Credential) (domain.UserbotClient, error)
}

func (m *mockConnectionCache) Acquire(ctx context.Context, cred domain.Credential) (domain.UserbotClient, error) {
	if m.acquireFunc != nil {
		return m.acquireFunc(ctx, cred)
	}
	return nil, domain.ErrNotAuthorized
}

func (m *mockConnectionCache) Evict(ctx context.Context, operatorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictedIDs = append(m.evictedIDs, operatorID)
	return nil
}

func (m *mockConnectionCache) ActiveCount() int { return 0 }
func (m *mockConnectionCache) Shutdown(ctx context.Context) int { return 0 }

// mockAuditProducer records published events
type mockAuditProducer struct {
	mu     sync.Mutex
	events []string
}

func (m *mockAuditProducer) Publish(ctx context.Context, eventType, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
	return nil
}

func (m *mockAuditProducer) Close() error { return nil }
func (m *mockAuditProducer) IsHealthy() bool { return true }

func newTestLoginManager(client *scriptedClient) (domain.LoginManager, *mockCredentialStore, *mockConnectionCache, *mockAuditProducer) {
	store := newMockCredentialStore()
	cache := &mockConnectionCache{}
	audit := &mockAuditProducer{}
	factory := func(cfg ClientConfig) (domain.UserbotClient, error) {
		return client, nil
	}
	return NewLoginManager(factory, store, cache, audit, zerolog.Nop()), store, cache, audit
}

// runToCodeStage walks a flow up to the code prompt
func runToCodeStage(t *testing.T, m domain.LoginManager, operatorID int64) {
	t.Helper()
	ctx := context.Background()

	if _, err := m.Begin(ctx, operatorID); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if _, err := m.Submit(ctx, operatorID, "123456"); err != nil {
		t.Fatalf("api_id submit failed: %v", err)
	}
	if _, err := m.Submit(ctx, operatorID, "abcdef0123456789"); err != nil {
		t.Fatalf("api_hash submit failed: %v", err)
	}
	reply, err := m.Submit(ctx, operatorID, "+79123456789")
	if err != nil {
		t.Fatalf("phone submit failed: %v", err)
	}
	if reply.Stage != domain.StageCode {
		t.Fatalf("expected code stage, got %v", reply.Stage)
	}
}

func TestLoginFlow_APIIDValidation(t *testing.T) {
	m, _, _, _ := newTestLoginManager(&scriptedClient{})
	ctx := context.Background()

	if _, err := m.Begin(ctx, 1); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	reply, err := m.Submit(ctx, 1, "123abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Stage != domain.StageAPIID {
		t.Errorf("malformed api_id must re-prompt at the same stage, got %v", reply.Stage)
	}

	reply, err = m.Submit(ctx, 1, "123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Stage != domain.StageAPIHash {
		t.Errorf("valid api_id must advance to api_hash, got %v", reply.Stage)
	}
}

func TestLoginFlow_EmptyAPIHashReprompts(t *testing.T) {
	m, _, _, _ := newTestLoginManager(&scriptedClient{})
	ctx := context.Background()

	_, _ = m.Begin(ctx, 1)
	_, _ = m.Submit(ctx, 1, "123456")

	reply, err := m.Submit(ctx, 1, "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Stage != domain.StageAPIHash {
		t.Errorf("empty api_hash must re-prompt, got stage %v", reply.Stage)
	}
}

func TestLoginFlow_PhoneMustStartWithPlus(t *testing.T) {
	client := &scriptedClient{}
	m, _, _, _ := newTestLoginManager(client)
	ctx := context.Background()

	_, _ = m.Begin(ctx, 1)
	_, _ = m.Submit(ctx, 1, "123456")
	_, _ = m.Submit(ctx, 1, "abcdef")

	reply, err := m.Submit(ctx, 1, "89123456789")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Stage != domain.StagePhone {
		t.Errorf("phone without '+' must re-prompt, got stage %v", reply.Stage)
	}
	if client.connected {
		t.Error("no connection must be opened for a rejected phone")
	}
}

func TestLoginFlow_CompletesAndPersistsCredential(t *testing.T) {
	client := &scriptedClient{}
	m, store, cache, audit := newTestLoginManager(client)
	ctx := context.Background()

	runToCodeStage(t, m, 1)

	reply, err := m.Submit(ctx, 1, "54321")
	if err != nil {
		t.Fatalf("code submit failed: %v", err)
	}
	if !reply.Done {
		t.Fatal("expected the flow to finish")
	}
	if reply.Stage != domain.StageDone {
		t.Errorf("a finished flow must report the done stage, got %v", reply.Stage)
	}

	cred, err := store.GetCredential(ctx, 1)
	if err != nil {
		t.Fatalf("credential must be stored: %v", err)
	}
	if cred.SessionToken != "exported-session-token" {
		t.Errorf("unexpected session token %q", cred.SessionToken)
	}
	if cred.APIID != 123456 {
		t.Errorf("unexpected api_id %d", cred.APIID)
	}

	if len(cache.evictedIDs) != 1 || cache.evictedIDs[0] != 1 {
		t.Errorf("a fresh login must evict the operator's cached connection, got %v", cache.evictedIDs)
	}
	if len(audit.events) != 1 || audit.events[0] != domain.EventAuthSuccess {
		t.Errorf("expected one AUTH_SUCCESS event, got %v", audit.events)
	}
	if _, active := m.ActiveStage(1); active {
		t.Error("flow must be destroyed after completion")
	}
	if client.closeCalls == 0 {
		t.Error("pending login connection must be released after completion")
	}
}

func TestLoginFlow_SecondFactorPath(t *testing.T) {
	client := &scriptedClient{
		signInWithCodeFunc: func(ctx context.Context, phone, code, codeHash string) error {
			return domain.ErrSecondFactorRequired
		},
	}
	m, store, _, audit := newTestLoginManager(client)
	ctx := context.Background()

	runToCodeStage(t, m, 1)

	reply, err := m.Submit(ctx, 1, "54321")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Stage != domain.StagePassword {
		t.Fatalf("expected password stage, got %v", reply.Stage)
	}
	if client.closeCalls != 0 {
		t.Error("the pending connection must survive into the password stage")
	}

	reply, err = m.Submit(ctx, 1, "cloud-password")
	if err != nil {
		t.Fatalf("password submit failed: %v", err)
	}
	if !reply.Done {
		t.Fatal("expected the flow to finish after 2FA")
	}
	if reply.Stage != domain.StageDone {
		t.Errorf("a finished flow must report the done stage, got %v", reply.Stage)
	}
	if _, err := store.GetCredential(ctx, 1); err != nil {
		t.Fatalf("credential must be stored: %v", err)
	}
	if len(audit.events) != 1 || audit.events[0] != domain.EventAuthSuccess2FA {
		t.Errorf("expected one AUTH_SUCCESS_2FA event, got %v", audit.events)
	}
}

func TestLoginFlow_InvalidCodeDiscardsFlow(t *testing.T) {
	client := &scriptedClient{
		signInWithCodeFunc: func(ctx context.Context, phone, code, codeHash string) error {
			return domain.ErrInvalidCode
		},
	}
	m, store, _, _ := newTestLoginManager(client)
	ctx := context.Background()

	runToCodeStage(t, m, 1)

	_, err := m.Submit(ctx, 1, "00000")
	if !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if _, active := m.ActiveStage(1); active {
		t.Error("invalid code must discard the flow entirely")
	}
	if client.closeCalls == 0 {
		t.Error("pending connection must be closed on discard")
	}
	if _, err := store.GetCredential(ctx, 1); !errors.Is(err, domain.ErrCredentialNotFound) {
		t.Error("no credential must be stored for a failed flow")
	}
}

func TestLoginFlow_InvalidPasswordKeepsFlow(t *testing.T) {
	client := &scriptedClient{
		signInWithCodeFunc: func(ctx context.Context, phone, code, codeHash string) error {
			return domain.ErrSecondFactorRequired
		},
		signInWithPwdFunc: func(ctx context.Context, password string) error {
			return domain.ErrInvalidPassword
		},
	}
	m, _, _, _ := newTestLoginManager(client)
	ctx := context.Background()

	runToCodeStage(t, m, 1)
	_, _ = m.Submit(ctx, 1, "54321")

	_, err := m.Submit(ctx, 1, "wrong-password")
	if !errors.Is(err, domain.ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}

	stage, active := m.ActiveStage(1)
	if !active || stage != domain.StagePassword {
		t.Error("wrong password must keep the flow at the password stage")
	}
	if client.closeCalls != 0 {
		t.Error("pending connection must survive a wrong password")
	}
}

func TestLoginFlow_SubmitWithoutBegin(t *testing.T) {
	m, _, _, _ := newTestLoginManager(&scriptedClient{})

	_, err := m.Submit(context.Background(), 1, "123456")
	if !errors.Is(err, domain.ErrLoginNotActive) {
		t.Fatalf("expected ErrLoginNotActive, got %v", err)
	}
}

func TestLoginFlow_CancelReleasesPendingConnection(t *testing.T) {
	client := &scriptedClient{}
	m, _, _, _ := newTestLoginManager(client)
	ctx := context.Background()

	runToCodeStage(t, m, 1)

	if err := m.Cancel(ctx, 1); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if client.closeCalls != 1 {
		t.Errorf("expected the pending connection to be closed once, got %d", client.closeCalls)
	}
	if _, active := m.ActiveStage(1); active {
		t.Error("cancel must remove the flow")
	}

	// Cancel with no flow is a no-op
	if err := m.Cancel(ctx, 1); err != nil {
		t.Fatalf("cancel without a flow must not fail: %v", err)
	}
}

func TestLoginFlow_BeginDiscardsPriorFlow(t *testing.T) {
	client := &scriptedClient{}
	m, _, _, _ := newTestLoginManager(client)
	ctx := context.Background()

	runToCodeStage(t, m, 1)

	reply, err := m.Begin(ctx, 1)
	if err != nil {
		t.Fatalf("second begin failed: %v", err)
	}
	if reply.Stage != domain.StageAPIID {
		t.Errorf("a restarted flow must begin at api_id, got %v", reply.Stage)
	}
	if client.closeCalls != 1 {
		t.Errorf("the prior flow's pending connection must be closed, got %d closes", client.closeCalls)
	}
}
