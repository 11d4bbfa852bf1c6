package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vkondratev/userbot-relay/internal/domain"
	"github.com/vkondratev/userbot-relay/internal/infrastructure/metrics"
	"github.com/vkondratev/userbot-relay/internal/utils"
)

// Login flow prompts relayed to the operator after each turn.
const (
	promptAPIID        = "Enter your api_id (get it at my.telegram.org)."
	promptAPIIDRetry   = "api_id must contain only digits, try again."
	promptAPIHash      = "Now enter your api_hash."
	promptAPIHashRetry = "api_hash cannot be empty."
	promptPhone        = "Enter the phone number in international format (e.g. +79123456789)."
	promptPhoneRetry   = "The number must start with '+', try again."
	promptCode         = "A login code has been sent to your Telegram account. Enter it."
	promptPassword     = "The account is protected by two-factor authentication. Enter the cloud password."
	promptDone         = "Login successful, session saved."
)

// loginSession is the transient per-operator state of the
// credential-collection flow. Exactly one may be active per operator.
type loginSession struct {
	mu sync.Mutex

	stage    domain.LoginStage
	apiID    int
	apiHash  string
	phone    string
	codeHash string

	// pending is the short-lived unauthenticated connection opened at the
	// phone stage and reused until the flow finishes or is discarded.
	pending domain.UserbotClient
}

// loginManager drives the multi-turn login flow for all operators.
type loginManager struct {
	sessions map[int64]*loginSession
	mu       sync.Mutex

	clientFactory ClientFactory
	store         domain.CredentialStore
	cache         domain.ConnectionCache
	audit         domain.AuditProducer
	logger        zerolog.Logger
}

// NewLoginManager creates the login flow manager
func NewLoginManager(
	factory ClientFactory,
	store domain.CredentialStore,
	cache domain.ConnectionCache,
	audit domain.AuditProducer,
	logger zerolog.Logger,
) domain.LoginManager {
	return &loginManager{
		sessions:      make(map[int64]*loginSession),
		clientFactory: factory,
		store:         store,
		cache:         cache,
		audit:         audit,
		logger:        logger.With().Str("component", "login_manager").Logger(),
	}
}

// Begin starts a fresh flow for the operator, discarding any prior
// in-progress one together with its pending connection.
func (m *loginManager) Begin(ctx context.Context, operatorID int64) (*domain.LoginReply, error) {
	m.mu.Lock()
	prior := m.sessions[operatorID]
	sess := &loginSession{stage: domain.StageAPIID}
	m.sessions[operatorID] = sess
	m.mu.Unlock()

	if prior != nil {
		m.discard(prior)
		m.logger.Info().Int64("operator_id", operatorID).Msg("discarded prior login flow")
	}

	m.logger.Info().Int64("operator_id", operatorID).Msg("login flow started")
	metrics.DefaultMetrics.LoginFlowsStarted.Inc()
	return &domain.LoginReply{Stage: domain.StageAPIID, Message: promptAPIID}, nil
}

// Submit feeds one turn of operator input into the flow.
func (m *loginManager) Submit(ctx context.Context, operatorID int64, input string) (*domain.LoginReply, error) {
	m.mu.Lock()
	sess := m.sessions[operatorID]
	m.mu.Unlock()

	if sess == nil {
		return nil, domain.ErrLoginNotActive
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	input = strings.TrimSpace(input)

	switch sess.stage {
	case domain.StageAPIID:
		return m.handleAPIID(sess, input)
	case domain.StageAPIHash:
		return m.handleAPIHash(sess, input)
	case domain.StagePhone:
		return m.handlePhone(ctx, operatorID, sess, input)
	case domain.StageCode:
		return m.handleCode(ctx, operatorID, sess, input)
	case domain.StagePassword:
		return m.handlePassword(ctx, operatorID, sess, input)
	default:
		return nil, fmt.Errorf("unexpected login stage %v", sess.stage)
	}
}

func (m *loginManager) handleAPIID(sess *loginSession, input string) (*domain.LoginReply, error) {
	// Malformed input re-prompts in place instead of failing the flow
	if input == "" || !isAllDigits(input) {
		return &domain.LoginReply{Stage: domain.StageAPIID, Message: promptAPIIDRetry}, nil
	}

	apiID, err := strconv.Atoi(input)
	if err != nil {
		return &domain.LoginReply{Stage: domain.StageAPIID, Message: promptAPIIDRetry}, nil
	}

	sess.apiID = apiID
	sess.stage = domain.StageAPIHash
	return &domain.LoginReply{Stage: domain.StageAPIHash, Message: promptAPIHash}, nil
}

func (m *loginManager) handleAPIHash(sess *loginSession, input string) (*domain.LoginReply, error) {
	if input == "" {
		return &domain.LoginReply{Stage: domain.StageAPIHash, Message: promptAPIHashRetry}, nil
	}

	sess.apiHash = input
	sess.stage = domain.StagePhone
	return &domain.LoginReply{Stage: domain.StagePhone, Message: promptPhone}, nil
}

// handlePhone stores the phone, opens the unauthenticated connection and
// requests a login code. The connection stays open across the remaining
// turns so sign-in reuses the same transport.
func (m *loginManager) handlePhone(ctx context.Context, operatorID int64, sess *loginSession, input string) (*domain.LoginReply, error) {
	if !strings.HasPrefix(input, "+") {
		return &domain.LoginReply{Stage: domain.StagePhone, Message: promptPhoneRetry}, nil
	}
	sess.phone = input

	logger := m.logger.With().
		Int64("operator_id", operatorID).
		Str("phone", utils.MaskPhoneNumber(input)).
		Logger()

	client, err := m.clientFactory(ClientConfig{
		APIID:   sess.apiID,
		APIHash: sess.apiHash,
		Logger:  logger,
	})
	if err != nil {
		m.failFlow(operatorID, sess)
		return nil, fmt.Errorf("create login client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		m.failFlow(operatorID, sess)
		logger.Warn().Err(err).Msg("login connection failed")
		return nil, fmt.Errorf("%w: %s", domain.ErrConnectionFailed, err)
	}
	sess.pending = client

	codeHash, err := client.RequestLoginCode(ctx, input)
	if err != nil {
		m.failFlow(operatorID, sess)
		logger.Warn().Err(err).Msg("login code request failed")
		return nil, fmt.Errorf("request login code: %w", err)
	}

	sess.codeHash = codeHash
	sess.stage = domain.StageCode
	logger.Info().Msg("login code requested")
	return &domain.LoginReply{Stage: domain.StageCode, Message: promptCode}, nil
}

func (m *loginManager) handleCode(ctx context.Context, operatorID int64, sess *loginSession, input string) (*domain.LoginReply, error) {
	err := sess.pending.SignInWithCode(ctx, sess.phone, input, sess.codeHash)
	switch {
	case err == nil:
		return m.finalize(ctx, operatorID, sess, domain.EventAuthSuccess)

	case errors.Is(err, domain.ErrSecondFactorRequired):
		// Keep the pending connection; the password attempt reuses it
		sess.stage = domain.StagePassword
		return &domain.LoginReply{Stage: domain.StagePassword, Message: promptPassword}, nil

	case errors.Is(err, domain.ErrInvalidCode):
		// Discarding instead of retrying avoids tripping the platform's
		// code-attempt limits; the operator restarts the flow
		m.failFlow(operatorID, sess)
		m.logger.Warn().Int64("operator_id", operatorID).Msg("invalid login code, flow discarded")
		return nil, domain.ErrInvalidCode

	default:
		m.failFlow(operatorID, sess)
		m.logger.Warn().Int64("operator_id", operatorID).Err(err).Msg("sign-in failed, flow discarded")
		return nil, fmt.Errorf("sign in: %w", err)
	}
}

func (m *loginManager) handlePassword(ctx context.Context, operatorID int64, sess *loginSession, input string) (*domain.LoginReply, error) {
	err := sess.pending.SignInWithPassword(ctx, input)
	switch {
	case err == nil:
		return m.finalize(ctx, operatorID, sess, domain.EventAuthSuccess2FA)

	case errors.Is(err, domain.ErrInvalidPassword):
		// Wrong password re-prompts; the flow and connection survive
		m.logger.Warn().Int64("operator_id", operatorID).Msg("invalid 2FA password")
		return nil, domain.ErrInvalidPassword

	default:
		m.failFlow(operatorID, sess)
		m.logger.Warn().Int64("operator_id", operatorID).Err(err).Msg("password sign-in failed, flow discarded")
		return nil, fmt.Errorf("password sign in: %w", err)
	}
}

// finalize persists the credential, replaces any cached connection for
// the operator and destroys the flow.
func (m *loginManager) finalize(ctx context.Context, operatorID int64, sess *loginSession, eventType string) (*domain.LoginReply, error) {
	token, err := sess.pending.ExportSessionToken(ctx)
	if err != nil {
		m.failFlow(operatorID, sess)
		return nil, fmt.Errorf("export session: %w", err)
	}

	cred := domain.Credential{
		OperatorID:   operatorID,
		APIID:        sess.apiID,
		APIHash:      sess.apiHash,
		SessionToken: token,
	}
	if err := m.store.PutCredential(ctx, cred); err != nil {
		m.failFlow(operatorID, sess)
		return nil, fmt.Errorf("persist credential: %w", err)
	}

	// A fresh login supersedes any live connection built from the old
	// token; it must be closed before the next Acquire dials anew.
	if err := m.cache.Evict(ctx, operatorID); err != nil {
		m.logger.Warn().Int64("operator_id", operatorID).Err(err).Msg("failed to evict prior connection")
	}

	m.drop(operatorID, sess)

	if m.audit != nil {
		msg := fmt.Sprintf("operator %d authorized", operatorID)
		if err := m.audit.Publish(ctx, eventType, msg); err != nil {
			m.logger.Warn().Err(err).Msg("failed to publish audit event")
		}
	}

	m.logger.Info().Int64("operator_id", operatorID).Msg("login flow completed")
	metrics.DefaultMetrics.LoginFlowsCompleted.Inc()
	return &domain.LoginReply{Stage: domain.StageDone, Message: promptDone, Done: true}, nil
}

// Cancel releases the pending connection synchronously and removes the
// flow. Safe to call at any stage, including when no flow is active.
func (m *loginManager) Cancel(ctx context.Context, operatorID int64) error {
	m.mu.Lock()
	sess := m.sessions[operatorID]
	delete(m.sessions, operatorID)
	m.mu.Unlock()

	if sess == nil {
		return nil
	}

	sess.mu.Lock()
	pending := sess.pending
	sess.pending = nil
	sess.mu.Unlock()

	if pending != nil {
		if err := pending.Close(ctx); err != nil {
			m.logger.Warn().Int64("operator_id", operatorID).Err(err).Msg("error closing pending connection")
		}
	}

	m.logger.Info().Int64("operator_id", operatorID).Msg("login flow cancelled")
	return nil
}

// ActiveStage reports the stage of an in-progress flow, if any.
func (m *loginManager) ActiveStage(operatorID int64) (domain.LoginStage, bool) {
	m.mu.Lock()
	sess := m.sessions[operatorID]
	m.mu.Unlock()

	if sess == nil {
		return 0, false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.stage, true
}

// failFlow records the failure and destroys the session.
func (m *loginManager) failFlow(operatorID int64, sess *loginSession) {
	metrics.DefaultMetrics.LoginFlowsFailed.Inc()
	m.drop(operatorID, sess)
}

// drop removes the session and closes its pending connection. Callers
// already hold sess.mu.
func (m *loginManager) drop(operatorID int64, sess *loginSession) {
	m.mu.Lock()
	if m.sessions[operatorID] == sess {
		delete(m.sessions, operatorID)
	}
	m.mu.Unlock()

	if sess.pending != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sess.pending.Close(closeCtx); err != nil {
			m.logger.Warn().Int64("operator_id", operatorID).Err(err).Msg("error closing pending connection")
		}
		sess.pending = nil
	}
}

// discard closes a session that is no longer tracked in the map.
func (m *loginManager) discard(sess *loginSession) {
	sess.mu.Lock()
	pending := sess.pending
	sess.pending = nil
	sess.mu.Unlock()

	if pending != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = pending.Close(closeCtx)
	}
}

// isAllDigits checks if string contains only digits
func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
