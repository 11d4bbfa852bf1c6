package domain

import (
	"context"
	"time"
)

// UserbotClient is the transport boundary: one authenticated (or
// pending-authentication) MTProto connection for one operator's userbot.
type UserbotClient interface {
	// Connect establishes the connection. The caller should provide a
	// context with timeout to prevent indefinite hanging.
	Connect(ctx context.Context) error

	// Close disconnects with graceful shutdown. Safe to call repeatedly.
	Close(ctx context.Context) error

	// IsConnected reports whether the underlying transport is up.
	IsConnected() bool

	// IsAuthorized checks whether the session is signed in.
	IsAuthorized(ctx context.Context) (bool, error)

	// RequestLoginCode asks the platform to send a login code to phone
	// and returns the phone-code correlation hash.
	RequestLoginCode(ctx context.Context, phone string) (string, error)

	// SignInWithCode completes sign-in with the received code.
	// Returns ErrSecondFactorRequired when a cloud password is set and
	// ErrInvalidCode when the code is rejected.
	SignInWithCode(ctx context.Context, phone, code, codeHash string) error

	// SignInWithPassword completes 2FA sign-in.
	SignInWithPassword(ctx context.Context, password string) error

	// ExportSessionToken serializes the authorized session into a token
	// suitable for persistence.
	ExportSessionToken(ctx context.Context) (string, error)

	// Me returns the account behind the authorized session.
	Me(ctx context.Context) (*UserInfo, error)

	// SendMessage delivers text to a peer ("@username" or a numeric chat ID).
	SendMessage(ctx context.Context, peer, text string) error

	// JoinChat joins a chat by public link/username or private invite link.
	JoinChat(ctx context.Context, link string) error

	// ListDialogs returns up to limit of the account's dialogs.
	ListDialogs(ctx context.Context, limit int) ([]ChatInfo, error)
}

// ConnectionCache owns at most one live connection per operator and
// reuses it across operations.
type ConnectionCache interface {
	// Acquire returns the cached healthy connection for the credential's
	// operator, or dials a new one from the stored session token. When
	// the session is not authorized the unauthenticated connection is
	// returned together with ErrNotAuthorized so the caller can route the
	// operator into the login flow; such connections are never cached.
	Acquire(ctx context.Context, cred Credential) (UserbotClient, error)

	// Evict closes and removes the cached connection if present. Idempotent.
	Evict(ctx context.Context, operatorID int64) error

	// ActiveCount returns the number of currently cached live connections.
	ActiveCount() int

	// Shutdown disconnects all cached connections and returns how many
	// were closed.
	Shutdown(ctx context.Context) int
}

// LoginManager drives the multi-turn credential-collection flow.
// At most one flow is active per operator; Begin discards a prior one.
type LoginManager interface {
	Begin(ctx context.Context, operatorID int64) (*LoginReply, error)
	Submit(ctx context.Context, operatorID int64, input string) (*LoginReply, error)

	// Cancel releases the pending connection synchronously. Safe to call
	// at any stage, including when no flow is active.
	Cancel(ctx context.Context, operatorID int64) error

	// ActiveStage reports the stage of an in-progress flow, if any.
	ActiveStage(operatorID int64) (LoginStage, bool)
}

// WaitFunc is invoked before the dispatcher suspends, so the caller can
// tell the operator how long the wait is expected to take.
type WaitFunc func(reason string, wait time.Duration)

// Dispatcher sequences outbound sends and joins over a live connection,
// enforcing pacing, flood-wait backoff, cooldown windows and
// dependency-first ordering. It always returns a structured Outcome and
// never propagates transport errors to its caller.
type Dispatcher interface {
	Send(ctx context.Context, client UserbotClient, peer, text string, onWait WaitFunc) Outcome
	Join(ctx context.Context, client UserbotClient, link string, onWait WaitFunc) Outcome
	SendWithDependency(ctx context.Context, client UserbotClient, chatID int64, text string, onWait WaitFunc) Outcome
}

// CredentialStore persists operator credentials. PutCredential is an
// upsert keyed by operator ID.
type CredentialStore interface {
	GetCredential(ctx context.Context, operatorID int64) (*Credential, error)
	PutCredential(ctx context.Context, cred Credential) error
	DeleteCredential(ctx context.Context, operatorID int64) error
}

// ChatStore persists chat records and their dependency links.
type ChatStore interface {
	GetChats(ctx context.Context) ([]ChatRecord, error)
	PutChat(ctx context.Context, chat ChatRecord) error
	GetChatDependency(ctx context.Context, chatID int64) (*int64, error)
	SetChatDependency(ctx context.Context, chatID, dependencyChatID int64) error
}

// ChatRegistry is the dispatcher-facing view of the chat table.
type ChatRegistry interface {
	GetDependency(ctx context.Context, chatID int64) (*int64, error)
	SetDependency(ctx context.Context, chatID, dependencyChatID int64) error
	ListChats(ctx context.Context) ([]ChatRecord, error)
	AddChat(ctx context.Context, chatID int64, title string) (*ChatRecord, error)
}

// AuditProducer publishes operational events (auth completions, delivery
// outcomes) to the audit stream.
type AuditProducer interface {
	Publish(ctx context.Context, eventType, message string) error
	Close() error
	IsHealthy() bool
}

// OperatorUseCase is the caller-facing API the control surface maps
// operator actions onto.
type OperatorUseCase interface {
	Status(ctx context.Context, operatorID int64) (*UserInfo, error)
	Logout(ctx context.Context, operatorID int64) error
	Send(ctx context.Context, operatorID int64, peer, text string, onWait WaitFunc) (Outcome, error)
	SendWithDependency(ctx context.Context, operatorID, chatID int64, text string, onWait WaitFunc) (Outcome, error)
	Join(ctx context.Context, operatorID int64, link string, onWait WaitFunc) (Outcome, error)
	SyncChats(ctx context.Context, operatorID int64) (int, error)
}
